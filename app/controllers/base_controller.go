package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

// maxRequestBody 请求体大小上限
const maxRequestBody = 1 << 20

var validate = validator.New()

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	_ = c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// RenderError 按错误码输出对应的HTTP状态
func (c *BaseController) RenderError(err error) {
	appErr := apperrors.Translate(err)
	c.JSON(appErr.HTTPCode, map[string]interface{}{
		"success":   false,
		"error":     appErr.Message,
		"code":      appErr.Code,
		"retryable": appErr.Retryable(),
		"details":   appErr.Details,
	})
}

// BindJSON 解析并校验请求体
func (c *BaseController) BindJSON(v interface{}) error {
	body := c.Ctx.Input.RequestBody
	if len(body) == 0 && c.Ctx.Request.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(c.Ctx.Request.Body, maxRequestBody))
		if err != nil {
			return apperrors.NewSystemError(apperrors.ErrCodeBadRequest, "failed to read request body").WithCause(err)
		}
	}
	if len(body) == 0 {
		return apperrors.NewSystemError(apperrors.ErrCodeBadRequest, "request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeBadRequest, "invalid JSON body").WithCause(err)
	}
	return validate.Struct(v)
}
