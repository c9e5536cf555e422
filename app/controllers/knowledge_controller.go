package controllers

import (
	"strconv"

	apperrors "github.com/aihub/ragindex/internal/errors"
	"github.com/aihub/ragindex/internal/services"
)

// KnowledgeController 检索、问答与重建索引接口
type KnowledgeController struct {
	BaseController
	// beego 为每个请求复制控制器，依赖需为导出字段
	Service *services.KnowledgeService
}

// NewKnowledgeController 创建知识库控制器
func NewKnowledgeController(service *services.KnowledgeService) *KnowledgeController {
	return &KnowledgeController{Service: service}
}

// AskRequest 问答请求
type AskRequest struct {
	Question string `json:"question" validate:"required"`
	TopK     int    `json:"top_k" validate:"gte=0,lte=1000"`
}

// ReindexRequest 重建索引请求，source 与 text 二选一
type ReindexRequest struct {
	Source string `json:"source" validate:"required_without=Text"`
	Text   string `json:"text" validate:"required_without=Source"`
}

// Search GET /api/search?q=...&top_k=...
func (c *KnowledgeController) Search() {
	question := c.GetString("q")
	if question == "" {
		question = c.GetString("question")
	}
	topK, err := c.topK()
	if err != nil {
		c.RenderError(err)
		return
	}

	results, err := c.Service.Search(c.Ctx.Request.Context(), question, topK)
	if err != nil {
		c.RenderError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"question": question,
		"results":  results,
	})
}

// Ask POST /api/ask
func (c *KnowledgeController) Ask() {
	var req AskRequest
	if err := c.BindJSON(&req); err != nil {
		c.RenderError(err)
		return
	}

	answer, err := c.Service.Ask(c.Ctx.Request.Context(), req.Question, req.TopK)
	if err != nil {
		c.RenderError(err)
		return
	}
	c.JSONSuccess(answer)
}

// Reindex POST /api/reindex
func (c *KnowledgeController) Reindex() {
	var req ReindexRequest
	if err := c.BindJSON(&req); err != nil {
		c.RenderError(err)
		return
	}

	ctx := c.Ctx.Request.Context()
	var (
		result interface{}
		err    error
	)
	if req.Text != "" {
		result, err = c.Service.ReindexText(ctx, req.Text)
	} else {
		result, err = c.Service.Reindex(ctx, req.Source)
	}
	if err != nil {
		c.RenderError(err)
		return
	}
	c.JSONSuccess(result)
}

func (c *KnowledgeController) topK() (int, error) {
	raw := c.GetString("top_k")
	if raw == "" {
		return 0, nil
	}
	topK, err := strconv.Atoi(raw)
	if err != nil || topK < 0 {
		return 0, apperrors.NewValidationError("top_k must be a non-negative integer")
	}
	return topK, nil
}
