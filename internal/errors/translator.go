package errors

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Translate 将各种类型的错误转换为AppError
func Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return translateValidationErrors(validationErrors)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewSystemError(ErrCodeTimeout, "Operation timed out").WithCause(err)
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewSystemError(ErrCodeTimeout, "Operation timed out").WithCause(err)
		}
		return NewSystemError(ErrCodeConnectionFailed, "Network error").WithCause(err)
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return NewSystemError(ErrCodeConnectionFailed, "Backend connection failed").WithCause(err)
	}

	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// translateValidationErrors 转换验证错误
func translateValidationErrors(validationErrors validator.ValidationErrors) *AppError {
	details := make([]map[string]interface{}, 0, len(validationErrors))

	for _, fieldError := range validationErrors {
		details = append(details, map[string]interface{}{
			"field":   fieldError.Namespace(),
			"tag":     fieldError.Tag(),
			"message": validationMessage(fieldError),
		})
	}

	return NewValidationError("Validation failed").
		WithDetails(map[string]interface{}{
			"errors": details,
		})
}

// validationMessage 获取验证错误消息
func validationMessage(fieldError validator.FieldError) string {
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fieldError.Param()
	case "max":
		return field + " must be at most " + fieldError.Param()
	case "gt":
		return field + " must be greater than " + fieldError.Param()
	case "gte":
		return field + " must be greater than or equal to " + fieldError.Param()
	case "lte":
		return field + " must be less than or equal to " + fieldError.Param()
	case "oneof":
		return field + " must be one of: " + fieldError.Param()
	case "required_if":
		return field + " is required when " + fieldError.Param()
	default:
		return field + " is invalid"
	}
}

// Wrap 包装错误为AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return NewSystemError(code, message).WithCause(err)
}
