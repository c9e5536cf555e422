package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// 索引与存储错误
	ErrCodeIdentityCollision ErrorCode = "IDENTITY_COLLISION"
	ErrCodeStoreWriteFailure ErrorCode = "STORE_WRITE_FAILURE"
	ErrCodeIndexNotReady     ErrorCode = "INDEX_NOT_READY"
	ErrCodeLookupMiss        ErrorCode = "LOOKUP_MISS"
	ErrCodeInvalidDimension  ErrorCode = "INVALID_DIMENSION"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"

	// 外部服务错误
	ErrCodeProviderError ErrorCode = "PROVIDER_ERROR"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Retryable 是否可以在稍后重试
func (e *AppError) Retryable() bool {
	return e.Code == ErrCodeIndexNotReady || e.Code == ErrCodeTimeout
}

// 错误构造函数

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: getHTTPCodeForError(code),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewInvalidInputError 创建输入无效错误
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("Invalid input for field '%s': %s", field, reason),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewIdentityCollisionError 同一次运行内出现重复ID
func NewIdentityCollisionError(id string) *AppError {
	return &AppError{
		Code:     ErrCodeIdentityCollision,
		Message:  fmt.Sprintf("identity collision on %s", id),
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewStoreWriteError 批量写入或刷新失败
func NewStoreWriteError(store string, batch int, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeStoreWriteFailure,
		Message:  fmt.Sprintf("%s write failed at batch %d", store, batch),
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// NewIndexNotReadyError 索引尚未完成构建/加载
func NewIndexNotReadyError(collection string) *AppError {
	return &AppError{
		Code:     ErrCodeIndexNotReady,
		Message:  fmt.Sprintf("collection %s is not loaded", collection),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusServiceUnavailable,
	}
}

// NewLookupMissError 向量命中的ID在文本库中不存在
func NewLookupMissError(id string) *AppError {
	return &AppError{
		Code:     ErrCodeLookupMiss,
		Message:  fmt.Sprintf("text for %s not found", id),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewDimensionError 向量维度不匹配或非法
func NewDimensionError(expected, actual int) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidDimension,
		Message:  fmt.Sprintf("invalid vector dimension: expected %d, got %d", expected, actual),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewProviderError 外部模型服务调用失败
func NewProviderError(provider string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeProviderError,
		Message:  fmt.Sprintf("%s provider call failed", provider),
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// getHTTPCodeForError 根据错误码获取HTTP状态码
func getHTTPCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeLookupMiss:
		return http.StatusNotFound
	case ErrCodeIndexNotReady:
		return http.StatusServiceUnavailable
	case ErrCodeProviderError:
		return http.StatusBadGateway
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeBadRequest, ErrCodeInvalidDimension:
		return http.StatusBadRequest
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsAppError 检查错误链中是否有AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// HasCode 检查错误链中是否有指定错误码的AppError
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}
