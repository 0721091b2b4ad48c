// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeTimeout    ErrorType = "timeout"

	// ErrorTypeGateway 模型网关失败（网络/鉴权/限流/响应畸形）
	// 永远不会从回合循环中逃逸，分类器映射为 unknown，提取器映射为提取失败
	ErrorTypeGateway ErrorType = "gateway_error"

	// ErrorTypeContent 内容完整性缺陷（引用的实体ID在已加载内容中不存在）
	// 对该次剧本运行是致命的，向回合循环的调用方上抛
	ErrorTypeContent ErrorType = "content_error"

	// ErrorTypeExtraction 结构化提取失败（模型输出畸形或不完整）
	// 由校验器强制降级为对话
	ErrorTypeExtraction ErrorType = "extraction_error"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewGatewayError 创建模型网关错误
func NewGatewayError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeGateway, message, originalError)
}

// NewContentError 创建内容完整性错误
func NewContentError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeContent, message, originalError)
}

// NewExtractionError 创建提取失败错误
func NewExtractionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeExtraction, message, originalError)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsGatewayError 检查是否为模型网关错误
func IsGatewayError(err error) bool {
	return hasType(err, ErrorTypeGateway)
}

// IsContentError 检查是否为内容完整性错误
func IsContentError(err error) bool {
	return hasType(err, ErrorTypeContent)
}

// IsExtractionError 检查是否为提取失败错误
func IsExtractionError(err error) bool {
	return hasType(err, ErrorTypeExtraction)
}

func hasType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeGateway:
		return "GATEWAY_ERROR"
	case ErrorTypeContent:
		return "CONTENT_ERROR"
	case ErrorTypeExtraction:
		return "EXTRACTION_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
