// Package apperr 定义业务错误分类，HTTP 层据此决定状态码和错误码
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind 错误类别
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindPartialFailure Kind = "partial_failure"
	KindExternalTool   Kind = "external_tool"
	KindExhaustedInput Kind = "exhausted_input"
	KindForbidden      Kind = "forbidden"
	KindUnauthorized   Kind = "unauthorized"
	KindInternal       Kind = "internal"
)

// Error 带类别的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Cause 兼容 github.com/pkg/errors 的 Cause 链
func (e *Error) Cause() error { return e.Err }

// New 创建指定类别的错误
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 用指定类别包装底层错误
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) error { return New(KindNotFound, format, args...) }

func Validation(format string, args ...any) error { return New(KindValidation, format, args...) }

func ExhaustedInput(format string, args ...any) error {
	return New(KindExhaustedInput, format, args...)
}

func Forbidden(format string, args ...any) error { return New(KindForbidden, format, args...) }

func ExternalTool(err error, format string, args ...any) error {
	return Wrap(KindExternalTool, err, format, args...)
}

// KindOf 返回错误链上第一个业务错误的类别，未分类的错误视为 internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message 返回适合展示给调用方的错误描述
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// HTTPStatus 错误类别对应的 HTTP 状态码
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindExhaustedInput:
		return http.StatusUnprocessableEntity
	case KindExternalTool:
		return http.StatusBadGateway
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindPartialFailure:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
