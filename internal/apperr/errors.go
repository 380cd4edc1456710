// Package apperr описывает таксономию ошибок приложения и их отображение в HTTP-статусы.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind - категория ошибки
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindPermission
	KindNotFound
	KindConflict
	KindUpstream
	KindTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	case KindTooLarge:
		return "too_large"
	default:
		return "internal"
	}
}

// Error - ошибка с категорией. Fields перечисляет поля запроса, к которым она относится.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return newf(KindUnauthenticated, format, args...)
}

func Permission(format string, args ...any) *Error {
	return newf(KindPermission, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

// TooLarge - тело запроса превышает допустимый размер
func TooLarge(format string, args ...any) *Error {
	return newf(KindTooLarge, format, args...)
}

// Upstream оборачивает сбой внешней зависимости (загрузка файлов, уведомления)
func Upstream(err error, format string, args ...any) *Error {
	e := newf(KindUpstream, format, args...)
	e.Err = err
	return e
}

// WithFields возвращает копию ошибки с перечнем полей
func (e *Error) WithFields(fields ...string) *Error {
	cp := *e
	cp.Fields = append([]string(nil), fields...)
	return &cp
}

// KindOf возвращает категорию ошибки; для нетипизированных ошибок - KindInternal
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is проверяет категорию ошибки
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus отображает ошибку в код ответа
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает текст, безопасный для клиента
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "internal server error"
}

// FieldsOf возвращает поля, связанные с ошибкой
func FieldsOf(err error) []string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Fields
	}
	return nil
}
