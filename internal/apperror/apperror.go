// Package apperror はゲートウェイ全体で使うエラー分類と、そのHTTPステータスへの対応付けを提供する。
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nao1215/stitch-tracker/pkg/ratelimit"
)

var (
	// ErrUnauthenticated は呼び出し元を認証できない場合の分類。
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden は認証済みだが操作が許可されない場合の分類。
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound はルートやリソースが存在しない場合の分類。
	ErrNotFound = errors.New("not found")
	// ErrValidation はリクエストの内容が不正な場合の分類。
	ErrValidation = errors.New("validation error")
	// ErrUnavailable は依存先が構成されていない場合の分類。
	ErrUnavailable = errors.New("unavailable")
)

// AppError は分類と呼び出し元向けメッセージを持つエラー。
type AppError struct {
	// Err は分類を表すセンチネル。
	Err error
	// Reason は機械可読な理由。空の場合はレスポンスに含めない。
	Reason string
	// Message は呼び出し元に返すメッセージ。
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Unauthenticated は401に対応するエラーを返す。
func Unauthenticated(reason, message string) *AppError {
	return &AppError{Err: ErrUnauthenticated, Reason: reason, Message: message}
}

// Forbidden は403に対応するエラーを返す。
func Forbidden(message string) *AppError {
	return &AppError{Err: ErrForbidden, Message: message}
}

// NotFound は404に対応するエラーを返す。
func NotFound(message string) *AppError {
	return &AppError{Err: ErrNotFound, Message: message}
}

// ValidationFailed は400に対応するエラーを返す。
func ValidationFailed(format string, args ...any) *AppError {
	return &AppError{Err: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// Unavailable は503に対応するエラーを返す。
func Unavailable(message string) *AppError {
	return &AppError{Err: ErrUnavailable, Message: message}
}

// Status はエラーに対応するHTTPステータスコードを返す。分類できないエラーは500。
func Status(err error) int {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Body はエラーレスポンスのJSONボディを組み立てる。
// 500の場合もエラーの最上位メッセージのみを返し、スタックトレースは含めない。
func Body(err error) map[string]any {
	body := map[string]any{"error": err.Error()}

	var appErr *AppError
	if errors.As(err, &appErr) {
		body["error"] = appErr.Message
		if appErr.Reason != "" {
			body["reason"] = appErr.Reason
		}
	}

	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		body["limit"] = limitErr.Limit
		body["class"] = string(limitErr.Class)
	}
	return body
}
