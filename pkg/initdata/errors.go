package initdata

import (
	"fmt"
	"time"
)

// Error は起動データの検証失敗を表す。
// Reason は呼び出し元に返す機械可読な理由で、秘密情報を含まない。
type Error struct {
	reason  string
	message string
	cause   error
}

// Error はエラーメッセージを返す。
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Reason は機械可読な失敗理由（例: "BadSignature"）を返す。
func (e *Error) Reason() string { return e.reason }

// Message は呼び出し元向けのメッセージを返す。
func (e *Error) Message() string { return e.message }

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error { return e.cause }

// Is は理由が同じ *Error を同一視する。原因付きでラップされた場合も errors.Is が成立する。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.reason == e.reason
}

var (
	// ErrMissingCredential は起動データが空の場合に返す。
	ErrMissingCredential = &Error{reason: "MissingCredential", message: "Missing initData"}
	// ErrMalformedCredential は起動データを解析できない、または hash が無い場合に返す。
	ErrMalformedCredential = &Error{reason: "MalformedCredential", message: "Missing hash in initData"}
	// ErrBadSignature は hash が再計算した署名と一致しない場合に返す。
	ErrBadSignature = &Error{reason: "BadSignature", message: "Invalid hash"}
	// ErrExpired は auth_date が鮮度上限より古い場合に返す。
	ErrExpired = &Error{reason: "Expired", message: "initData expired (>5 min)"}
	// ErrMissingUser は user フィールドが無い場合に返す。
	ErrMissingUser = &Error{reason: "MissingUser", message: "Missing user in initData"}
	// ErrMissingUserID は user に数値の id が無い場合に返す。
	ErrMissingUserID = &Error{reason: "MissingUserId", message: "Missing user.id in initData"}
)

// expired は鮮度上限を含むメッセージつきの ErrExpired を生成する。
// 分単位で割り切れる上限は "5 min" のように、それ以外は秒数で表す。
func expired(maxAge time.Duration) *Error {
	limit := fmt.Sprintf("%ds", int64(maxAge/time.Second))
	if maxAge >= time.Minute && maxAge%time.Minute == 0 {
		limit = fmt.Sprintf("%d min", int64(maxAge/time.Minute))
	}
	return &Error{
		reason:  ErrExpired.reason,
		message: fmt.Sprintf("initData expired (>%s)", limit),
	}
}

// malformed は原因付きの ErrMalformedCredential を生成する。
func malformed(cause error) error {
	return &Error{
		reason:  ErrMalformedCredential.reason,
		message: "Malformed initData",
		cause:   cause,
	}
}
