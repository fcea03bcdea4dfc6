package render

import (
	"fmt"
	"net/http"
)

// Error はレンダリング処理で発生したエラーを表します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// RemoteError はレンダラーが 2xx 以外を返したことを表します。
type RemoteError struct {
	StatusCode int
	Summary    string
	Details    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("renderer returned %d: %s", e.StatusCode, e.Message())
}

// Message は利用者に見せるメッセージを返します。details は長いログになり得るため error を優先します。
func (e *RemoteError) Message() string {
	switch {
	case e.Summary != "":
		return e.Summary
	case e.Details != "":
		return e.Details
	default:
		return http.StatusText(e.StatusCode)
	}
}
