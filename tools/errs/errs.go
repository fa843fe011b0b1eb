package errs

import (
	"errors"
	"strconv"
	"strings"
)

// CodeError carries a stable numeric code plus a short message. Detail is
// for logs only and never crosses the wire.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// WithDetail clones the error so the predefined values stay immutable.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Is matches on the code so a detailed clone still equals its base value
// under errors.Is.
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !errors.As(target, &ce) {
		return false
	}
	return e.Code == ce.Code
}

// Code ranges: 11xx auth, 12xx validation, 13xx transport, 14xx config.
var (
	ErrTokenExpired   = NewCodeError(1101, "token expired")
	ErrTokenSignature = NewCodeError(1102, "token signature invalid")
	ErrTokenMalformed = NewCodeError(1103, "token malformed")
	ErrTokenNoSubject = NewCodeError(1104, "token missing subject claim")

	ErrDecodeFailure    = NewCodeError(1201, "malformed event json")
	ErrUnknownEventType = NewCodeError(1202, "unknown event type")
	ErrMissingField     = NewCodeError(1203, "missing required field")
	ErrEncodeFailure    = NewCodeError(1204, "event not encodable")

	ErrSendFailed   = NewCodeError(1301, "send failed")
	ErrNotConnected = NewCodeError(1302, "connection not in connected state")

	ErrMissingSecret = NewCodeError(1401, "missing required secret")
)

// IsAuthError reports whether err is any of the token verification
// failures.
func IsAuthError(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code >= 1100 && ce.Code < 1200
}

// IsValidationError reports whether err is any of the event validation
// failures.
func IsValidationError(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code >= 1200 && ce.Code < 1300
}
