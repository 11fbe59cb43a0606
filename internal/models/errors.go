package models

import (
	"encoding/json"
	"fmt"
)

// ErrorCode is the wire enum describing why a task failed.
type ErrorCode string

const (
	CodeNone          ErrorCode = ""
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	CodeBadRequest    ErrorCode = "BAD_REQUEST"
	CodeTooLarge      ErrorCode = "TOO_LARGE"
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// Valid reports whether c is one of the known codes or empty.
func (c ErrorCode) Valid() bool {
	switch c {
	case CodeNone, CodeNotFound, CodeUnauthorized, CodeBadRequest, CodeTooLarge, CodeInternalError:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown codes.
func (c *ErrorCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	code := ErrorCode(s)
	if !code.Valid() {
		return fmt.Errorf("unknown error code %q", s)
	}
	*c = code
	return nil
}
