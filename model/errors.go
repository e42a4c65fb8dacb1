package model

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrBadRequest            ErrorCode = "BAD_REQUEST"
	ErrRiskCheckFailed       ErrorCode = "RISK_CHECK_FAILED"
	ErrAssessmentUnavailable ErrorCode = "ASSESSMENT_UNAVAILABLE"
	ErrInvalidCredentials    ErrorCode = "INVALID_CREDENTIALS"
	ErrNotFound              ErrorCode = "NOT_FOUND"
	ErrInternal              ErrorCode = "INTERNAL"
)

// AppError is a terminal request failure. Message is safe to return to the
// caller; Err is for logs only.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrBadRequest, ErrRiskCheckFailed:
		return http.StatusBadRequest
	case ErrInvalidCredentials:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
