package api

import (
	"fmt"
	"net/http"
)

// Error codes carried in HTTP error bodies.
const (
	CodeInvalidCredentials = "InvalidCredentials"
	CodeNotAuthenticated   = "NotAuthenticated"
	CodeNotAuthorized      = "NotAuthorized"
	CodeInvalidCategory    = "InvalidCategory"
	CodeFileTooLarge       = "FileTooLarge"
	CodeNotApproved        = "NotApproved"
	CodeNotFound           = "NotFound"
	CodeBadRequest         = "BadRequest"
	CodeRateLimited        = "RateLimited"
)

type ApiError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func NewBadRequestError(code, message string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Code:       code,
		Message:    message,
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    "not found",
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Code:       "InternalError",
		Message:    http.StatusText(http.StatusInternalServerError),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeNotAuthenticated,
		Message:    "authentication required",
	}
}

func NewForbiddenError(code, message string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Code:       code,
		Message:    message,
	}
}

func NewFileTooLargeError(limit int64) *ApiError {
	return &ApiError{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       CodeFileTooLarge,
		Message:    fmt.Sprintf("file exceeds the %d byte upload limit", limit),
	}
}

func NewRateLimitedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "too many requests",
	}
}
