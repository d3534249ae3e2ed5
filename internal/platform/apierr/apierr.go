package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine codes for the consultation pipeline error taxonomy.
const (
	CodeValidation      = "validation_failed"
	CodeBudgetExceeded  = "budget_exceeded"
	CodeExternalService = "external_service"
	CodeConflict        = "edit_conflict"
	CodeRender          = "render_failed"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(err error) *Error {
	return New(http.StatusBadRequest, CodeValidation, err)
}

func BudgetExceeded(err error) *Error {
	return New(http.StatusPaymentRequired, CodeBudgetExceeded, err)
}

func ExternalService(err error) *Error {
	return New(http.StatusBadGateway, CodeExternalService, err)
}

func Conflict(err error) *Error {
	return New(http.StatusConflict, CodeConflict, err)
}

func Render(err error) *Error {
	return New(http.StatusInternalServerError, CodeRender, err)
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, CodeNotFound, err)
}

// IsCode reports whether err carries the given machine code anywhere in its chain.
func IsCode(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
