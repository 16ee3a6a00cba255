package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/FarisLab/StudySync/internal/authpw"
	"github.com/FarisLab/StudySync/internal/ownership"
	"github.com/FarisLab/StudySync/internal/session"
	"github.com/FarisLab/StudySync/internal/store"
	"github.com/FarisLab/StudySync/internal/validate"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var errInvalidBody = domainError(http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", nil)

// mapError translates service errors into the HTTP error contract. ok is
// false for errors that are not part of it; those are reported as 500.
func mapError(err error) (status int, code, message string, details any, ok bool) {
	var domainErr *DomainError
	var validationErr *validate.Error
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details, true
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationErr.Fields, true
	case errors.Is(err, ownership.ErrUnauthenticated), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil, true
	case errors.Is(err, ownership.ErrNotFoundOrUnauthorized):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil, true
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil, true
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "CONFLICT", "Conflict", nil, true
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil, true
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil, false
}
