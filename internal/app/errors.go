package app

import (
	"fmt"
	"net/http"
)

// DomainError is the typed failure crossing the service boundary. No other
// error kind reaches the HTTP layer from the orchestrator or lifecycle paths.
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

func errValidation(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION", message, nil)
}

func errUnauthorized(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func errNotFound(resource string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", resource+" not found", nil)
}

// errProviderError marks a document the analysis provider refused to process.
// The document is skipped entirely; nothing partial is aggregated or stored.
func errProviderError(details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "PROVIDER_ERROR", "The analysis provider could not process this text", details)
}

// errProviderUnavailable marks a transport or credential failure reaching the
// provider. The caller decides whether to retry; the service never does.
func errProviderUnavailable(err error) *DomainError {
	return domainError(http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "The analysis provider is unavailable", err.Error())
}

func errServiceUnavailable(message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, "UNAVAILABLE", message, nil)
}
