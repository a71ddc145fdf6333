package app

import (
	"fmt"
	"net/http"
)

// DomainError is an error with a fixed HTTP mapping. Details is serialized
// as-is in the error response.
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

var (
	errStoreUnavailable  = domainError(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Report storage is not configured", nil)
	errReportNotFound    = domainError(http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
	errChangelogRequired = domainError(http.StatusBadRequest, "INVALID_CHANGELOG", "changelog is required", nil)
	errChangelogNotArray = domainError(http.StatusBadRequest, "INVALID_CHANGELOG", "changelog must be a JSON array", nil)

	errSnapshotsUnavailable = domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshot history is not configured", nil)
	errInvalidDocumentID    = domainError(http.StatusBadRequest, "INVALID_DOCUMENT_ID", "Invalid document id", nil)
)

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}
