package app

import (
	"errors"
	"fmt"
	"net/http"

	"bridge/api/internal/gitrepo"
	"bridge/api/internal/mirror"
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

var (
	ErrMissingSelection = domainError(http.StatusBadRequest, "MISSING_SELECTION", "Missing selection.", nil)
	ErrNoParagraph      = domainError(http.StatusNotFound, "NO_MATCH", "No match.", nil)
)

func unavailable(feature string) *DomainError {
	return domainError(http.StatusServiceUnavailable, "UNAVAILABLE", feature+" is not configured", nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, mirror.ErrNothingCached) {
		return http.StatusConflict, "NOTHING_CACHED", "No mirrored pages cached yet", nil
	}
	if errors.Is(err, gitrepo.ErrSnapshotNotFound) {
		return http.StatusNotFound, "SNAPSHOT_NOT_FOUND", "Snapshot not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
