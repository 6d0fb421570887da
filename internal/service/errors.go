package service

import (
	"errors"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/repository"
)

var (
	ErrNotAuthenticated  = entity.ErrNotAuthenticated
	ErrInvalidProperty   = entity.ErrInvalidProperty
	ErrRemoteUnavailable = repository.ErrRemoteUnavailable
	ErrRemoteRejected    = repository.ErrRemoteRejected

	ErrPropertyNotFound = errors.New("property not found")

	errSessionChanged = errors.New("session changed while loading")
)

// ClassifyError names the kind of a store error for logs, metrics and API responses.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrInvalidProperty):
		return "invalid_property"
	case errors.Is(err, ErrRemoteRejected):
		return "remote_rejected"
	case errors.Is(err, ErrRemoteUnavailable):
		return "remote_unavailable"
	case errors.Is(err, ErrPropertyNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}
