package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/ingestion"
)

// unavailable lists the collaborator failures reported as 503.
var unavailable = []error{
	domain.ErrEmbeddingUnavailable,
	domain.ErrVectorStoreUnavailable,
	domain.ErrRerankerUnavailable,
	domain.ErrGenerationUnavailable,
	domain.ErrStoreUnavailable,
	ingestion.ErrClosed,
}

// httpStatus maps a domain error to a response code. A collaborator that
// timed out wraps both its sentinel and the deadline; the sentinel wins.
func httpStatus(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	}
	for _, sentinel := range unavailable {
		if errors.Is(err, sentinel) {
			return http.StatusServiceUnavailable
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// publicMessage is the error text shown to clients. Validation and
// not-found errors are returned as-is; anything else is reduced to its
// class so internal details stay in the logs.
func publicMessage(err error, status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		return err.Error()
	case http.StatusServiceUnavailable:
		for _, sentinel := range unavailable {
			if errors.Is(err, sentinel) {
				return sentinel.Error()
			}
		}
	case http.StatusGatewayTimeout:
		return "request timed out"
	}
	return "internal error"
}
