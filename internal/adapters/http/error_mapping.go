package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

type errorResponse struct {
	Error       string   `json:"error"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrIrrelevantDocument):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrExtractionFailure):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrRetrievalFailure), domain.IsKind(err, domain.ErrGenerationFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) errorResponse {
	body := errorResponse{Error: err.Error()}
	var irrelevant *domain.IrrelevantDocumentError
	if errors.As(err, &irrelevant) {
		body.Warnings = irrelevant.Assessment.Warnings
		body.Suggestions = irrelevant.Assessment.Suggestions
	}
	return body
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err))
}
