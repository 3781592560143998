package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// envelope — единый формат ответа API.
type envelope struct {
	Data  any           `json:"data,omitempty"`
	Error *errorPayload `json:"error,omitempty"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	writeJSON(w, statusOf(kind), envelope{Error: &errorPayload{
		Kind:    kindLabel(kind),
		Message: errorMessage(kind, err),
	}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, envelope{Error: &errorPayload{
		Kind:    "validation",
		Message: message,
	}})
}

func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func kindLabel(kind domain.Kind) string {
	switch kind {
	case domain.KindValidation:
		return "validation"
	case domain.KindNotFound:
		return "not_found"
	case domain.KindConflict:
		return "conflict"
	case domain.KindForbidden:
		return "forbidden"
	case domain.KindGatewayAnomaly:
		return "gateway_anomaly"
	default:
		return "internal"
	}
}

// errorMessage скрывает детали внутренних ошибок от клиента.
func errorMessage(kind domain.Kind, err error) string {
	if kind == domain.KindInternal {
		return "internal error"
	}
	return err.Error()
}
