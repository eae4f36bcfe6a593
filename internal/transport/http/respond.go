package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"quizhub-service/internal/domain"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps domain error kinds onto the HTTP surface. Everything
// without a kind is a 500 and gets logged; kinded errors are the caller's
// fault and only reach debug level.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case domain.KindNotAMember:
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Reason: "not_a_member"})
	case domain.KindForbidden:
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Reason: "insufficient_role"})
	case domain.KindConflict, domain.KindAlreadyExists:
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: message})
}
