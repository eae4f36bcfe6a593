package http

import (
	"net/http"

	"quizhub-service/internal/domain"
)

func (h *Handler) myGlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.UserGlobalStats(r.Context(), userID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) myCompanyStats(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(r, "companyID")
	if !ok {
		badRequest(w, "invalid company id")
		return
	}
	if err := h.memberships.AssertPermissions(r.Context(), companyID, userID(r), domain.RoleMember, false); err != nil {
		writeError(w, h.log, err)
		return
	}
	stats, err := h.stats.UserCompanyStats(r.Context(), userID(r), companyID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) quizStats(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathUUID(r, "quizID")
	if !ok {
		badRequest(w, "invalid quiz id")
		return
	}
	stats, err := h.stats.QuizStats(r.Context(), quizID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
