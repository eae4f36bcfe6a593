package http

import (
	"net/http"

	"github.com/google/uuid"

	"quizhub-service/internal/domain"
)

type startAttemptResponse struct {
	Attempt   *domain.Attempt          `json:"attempt"`
	Questions []domain.AttemptQuestion `json:"questions"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(r, "companyID")
	if !ok {
		badRequest(w, "invalid company id")
		return
	}
	quizID, ok := pathUUID(r, "quizID")
	if !ok {
		badRequest(w, "invalid quiz id")
		return
	}
	attempt, questions, err := h.attempts.StartAttempt(r.Context(), companyID, quizID, userID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, startAttemptResponse{Attempt: attempt, Questions: questions})
}

type saveAnswerRequest struct {
	SelectedOptionIDs []string `json:"selectedOptionIds" validate:"required,min=1,dive,uuid"`
}

func (h *Handler) saveAnswer(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathUUID(r, "quizID")
	if !ok {
		badRequest(w, "invalid quiz id")
		return
	}
	attemptID, ok := pathUUID(r, "attemptID")
	if !ok {
		badRequest(w, "invalid attempt id")
		return
	}
	questionID, ok := pathUUID(r, "questionID")
	if !ok {
		badRequest(w, "invalid question id")
		return
	}
	var req saveAnswerRequest
	if err := h.decode(r, &req); err != nil {
		badRequest(w, "invalid answer payload")
		return
	}
	optionIDs := make([]uuid.UUID, 0, len(req.SelectedOptionIDs))
	for _, raw := range req.SelectedOptionIDs {
		optionIDs = append(optionIDs, mustUUID(raw))
	}
	if err := h.attempts.SaveAnswer(r.Context(), userID(r), quizID, attemptID, questionID, optionIDs); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) finalizeAttempt(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathUUID(r, "quizID")
	if !ok {
		badRequest(w, "invalid quiz id")
		return
	}
	attemptID, ok := pathUUID(r, "attemptID")
	if !ok {
		badRequest(w, "invalid attempt id")
		return
	}
	attempt, err := h.attempts.FinalizeAttempt(r.Context(), userID(r), quizID, attemptID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}
