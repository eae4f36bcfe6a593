package http

import (
	"net/http"
	"strconv"

	"quizhub-service/internal/app"
)

type createQuizRequest struct {
	Title            string `json:"title" validate:"required,max=300"`
	Description      string `json:"description" validate:"max=5000"`
	AllowedAttempts  *int   `json:"allowedAttempts" validate:"omitempty,min=1"`
	TimeLimitMinutes *int   `json:"timeLimitMinutes" validate:"omitempty,min=1"`
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(r, "companyID")
	if !ok {
		badRequest(w, "invalid company id")
		return
	}
	var req createQuizRequest
	if err := h.decode(r, &req); err != nil {
		badRequest(w, "invalid quiz payload")
		return
	}
	quiz, err := h.catalog.CreateQuiz(r.Context(), companyID, userID(r), app.CreateQuizInput{
		Title:            req.Title,
		Description:      req.Description,
		AllowedAttempts:  req.AllowedAttempts,
		TimeLimitMinutes: req.TimeLimitMinutes,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(r, "companyID")
	if !ok {
		badRequest(w, "invalid company id")
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	quizzes, err := h.catalog.ListQuizzes(r.Context(), companyID, userID(r), limit, offset)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
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
	quiz, err := h.catalog.GetQuiz(r.Context(), companyID, userID(r), quizID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
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
	if err := h.catalog.DeleteQuiz(r.Context(), companyID, userID(r), quizID); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) publishQuiz(w http.ResponseWriter, r *http.Request) {
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
	quiz, err := h.catalog.PublishQuiz(r.Context(), companyID, userID(r), quizID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) forkQuiz(w http.ResponseWriter, r *http.Request) {
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
	fork, err := h.catalog.NewVersion(r.Context(), companyID, userID(r), quizID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, fork)
}

type questionRequest struct {
	Text   string  `json:"text" validate:"required,max=2000"`
	Points float64 `json:"points" validate:"min=0"`
}

func (h *Handler) addQuestion(w http.ResponseWriter, r *http.Request) {
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
	var req questionRequest
	if err := h.decode(r, &req); err != nil {
		badRequest(w, "invalid question payload")
		return
	}
	question, err := h.catalog.AddQuestion(r.Context(), companyID, userID(r), quizID, req.Text, req.Points)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

func (h *Handler) updateQuestion(w http.ResponseWriter, r *http.Request) {
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
	questionID, ok := pathUUID(r, "questionID")
	if !ok {
		badRequest(w, "invalid question id")
		return
	}
	var req questionRequest
	if err := h.decode(r, &req); err != nil {
		badRequest(w, "invalid question payload")
		return
	}
	if err := h.catalog.UpdateQuestion(r.Context(), companyID, userID(r), quizID, questionID, req.Text, req.Points); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
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
	questionID, ok := pathUUID(r, "questionID")
	if !ok {
		badRequest(w, "invalid question id")
		return
	}
	if err := h.catalog.DeleteQuestion(r.Context(), companyID, userID(r), quizID, questionID); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type optionRequest struct {
	Text      string `json:"text" validate:"required,max=1000"`
	IsCorrect bool   `json:"isCorrect"`
}

func (h *Handler) addOption(w http.ResponseWriter, r *http.Request) {
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
	questionID, ok := pathUUID(r, "questionID")
	if !ok {
		badRequest(w, "invalid question id")
		return
	}
	var req optionRequest
	if err := h.decode(r, &req); err != nil {
		badRequest(w, "invalid option payload")
		return
	}
	option, err := h.catalog.AddOption(r.Context(), companyID, userID(r), quizID, questionID, req.Text, req.IsCorrect)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, option)
}

func (h *Handler) deleteOption(w http.ResponseWriter, r *http.Request) {
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
	questionID, ok := pathUUID(r, "questionID")
	if !ok {
		badRequest(w, "invalid question id")
		return
	}
	optionID, ok := pathUUID(r, "optionID")
	if !ok {
		badRequest(w, "invalid option id")
		return
	}
	if err := h.catalog.DeleteOption(r.Context(), companyID, userID(r), quizID, questionID, optionID); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
