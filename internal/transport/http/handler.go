package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizhub-service/internal/app"
)

// Handler exposes the service over JSON plus one websocket endpoint for live
// quiz stats. All routes except /healthz require a bearer token.
type Handler struct {
	memberships *app.MembershipService
	catalog     *app.CatalogService
	attempts    *app.AttemptService
	stats       *app.StatsService
	jwtSecret   string
	validate    *validator.Validate
	log         *zap.Logger
}

func NewHandler(memberships *app.MembershipService, catalog *app.CatalogService, attempts *app.AttemptService, stats *app.StatsService, jwtSecret string, log *zap.Logger) *Handler {
	return &Handler{
		memberships: memberships,
		catalog:     catalog,
		attempts:    attempts,
		stats:       stats,
		jwtSecret:   jwtSecret,
		validate:    validator.New(),
		log:         log.With(zap.String("component", "http")),
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Companies and memberships.
	mux.HandleFunc("POST /api/companies", h.requireAuth(h.createCompany))
	mux.HandleFunc("GET /api/companies/{companyID}/members", h.requireAuth(h.listMembers))
	mux.HandleFunc("POST /api/companies/{companyID}/members", h.requireAuth(h.addMember))
	mux.HandleFunc("PUT /api/companies/{companyID}/members/{userID}", h.requireAuth(h.updateMemberRole))
	mux.HandleFunc("DELETE /api/companies/{companyID}/members/{userID}", h.requireAuth(h.removeMember))

	// Quiz catalog.
	mux.HandleFunc("POST /api/companies/{companyID}/quizzes", h.requireAuth(h.createQuiz))
	mux.HandleFunc("GET /api/companies/{companyID}/quizzes", h.requireAuth(h.listQuizzes))
	mux.HandleFunc("GET /api/companies/{companyID}/quizzes/{quizID}", h.requireAuth(h.getQuiz))
	mux.HandleFunc("DELETE /api/companies/{companyID}/quizzes/{quizID}", h.requireAuth(h.deleteQuiz))
	mux.HandleFunc("POST /api/companies/{companyID}/quizzes/{quizID}/publish", h.requireAuth(h.publishQuiz))
	mux.HandleFunc("POST /api/companies/{companyID}/quizzes/{quizID}/versions", h.requireAuth(h.forkQuiz))
	mux.HandleFunc("POST /api/companies/{companyID}/quizzes/{quizID}/questions", h.requireAuth(h.addQuestion))
	mux.HandleFunc("PUT /api/companies/{companyID}/quizzes/{quizID}/questions/{questionID}", h.requireAuth(h.updateQuestion))
	mux.HandleFunc("DELETE /api/companies/{companyID}/quizzes/{quizID}/questions/{questionID}", h.requireAuth(h.deleteQuestion))
	mux.HandleFunc("POST /api/companies/{companyID}/quizzes/{quizID}/questions/{questionID}/options", h.requireAuth(h.addOption))
	mux.HandleFunc("DELETE /api/companies/{companyID}/quizzes/{quizID}/questions/{questionID}/options/{optionID}", h.requireAuth(h.deleteOption))

	// Attempt lifecycle.
	mux.HandleFunc("POST /api/companies/{companyID}/quizzes/{quizID}/attempts", h.requireAuth(h.startAttempt))
	mux.HandleFunc("PUT /api/quizzes/{quizID}/attempts/{attemptID}/answers/{questionID}", h.requireAuth(h.saveAnswer))
	mux.HandleFunc("POST /api/quizzes/{quizID}/attempts/{attemptID}/finalize", h.requireAuth(h.finalizeAttempt))

	// Stats.
	mux.HandleFunc("GET /api/stats/me", h.requireAuth(h.myGlobalStats))
	mux.HandleFunc("GET /api/companies/{companyID}/stats/me", h.requireAuth(h.myCompanyStats))
	mux.HandleFunc("GET /api/quizzes/{quizID}/stats", h.requireAuth(h.quizStats))
	mux.HandleFunc("GET /ws/stats", h.requireAuth(h.serveStatsWS))

	return mux
}

// decode unmarshals the request body into dst and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	return id, err == nil
}

func parseQuery(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(r.URL.Query().Get(name))
}

// mustUUID parses a field the uuid validator tag already accepted.
func mustUUID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}
