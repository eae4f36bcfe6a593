package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
	"quizhub-service/internal/infra/memory"
)

// env wires the full service graph over the in-memory store, the same shape
// the server assembles in demo mode.
type env struct {
	store       *memory.Store
	cache       *memory.Cache
	feed        *app.StatsFeed
	stats       *app.StatsService
	memberships *app.MembershipService
	catalog     *app.CatalogService
	attempts    *app.AttemptService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	cache := memory.NewCache()
	log := zap.NewNop()
	feed := app.NewStatsFeed()
	stats := app.NewStatsService(store, cache, feed, time.Minute, log)
	memberships := app.NewMembershipService(store, log)
	return &env{
		store:       store,
		cache:       cache,
		feed:        feed,
		stats:       stats,
		memberships: memberships,
		catalog:     app.NewCatalogService(store, cache, memberships, log),
		attempts:    app.NewAttemptService(store, cache, stats, memberships, time.Minute, log),
	}
}

// newCompany creates a tenant owned by a fresh user and returns both ids.
func (e *env) newCompany(t *testing.T) (companyID, ownerID uuid.UUID) {
	t.Helper()
	ownerID = uuid.New()
	company, err := e.memberships.CreateCompany(context.Background(), ownerID, "acme", "")
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	return company.ID, ownerID
}

// addMember adds a fresh user at the given role and returns its id.
func (e *env) addMember(t *testing.T, companyID, actorID uuid.UUID, role domain.Role) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	if _, err := e.memberships.AddMember(context.Background(), companyID, actorID, userID, role); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return userID
}

// quizSpec describes one question for buildQuiz: how many correct and
// incorrect options it carries.
type quizSpec struct {
	correct   int
	incorrect int
}

// buildQuiz authors and publishes a quiz and returns its id together with the
// per-question correct option sets, keyed by question id.
func (e *env) buildQuiz(t *testing.T, companyID, adminID uuid.UUID, input app.CreateQuizInput, questions []quizSpec) (uuid.UUID, map[uuid.UUID][]uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	quiz, err := e.catalog.CreateQuiz(ctx, companyID, adminID, input)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	correct := make(map[uuid.UUID][]uuid.UUID, len(questions))
	for i, spec := range questions {
		question, err := e.catalog.AddQuestion(ctx, companyID, adminID, quiz.ID, "question", float64(i+1))
		if err != nil {
			t.Fatalf("add question: %v", err)
		}
		for c := 0; c < spec.correct; c++ {
			opt, err := e.catalog.AddOption(ctx, companyID, adminID, quiz.ID, question.ID, "right", true)
			if err != nil {
				t.Fatalf("add option: %v", err)
			}
			correct[question.ID] = append(correct[question.ID], opt.ID)
		}
		for w := 0; w < spec.incorrect; w++ {
			if _, err := e.catalog.AddOption(ctx, companyID, adminID, quiz.ID, question.ID, "wrong", false); err != nil {
				t.Fatalf("add option: %v", err)
			}
		}
	}
	if _, err := e.catalog.PublishQuiz(ctx, companyID, adminID, quiz.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return quiz.ID, correct
}
