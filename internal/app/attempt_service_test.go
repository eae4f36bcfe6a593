package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

func TestExactMatchScoring(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	member := e.addMember(t, companyID, owner, domain.RoleMember)

	// One question with correct set {A, B} plus one wrong option, padded with
	// a second question so the quiz clears the publish bar.
	quizID, correct := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "exact"}, []quizSpec{
		{correct: 2, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	var target uuid.UUID
	var rightSet []uuid.UUID
	for qid, set := range correct {
		if len(set) == 2 {
			target = qid
			rightSet = set
		}
	}

	cases := []struct {
		name      string
		selection func(q *domain.Question) []uuid.UUID
		want      float64
	}{
		{
			name: "subset scores zero",
			selection: func(q *domain.Question) []uuid.UUID {
				return rightSet[:1]
			},
			want: 0,
		},
		{
			name: "exact set scores full",
			selection: func(q *domain.Question) []uuid.UUID {
				return rightSet
			},
			want: 100,
		},
		{
			name: "superset scores zero",
			selection: func(q *domain.Question) []uuid.UUID {
				ids := make([]uuid.UUID, 0, len(q.Options))
				for _, opt := range q.Options {
					ids = append(ids, opt.ID)
				}
				return ids
			},
			want: 0,
		},
	}

	question, err := e.store.Quizzes().GetQuestion(ctx, target)
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attempt, _, err := e.attempts.StartAttempt(ctx, companyID, quizID, member)
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			if err := e.attempts.SaveAnswer(ctx, member, quizID, attempt.ID, target, tc.selection(question)); err != nil {
				t.Fatalf("save: %v", err)
			}
			finalized, err := e.attempts.FinalizeAttempt(ctx, member, quizID, attempt.ID)
			if err != nil {
				t.Fatalf("finalize: %v", err)
			}
			if finalized.Score != tc.want {
				t.Fatalf("expected score %v, got %v", tc.want, finalized.Score)
			}
		})
	}
}

func TestScoreCountsAnsweredQuestionsOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, correct := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "partial"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	attempt, questions, err := e.attempts.StartAttempt(ctx, companyID, quizID, owner)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Answer one of three questions, correctly.
	q := questions[0]
	if err := e.attempts.SaveAnswer(ctx, owner, quizID, attempt.ID, q.ID, correct[q.ID]); err != nil {
		t.Fatalf("save: %v", err)
	}
	finalized, err := e.attempts.FinalizeAttempt(ctx, owner, quizID, attempt.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.TotalQuestionsCount != 1 || finalized.CorrectAnswersCount != 1 {
		t.Fatalf("expected 1/1 counted, got %d/%d", finalized.CorrectAnswersCount, finalized.TotalQuestionsCount)
	}
	if finalized.Score != 100 {
		t.Fatalf("unanswered questions must not dilute the score, got %v", finalized.Score)
	}
}

func TestFinalizeWithNoAnswersScoresZero(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "empty"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	attempt, _, err := e.attempts.StartAttempt(ctx, companyID, quizID, owner)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	finalized, err := e.attempts.FinalizeAttempt(ctx, owner, quizID, attempt.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.Score != 0 || finalized.TotalQuestionsCount != 0 {
		t.Fatalf("expected zero score on empty attempt, got %v over %d", finalized.Score, finalized.TotalQuestionsCount)
	}
}

func TestAttemptBudgetEnforced(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	one := 1
	quizID, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "budget", AllowedAttempts: &one}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	if _, _, err := e.attempts.StartAttempt(ctx, companyID, quizID, owner); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	// The first attempt is still in progress and already consumes the budget.
	if _, _, err := e.attempts.StartAttempt(ctx, companyID, quizID, owner); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on exhausted budget, got %v", err)
	}
}

func TestSaveAnswerReplacesPreviousSelection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, correct := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "resave"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	attempt, questions, err := e.attempts.StartAttempt(ctx, companyID, quizID, owner)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	q := questions[0]
	var wrong uuid.UUID
	for _, opt := range q.Options {
		if opt.ID != correct[q.ID][0] {
			wrong = opt.ID
		}
	}

	// Wrong first, then corrected. Only the last save counts.
	if err := e.attempts.SaveAnswer(ctx, owner, quizID, attempt.ID, q.ID, []uuid.UUID{wrong}); err != nil {
		t.Fatalf("save wrong: %v", err)
	}
	if err := e.attempts.SaveAnswer(ctx, owner, quizID, attempt.ID, q.ID, correct[q.ID]); err != nil {
		t.Fatalf("save right: %v", err)
	}
	finalized, err := e.attempts.FinalizeAttempt(ctx, owner, quizID, attempt.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.CorrectAnswersCount != 1 || finalized.TotalQuestionsCount != 1 {
		t.Fatalf("expected the replacement to win, got %d/%d", finalized.CorrectAnswersCount, finalized.TotalQuestionsCount)
	}
}

func TestWritesIntoFinishedAttemptRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, correct := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "done"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	attempt, questions, err := e.attempts.StartAttempt(ctx, companyID, quizID, owner)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.attempts.FinalizeAttempt(ctx, owner, quizID, attempt.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	q := questions[0]
	if err := e.attempts.SaveAnswer(ctx, owner, quizID, attempt.ID, q.ID, correct[q.ID]); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict writing into completed attempt, got %v", err)
	}
	if _, err := e.attempts.FinalizeAttempt(ctx, owner, quizID, attempt.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict finalizing twice, got %v", err)
	}
}

func TestExpiredAttemptClosesOnWrite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, correct := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "late"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	// Plant an attempt whose deadline already passed.
	past := time.Now().Add(-time.Minute)
	attempt := &domain.Attempt{
		ID:        uuid.New(),
		UserID:    owner,
		QuizID:    quizID,
		CompanyID: companyID,
		Status:    domain.AttemptInProgress,
		StartedAt: past.Add(-time.Minute),
		ExpiresAt: &past,
	}
	if err := e.store.Attempts().Create(ctx, attempt); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}

	var anyQuestion uuid.UUID
	for qid := range correct {
		anyQuestion = qid
	}
	err := e.attempts.SaveAnswer(ctx, owner, quizID, attempt.ID, anyQuestion, correct[anyQuestion])
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on expired attempt, got %v", err)
	}

	stored, err := e.store.Attempts().GetForUser(ctx, attempt.ID, quizID, owner)
	if err != nil {
		t.Fatalf("reload attempt: %v", err)
	}
	if stored.Status != domain.AttemptExpired {
		t.Fatalf("expected the write to close the attempt as expired, got %s", stored.Status)
	}
}

func TestFinalizePastDeadlineExpires(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "deadline"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	past := time.Now().Add(-time.Second)
	attempt := &domain.Attempt{
		ID:        uuid.New(),
		UserID:    owner,
		QuizID:    quizID,
		CompanyID: companyID,
		Status:    domain.AttemptInProgress,
		StartedAt: past.Add(-time.Minute),
		ExpiresAt: &past,
	}
	if err := e.store.Attempts().Create(ctx, attempt); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	finalized, err := e.attempts.FinalizeAttempt(ctx, owner, quizID, attempt.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.Status != domain.AttemptExpired {
		t.Fatalf("expected expired, got %s", finalized.Status)
	}
}

func TestStartAttemptAccessControl(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "gate"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	if _, _, err := e.attempts.StartAttempt(ctx, companyID, quizID, uuid.New()); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("stranger: expected not-a-member, got %v", err)
	}

	guest := uuid.New()
	if err := e.store.Memberships().Create(ctx, &domain.Membership{
		CompanyID: companyID,
		UserID:    guest,
		Role:      domain.RoleGuest,
		JoinedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("seed guest: %v", err)
	}
	if _, _, err := e.attempts.StartAttempt(ctx, companyID, quizID, guest); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("guest: expected forbidden, got %v", err)
	}
}

func TestForeignAttemptReadsAsAbsent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	member := e.addMember(t, companyID, owner, domain.RoleMember)
	quizID, correct := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "privacy"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	attempt, questions, err := e.attempts.StartAttempt(ctx, companyID, quizID, owner)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	q := questions[0]
	// Another member probing the owner's attempt id must see a 404-shaped
	// error, not a permission hint.
	if err := e.attempts.SaveAnswer(ctx, member, quizID, attempt.ID, q.ID, correct[q.ID]); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found for foreign attempt, got %v", err)
	}
	if _, err := e.attempts.FinalizeAttempt(ctx, member, quizID, attempt.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found for foreign finalize, got %v", err)
	}
}

func TestCloseExpiredSweepsStaleAttempts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "sweep"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	past := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		attempt := &domain.Attempt{
			ID:        uuid.New(),
			UserID:    owner,
			QuizID:    quizID,
			CompanyID: companyID,
			Status:    domain.AttemptInProgress,
			StartedAt: past.Add(-time.Minute),
			ExpiresAt: &past,
		}
		if err := e.store.Attempts().Create(ctx, attempt); err != nil {
			t.Fatalf("seed attempt: %v", err)
		}
	}
	// One live attempt that must survive the sweep.
	live, _, err := e.attempts.StartAttempt(ctx, companyID, quizID, owner)
	if err != nil {
		t.Fatalf("start live: %v", err)
	}

	closed, err := e.attempts.CloseExpired(ctx, 10)
	if err != nil {
		t.Fatalf("close expired: %v", err)
	}
	if closed != 3 {
		t.Fatalf("expected 3 closed, got %d", closed)
	}
	stored, err := e.store.Attempts().GetForUser(ctx, live.ID, quizID, owner)
	if err != nil {
		t.Fatalf("reload live: %v", err)
	}
	if stored.Status != domain.AttemptInProgress {
		t.Fatalf("live attempt must survive the sweep, got %s", stored.Status)
	}
}

func TestStartAttemptHidesCorrectness(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "sanitized"}, []quizSpec{
		{correct: 1, incorrect: 2},
		{correct: 2, incorrect: 1},
	})

	_, questions, err := e.attempts.StartAttempt(ctx, companyID, quizID, owner)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	for _, q := range questions {
		if len(q.Options) != 3 {
			t.Fatalf("expected all 3 options, got %d", len(q.Options))
		}
	}
}

func TestStartAttemptSetsDeadlineFromTimeLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)

	limit := 30
	timedQuiz, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "timed", TimeLimitMinutes: &limit}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	before := time.Now()
	attempt, _, err := e.attempts.StartAttempt(ctx, companyID, timedQuiz, owner)
	if err != nil {
		t.Fatalf("start timed: %v", err)
	}
	after := time.Now()
	if attempt.ExpiresAt == nil {
		t.Fatalf("expected a deadline on a time-limited quiz")
	}
	lo := before.Add(time.Duration(limit) * time.Minute)
	hi := after.Add(time.Duration(limit) * time.Minute)
	if attempt.ExpiresAt.Before(lo) || attempt.ExpiresAt.After(hi) {
		t.Fatalf("expected deadline ~start+%dm, got %v", limit, attempt.ExpiresAt)
	}

	openQuiz, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "untimed"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})
	attempt, _, err = e.attempts.StartAttempt(ctx, companyID, openQuiz, owner)
	if err != nil {
		t.Fatalf("start untimed: %v", err)
	}
	if attempt.ExpiresAt != nil {
		t.Fatalf("expected no deadline on an unbounded quiz, got %v", attempt.ExpiresAt)
	}
}
