package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

func TestPublishValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)

	quiz, err := e.catalog.CreateQuiz(ctx, companyID, owner, app.CreateQuizInput{Title: "draft"})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	// No questions at all.
	if _, err := e.catalog.PublishQuiz(ctx, companyID, owner, quiz.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("empty quiz: expected conflict, got %v", err)
	}

	q1, err := e.catalog.AddQuestion(ctx, companyID, owner, quiz.ID, "first question", 1)
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	q2, err := e.catalog.AddQuestion(ctx, companyID, owner, quiz.ID, "second question", 1)
	if err != nil {
		t.Fatalf("add question: %v", err)
	}

	// Both questions lack options; the error names the offending question.
	_, err = e.catalog.PublishQuiz(ctx, companyID, owner, quiz.ID)
	if !errors.Is(err, domain.ErrConflict) || !strings.Contains(err.Error(), "first question") {
		t.Fatalf("expected conflict naming the question, got %v", err)
	}

	// q1 gets a full option set, q2 only correct ones.
	if _, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, q1.ID, "right", true); err != nil {
		t.Fatalf("add option: %v", err)
	}
	if _, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, q1.ID, "wrong", false); err != nil {
		t.Fatalf("add option: %v", err)
	}
	if _, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, q2.ID, "right a", true); err != nil {
		t.Fatalf("add option: %v", err)
	}
	if _, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, q2.ID, "right b", true); err != nil {
		t.Fatalf("add option: %v", err)
	}
	_, err = e.catalog.PublishQuiz(ctx, companyID, owner, quiz.ID)
	if !errors.Is(err, domain.ErrConflict) || !strings.Contains(err.Error(), "incorrect option") {
		t.Fatalf("all-correct question: expected incorrect-option conflict, got %v", err)
	}

	if _, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, q2.ID, "wrong", false); err != nil {
		t.Fatalf("add option: %v", err)
	}
	published, err := e.catalog.PublishQuiz(ctx, companyID, owner, quiz.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !published.IsPublished || !published.IsVisible {
		t.Fatalf("expected published and visible, got %+v", published)
	}
}

func TestPublishedQuizIsFrozen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, correct := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "frozen"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	if _, err := e.catalog.AddQuestion(ctx, companyID, owner, quizID, "late", 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("add question: expected conflict, got %v", err)
	}
	for qid := range correct {
		if err := e.catalog.UpdateQuestion(ctx, companyID, owner, quizID, qid, "edited", 2); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("update question: expected conflict, got %v", err)
		}
		if err := e.catalog.DeleteQuestion(ctx, companyID, owner, quizID, qid); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("delete question: expected conflict, got %v", err)
		}
		break
	}
	if _, err := e.catalog.PublishQuiz(ctx, companyID, owner, quizID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("republish: expected conflict, got %v", err)
	}
}

func TestNewVersionForksDeepCopy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "lineage"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	fork, err := e.catalog.NewVersion(ctx, companyID, owner, quizID)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if fork.Version != 2 {
		t.Fatalf("expected version 2, got %d", fork.Version)
	}
	if fork.RootQuizID == nil || *fork.RootQuizID != quizID {
		t.Fatalf("expected root pointer to v1, got %v", fork.RootQuizID)
	}
	if fork.IsPublished || fork.IsVisible {
		t.Fatalf("fork must start as a hidden draft, got %+v", fork)
	}

	full, err := e.store.Quizzes().GetWithQuestions(ctx, fork.ID)
	if err != nil {
		t.Fatalf("load fork: %v", err)
	}
	original, err := e.store.Quizzes().GetWithQuestions(ctx, quizID)
	if err != nil {
		t.Fatalf("load original: %v", err)
	}
	if len(full.Questions) != len(original.Questions) {
		t.Fatalf("expected %d questions copied, got %d", len(original.Questions), len(full.Questions))
	}
	seen := make(map[string]bool)
	for _, q := range original.Questions {
		seen[q.ID.String()] = true
		for _, opt := range q.Options {
			seen[opt.ID.String()] = true
		}
	}
	for _, q := range full.Questions {
		if seen[q.ID.String()] {
			t.Fatalf("fork reused question id %s", q.ID)
		}
		for _, opt := range q.Options {
			if seen[opt.ID.String()] {
				t.Fatalf("fork reused option id %s", opt.ID)
			}
		}
	}

	// Editing the fork must not leak into the published version.
	if _, err := e.catalog.AddQuestion(ctx, companyID, owner, fork.ID, "fork only", 1); err != nil {
		t.Fatalf("edit fork: %v", err)
	}
	original, err = e.store.Quizzes().GetWithQuestions(ctx, quizID)
	if err != nil {
		t.Fatalf("reload original: %v", err)
	}
	if len(original.Questions) != 2 {
		t.Fatalf("editing the fork touched the original: %d questions", len(original.Questions))
	}
}

func TestRepublishHidesSiblings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	quizID, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "v1"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	fork, err := e.catalog.NewVersion(ctx, companyID, owner, quizID)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if _, err := e.catalog.PublishQuiz(ctx, companyID, owner, fork.ID); err != nil {
		t.Fatalf("publish fork: %v", err)
	}

	v1, err := e.store.Quizzes().Get(ctx, quizID)
	if err != nil {
		t.Fatalf("load v1: %v", err)
	}
	if v1.IsVisible {
		t.Fatalf("v1 must be hidden after v2 publishes")
	}
	if !v1.IsPublished {
		t.Fatalf("hiding must not unpublish v1")
	}
	v2, err := e.store.Quizzes().Get(ctx, fork.ID)
	if err != nil {
		t.Fatalf("load v2: %v", err)
	}
	if !v2.IsPublished || !v2.IsVisible {
		t.Fatalf("v2 must be live, got %+v", v2)
	}
}

func TestVisibilityFiltering(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	member := e.addMember(t, companyID, owner, domain.RoleMember)

	published, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "live"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})
	draft, err := e.catalog.CreateQuiz(ctx, companyID, owner, app.CreateQuizInput{Title: "draft"})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}

	memberList, err := e.catalog.ListQuizzes(ctx, companyID, member, 50, 0)
	if err != nil {
		t.Fatalf("member list: %v", err)
	}
	if len(memberList) != 1 || memberList[0].ID != published {
		t.Fatalf("member must see only the live version, got %d quizzes", len(memberList))
	}
	adminList, err := e.catalog.ListQuizzes(ctx, companyID, owner, 50, 0)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(adminList) != 2 {
		t.Fatalf("admin must see drafts too, got %d quizzes", len(adminList))
	}

	// A draft reads as absent for a member, not as forbidden.
	if _, err := e.catalog.GetQuiz(ctx, companyID, member, draft.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("draft via member: expected not-found, got %v", err)
	}
	if _, err := e.catalog.GetQuiz(ctx, companyID, owner, draft.ID); err != nil {
		t.Fatalf("draft via admin: %v", err)
	}
}

func TestDeleteQuizRequiresOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)
	admin := e.addMember(t, companyID, owner, domain.RoleAdmin)
	quizID, _ := e.buildQuiz(t, companyID, owner, app.CreateQuizInput{Title: "gone"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	if err := e.catalog.DeleteQuiz(ctx, companyID, admin, quizID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin delete: expected forbidden, got %v", err)
	}
	if err := e.catalog.DeleteQuiz(ctx, companyID, owner, quizID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := e.store.Quizzes().Get(ctx, quizID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected quiz gone, got %v", err)
	}
}

func TestQuizzesAreCompanyScoped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyA, ownerA := e.newCompany(t)
	companyB, ownerB := e.newCompany(t)
	quizID, _ := e.buildQuiz(t, companyA, ownerA, app.CreateQuizInput{Title: "tenant a"}, []quizSpec{
		{correct: 1, incorrect: 1},
		{correct: 1, incorrect: 1},
	})

	// Another tenant's admin addressing the quiz through their own company
	// sees nothing.
	if _, err := e.catalog.GetQuiz(ctx, companyB, ownerB, quizID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cross-tenant read: expected not-found, got %v", err)
	}
	if _, _, err := e.attempts.StartAttempt(ctx, companyB, quizID, ownerB); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cross-tenant attempt: expected not-found, got %v", err)
	}
}

func TestDeleteOptionOnDraftOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	companyID, owner := e.newCompany(t)

	quiz, err := e.catalog.CreateQuiz(ctx, companyID, owner, app.CreateQuizInput{Title: "options"})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	question, err := e.catalog.AddQuestion(ctx, companyID, owner, quiz.ID, "pick one", 1)
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	keep, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, question.ID, "right", true)
	if err != nil {
		t.Fatalf("add option: %v", err)
	}
	if _, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, question.ID, "wrong", false); err != nil {
		t.Fatalf("add option: %v", err)
	}
	drop, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, question.ID, "typo", false)
	if err != nil {
		t.Fatalf("add option: %v", err)
	}

	if err := e.catalog.DeleteOption(ctx, companyID, owner, quiz.ID, question.ID, drop.ID); err != nil {
		t.Fatalf("delete option: %v", err)
	}
	got, err := e.catalog.GetQuiz(ctx, companyID, owner, quiz.ID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if len(got.Questions) != 1 || len(got.Questions[0].Options) != 2 {
		t.Fatalf("expected 2 options to remain, got %+v", got.Questions)
	}
	for _, opt := range got.Questions[0].Options {
		if opt.ID == drop.ID {
			t.Fatalf("deleted option still present")
		}
	}

	if err := e.catalog.DeleteOption(ctx, companyID, owner, quiz.ID, question.ID, drop.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found for a gone option, got %v", err)
	}

	second, err := e.catalog.AddQuestion(ctx, companyID, owner, quiz.ID, "and another", 1)
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	if _, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, second.ID, "right", true); err != nil {
		t.Fatalf("add option: %v", err)
	}
	if _, err := e.catalog.AddOption(ctx, companyID, owner, quiz.ID, second.ID, "wrong", false); err != nil {
		t.Fatalf("add option: %v", err)
	}
	if _, err := e.catalog.PublishQuiz(ctx, companyID, owner, quiz.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := e.catalog.DeleteOption(ctx, companyID, owner, quiz.ID, question.ID, keep.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on a published quiz, got %v", err)
	}
}
