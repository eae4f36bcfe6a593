package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quizhub-service/internal/domain"
)

// AttemptService orchestrates the attempt lifecycle: start, repeated answer
// saves, and the terminal finalize that scores the attempt.
type AttemptService struct {
	store       Store
	cache       Cache
	stats       *StatsService
	memberships *MembershipService
	log         *zap.Logger
	now         func() time.Time
	sf          singleflight.Group
	questionTTL time.Duration
}

func NewAttemptService(store Store, cache Cache, stats *StatsService, memberships *MembershipService, questionTTL time.Duration, log *zap.Logger) *AttemptService {
	return &AttemptService{
		store:       store,
		cache:       cache,
		stats:       stats,
		memberships: memberships,
		log:         log.With(zap.String("service", "attempt")),
		now:         time.Now,
		questionTTL: questionTTL,
	}
}

// StartAttempt opens a new attempt and returns it with the sanitized question
// set. The membership row is locked for the duration of the transaction so a
// concurrent removal cannot slip a just-removed user into an attempt.
func (s *AttemptService) StartAttempt(ctx context.Context, companyID, quizID, userID uuid.UUID) (*domain.Attempt, []domain.AttemptQuestion, error) {
	now := s.now()
	attempt := &domain.Attempt{
		ID:        uuid.New(),
		UserID:    userID,
		QuizID:    quizID,
		CompanyID: companyID,
		Status:    domain.AttemptInProgress,
		StartedAt: now,
	}

	err := s.store.InTx(ctx, func(tx Store) error {
		membership, err := tx.Memberships().GetForUpdate(ctx, companyID, userID)
		if err != nil {
			return err
		}
		if !membership.Role.IsAuthorized(domain.RoleMember, false) {
			return domain.ErrForbidden
		}

		quiz, err := tx.Quizzes().Get(ctx, quizID)
		if err != nil {
			return err
		}
		if quiz.CompanyID != companyID || !quiz.IsPublished || !quiz.IsVisible {
			return domain.ErrNotFound
		}

		if quiz.AllowedAttempts != nil {
			// Prior attempts of any status count against the budget.
			count, err := tx.Attempts().CountForQuiz(ctx, companyID, quizID, userID)
			if err != nil {
				return err
			}
			if count >= *quiz.AllowedAttempts {
				return domain.Conflictf("no attempts left for this quiz")
			}
		}

		if quiz.TimeLimitMinutes != nil {
			deadline := now.Add(time.Duration(*quiz.TimeLimitMinutes) * time.Minute)
			attempt.ExpiresAt = &deadline
		}
		return tx.Attempts().Create(ctx, attempt)
	})
	if err != nil {
		return nil, nil, err
	}

	questions, err := s.questionSet(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("attempt started",
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("quiz_id", quizID.String()),
		zap.String("user_id", userID.String()))
	return attempt, questions, nil
}

// questionSet returns the sanitized questions for a quiz, read through the
// cache. Entries are tagged under the quiz mapping key so catalog writes
// invalidate them.
func (s *AttemptService) questionSet(ctx context.Context, quizID uuid.UUID) ([]domain.AttemptQuestion, error) {
	key := "quiz:" + quizID.String() + ":questions"
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var cached []domain.AttemptQuestion
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		quiz, err := s.store.Quizzes().GetWithQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		questions := domain.SanitizeQuestions(quiz.Questions)
		if raw, err := json.Marshal(questions); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.questionTTL); err == nil {
				_ = s.cache.Tag(ctx, QuizMappingKey(quizID), key)
			}
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.AttemptQuestion), nil
}

// SaveAnswer records the latest selection set for one question. Re-saving the
// same question replaces the previous selections. Writes into finished or
// expired attempts are rejected; an expired attempt is closed as EXPIRED
// before the rejection surfaces.
func (s *AttemptService) SaveAnswer(ctx context.Context, userID, quizID, attemptID, questionID uuid.UUID, optionIDs []uuid.UUID) error {
	attempt, err := s.store.Attempts().GetForUser(ctx, attemptID, quizID, userID)
	if err != nil {
		return err
	}
	if attempt.IsTerminal() {
		return domain.Conflictf("attempt is %s", attempt.Status)
	}
	if attempt.IsExpired(s.now()) {
		if _, err := s.closeAttempt(ctx, attemptID, quizID, userID, domain.AttemptExpired); err != nil {
			return err
		}
		return domain.Conflictf("attempt is %s", domain.AttemptExpired)
	}

	question, err := s.store.Quizzes().GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if question.QuizID != quizID {
		return domain.ErrNotFound
	}
	valid := make(map[uuid.UUID]struct{}, len(question.Options))
	for _, opt := range question.Options {
		valid[opt.ID] = struct{}{}
	}
	for _, id := range optionIDs {
		if _, ok := valid[id]; !ok {
			return domain.NotFoundf("option %s does not belong to question", id)
		}
	}

	return s.store.Attempts().UpsertAnswer(ctx, attemptID, questionID, optionIDs)
}

// FinalizeAttempt scores the attempt and moves it to a terminal state:
// COMPLETED on an explicit submit, EXPIRED when the deadline already passed.
func (s *AttemptService) FinalizeAttempt(ctx context.Context, userID, quizID, attemptID uuid.UUID) (*domain.Attempt, error) {
	target := domain.AttemptCompleted
	probe, err := s.store.Attempts().GetForUser(ctx, attemptID, quizID, userID)
	if err != nil {
		return nil, err
	}
	if probe.IsTerminal() {
		return nil, domain.Conflictf("attempt is %s", probe.Status)
	}
	if probe.IsExpired(s.now()) {
		target = domain.AttemptExpired
	}
	return s.closeAttempt(ctx, attemptID, quizID, userID, target)
}

// closeAttempt loads the full answer graph, scores it, and persists the
// terminal state. Scoring walks the one eagerly loaded snapshot and never
// fetches per question.
func (s *AttemptService) closeAttempt(ctx context.Context, attemptID, quizID, userID uuid.UUID, target domain.AttemptStatus) (*domain.Attempt, error) {
	attempt, err := s.store.Attempts().GetWithAnswers(ctx, attemptID, quizID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.IsTerminal() {
		return nil, domain.Conflictf("attempt is %s", attempt.Status)
	}

	correct, total := scoreAttempt(attempt)
	attempt.CorrectAnswersCount = correct
	attempt.TotalQuestionsCount = total
	attempt.Score = 0
	if total > 0 {
		attempt.Score = float64(correct) / float64(total) * 100.0
	}
	finished := s.now()
	attempt.FinishedAt = &finished
	attempt.Status = target

	if err := s.store.Attempts().Finalize(ctx, attempt); err != nil {
		return nil, err
	}
	s.log.Info("attempt finalized",
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("status", string(attempt.Status)),
		zap.Float64("score", attempt.Score))

	// Post-commit invalidation: name what changed, let the mapping keys find
	// the cached views.
	s.stats.AttemptFinalized(ctx, attempt)
	return attempt, nil
}

// scoreAttempt applies exact-match scoring: a question counts as correct iff
// the selected option set equals the correct option set. A correct pick plus
// an extra wrong one scores as wrong; there is no partial credit. Only
// answered questions enter the denominator.
func scoreAttempt(attempt *domain.Attempt) (correct, total int) {
	for _, answer := range attempt.Answers {
		if answer.Question == nil {
			continue
		}
		total++
		if setsEqual(answer.SelectedOptionIDs(), answer.Question.CorrectOptionIDs()) {
			correct++
		}
	}
	return correct, total
}

func setsEqual(a, b map[uuid.UUID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// CloseExpired finalizes stale in-progress attempts as EXPIRED. Called by the
// reaper; lazy detection in SaveAnswer and FinalizeAttempt remains the
// correctness backstop.
func (s *AttemptService) CloseExpired(ctx context.Context, limit int) (int, error) {
	stale, err := s.store.Attempts().ListExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, attempt := range stale {
		if _, err := s.closeAttempt(ctx, attempt.ID, attempt.QuizID, attempt.UserID, domain.AttemptExpired); err != nil {
			s.log.Warn("failed to close expired attempt",
				zap.String("attempt_id", attempt.ID.String()),
				zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}
