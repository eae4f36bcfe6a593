package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizhub-service/internal/domain"
)

// CatalogService manages quiz versions: authoring while unpublished, the
// one-way publish gate, and version forks.
type CatalogService struct {
	store       Store
	cache       Cache
	memberships *MembershipService
	log         *zap.Logger
	now         func() time.Time
}

func NewCatalogService(store Store, cache Cache, memberships *MembershipService, log *zap.Logger) *CatalogService {
	return &CatalogService{
		store:       store,
		cache:       cache,
		memberships: memberships,
		log:         log.With(zap.String("service", "catalog")),
		now:         time.Now,
	}
}

// CreateQuizInput carries the authoring fields of a quiz version.
type CreateQuizInput struct {
	Title            string
	Description      string
	AllowedAttempts  *int
	TimeLimitMinutes *int
}

// CreateQuiz starts a new lineage: version 1, no root pointer, draft.
func (s *CatalogService) CreateQuiz(ctx context.Context, companyID, actorID uuid.UUID, input CreateQuizInput) (*domain.Quiz, error) {
	if err := s.memberships.AssertPermissions(ctx, companyID, actorID, domain.RoleAdmin, false); err != nil {
		return nil, err
	}
	now := s.now()
	quiz := &domain.Quiz{
		ID:               uuid.New(),
		CompanyID:        companyID,
		Title:            input.Title,
		Description:      input.Description,
		AllowedAttempts:  input.AllowedAttempts,
		TimeLimitMinutes: input.TimeLimitMinutes,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Quizzes().Create(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

// GetQuiz fetches one quiz with its question graph. Admins see every version;
// everyone else only published, visible ones. For non-admins a draft or
// hidden quiz reads as absent, not forbidden.
func (s *CatalogService) GetQuiz(ctx context.Context, companyID, actorID, quizID uuid.UUID) (*domain.Quiz, error) {
	if err := s.memberships.AssertPermissions(ctx, companyID, actorID, domain.RoleMember, false); err != nil {
		return nil, err
	}
	quiz, err := s.store.Quizzes().GetWithQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	if !s.memberships.HasPermissions(ctx, companyID, actorID, domain.RoleAdmin, false) {
		if !quiz.IsPublished || !quiz.IsVisible {
			return nil, domain.ErrNotFound
		}
	}
	return quiz, nil
}

// ListQuizzes applies the same dual filter as GetQuiz to the paginated list.
func (s *CatalogService) ListQuizzes(ctx context.Context, companyID, actorID uuid.UUID, limit, offset int) ([]*domain.Quiz, error) {
	if err := s.memberships.AssertPermissions(ctx, companyID, actorID, domain.RoleMember, false); err != nil {
		return nil, err
	}
	onlyVisible := !s.memberships.HasPermissions(ctx, companyID, actorID, domain.RoleAdmin, false)
	return s.store.Quizzes().List(ctx, companyID, onlyVisible, limit, offset)
}

// editableQuiz loads a quiz for mutation: ADMIN required, version still
// unpublished.
func (s *CatalogService) editableQuiz(ctx context.Context, companyID, actorID, quizID uuid.UUID) (*domain.Quiz, error) {
	if err := s.memberships.AssertPermissions(ctx, companyID, actorID, domain.RoleAdmin, false); err != nil {
		return nil, err
	}
	quiz, err := s.store.Quizzes().Get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	if quiz.IsPublished {
		return nil, domain.Conflictf("quiz is published; create a new version to edit it")
	}
	return quiz, nil
}

// AddQuestion appends a question to an unpublished quiz.
func (s *CatalogService) AddQuestion(ctx context.Context, companyID, actorID, quizID uuid.UUID, text string, points float64) (*domain.Question, error) {
	quiz, err := s.editableQuiz(ctx, companyID, actorID, quizID)
	if err != nil {
		return nil, err
	}
	full, err := s.store.Quizzes().GetWithQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}
	if points <= 0 {
		points = 1
	}
	question := &domain.Question{
		ID:       uuid.New(),
		QuizID:   quiz.ID,
		Text:     text,
		Points:   points,
		Position: len(full.Questions),
	}
	if err := s.store.Quizzes().CreateQuestion(ctx, question); err != nil {
		return nil, err
	}
	return question, s.invalidateQuiz(ctx, quiz.ID)
}

// UpdateQuestion rewrites a question's text and points on an unpublished quiz.
func (s *CatalogService) UpdateQuestion(ctx context.Context, companyID, actorID, quizID, questionID uuid.UUID, text string, points float64) error {
	if _, err := s.editableQuiz(ctx, companyID, actorID, quizID); err != nil {
		return err
	}
	question, err := s.store.Quizzes().GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if question.QuizID != quizID {
		return domain.ErrNotFound
	}
	question.Text = text
	if points > 0 {
		question.Points = points
	}
	if err := s.store.Quizzes().UpdateQuestion(ctx, question); err != nil {
		return err
	}
	return s.invalidateQuiz(ctx, quizID)
}

// DeleteQuestion removes a question (and, via cascade, its options) from an
// unpublished quiz.
func (s *CatalogService) DeleteQuestion(ctx context.Context, companyID, actorID, quizID, questionID uuid.UUID) error {
	if _, err := s.editableQuiz(ctx, companyID, actorID, quizID); err != nil {
		return err
	}
	question, err := s.store.Quizzes().GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if question.QuizID != quizID {
		return domain.ErrNotFound
	}
	if err := s.store.Quizzes().DeleteQuestion(ctx, questionID); err != nil {
		return err
	}
	return s.invalidateQuiz(ctx, quizID)
}

// AddOption appends an answer option to a question of an unpublished quiz.
func (s *CatalogService) AddOption(ctx context.Context, companyID, actorID, quizID, questionID uuid.UUID, text string, isCorrect bool) (*domain.AnswerOption, error) {
	if _, err := s.editableQuiz(ctx, companyID, actorID, quizID); err != nil {
		return nil, err
	}
	question, err := s.store.Quizzes().GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if question.QuizID != quizID {
		return nil, domain.ErrNotFound
	}
	option := &domain.AnswerOption{
		ID:         uuid.New(),
		QuestionID: questionID,
		Text:       text,
		IsCorrect:  isCorrect,
		Position:   len(question.Options),
	}
	if err := s.store.Quizzes().CreateOption(ctx, option); err != nil {
		return nil, err
	}
	return option, s.invalidateQuiz(ctx, quizID)
}

// DeleteOption removes one answer option from a question of an unpublished
// quiz.
func (s *CatalogService) DeleteOption(ctx context.Context, companyID, actorID, quizID, questionID, optionID uuid.UUID) error {
	if _, err := s.editableQuiz(ctx, companyID, actorID, quizID); err != nil {
		return err
	}
	question, err := s.store.Quizzes().GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if question.QuizID != quizID {
		return domain.ErrNotFound
	}
	found := false
	for _, opt := range question.Options {
		if opt.ID == optionID {
			found = true
			break
		}
	}
	if !found {
		return domain.ErrNotFound
	}
	if err := s.store.Quizzes().DeleteOption(ctx, optionID); err != nil {
		return err
	}
	return s.invalidateQuiz(ctx, quizID)
}

// PublishQuiz validates the question graph and flips the version live. When
// the lineage already has published versions, their visibility is cleared in
// the same transaction so at most one version is visible at any moment.
func (s *CatalogService) PublishQuiz(ctx context.Context, companyID, actorID, quizID uuid.UUID) (*domain.Quiz, error) {
	if err := s.memberships.AssertPermissions(ctx, companyID, actorID, domain.RoleAdmin, false); err != nil {
		return nil, err
	}
	quiz, err := s.store.Quizzes().GetWithQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	if quiz.IsPublished {
		return nil, domain.Conflictf("quiz is already published")
	}
	if err := validatePublish(quiz); err != nil {
		return nil, err
	}

	quiz.IsPublished = true
	quiz.IsVisible = true
	quiz.UpdatedAt = s.now()
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.Quizzes().HideSiblings(ctx, quiz.RootID(), quiz.ID); err != nil {
			return err
		}
		return tx.Quizzes().Update(ctx, quiz)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("quiz published",
		zap.String("quiz_id", quiz.ID.String()),
		zap.Int("version", quiz.Version))
	return quiz, s.invalidateQuiz(ctx, quiz.RootID(), quiz.ID)
}

// validatePublish enforces the publish minimums: at least two questions; each
// question at least two options, one correct and one incorrect.
func validatePublish(quiz *domain.Quiz) error {
	if len(quiz.Questions) < 2 {
		return domain.Conflictf("quiz must have at least 2 questions to be published")
	}
	for _, q := range quiz.Questions {
		if len(q.Options) < 2 {
			return domain.Conflictf("question %q must have at least 2 answer options", truncate(q.Text, 50))
		}
		correct, incorrect := 0, 0
		for _, opt := range q.Options {
			if opt.IsCorrect {
				correct++
			} else {
				incorrect++
			}
		}
		if correct == 0 {
			return domain.Conflictf("question %q must have at least one correct option", truncate(q.Text, 50))
		}
		if incorrect == 0 {
			return domain.Conflictf("question %q must have at least one incorrect option", truncate(q.Text, 50))
		}
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// NewVersion forks quizID into the next draft of its lineage: a full
// structural copy of questions and options with fresh identities.
func (s *CatalogService) NewVersion(ctx context.Context, companyID, actorID, quizID uuid.UUID) (*domain.Quiz, error) {
	if err := s.memberships.AssertPermissions(ctx, companyID, actorID, domain.RoleAdmin, false); err != nil {
		return nil, err
	}
	curr, err := s.store.Quizzes().GetWithQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if curr.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}

	rootID := curr.RootID()
	now := s.now()
	next := &domain.Quiz{
		ID:               uuid.New(),
		CompanyID:        curr.CompanyID,
		Title:            curr.Title,
		Description:      curr.Description,
		AllowedAttempts:  curr.AllowedAttempts,
		TimeLimitMinutes: curr.TimeLimitMinutes,
		RootQuizID:       &rootID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.store.InTx(ctx, func(tx Store) error {
		maxVersion, err := tx.Quizzes().MaxVersion(ctx, rootID)
		if err != nil {
			return err
		}
		next.Version = maxVersion + 1
		if err := tx.Quizzes().Create(ctx, next); err != nil {
			return err
		}
		for _, q := range curr.Questions {
			clone := q.Clone(next.ID)
			if err := tx.Quizzes().CreateQuestion(ctx, clone); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("quiz version forked",
		zap.String("root_id", rootID.String()),
		zap.String("quiz_id", next.ID.String()),
		zap.Int("version", next.Version))
	return next, nil
}

// DeleteQuiz removes a version and everything under it, attempts included.
// Destructive, so gated on OWNER rather than ADMIN.
func (s *CatalogService) DeleteQuiz(ctx context.Context, companyID, actorID, quizID uuid.UUID) error {
	if err := s.memberships.AssertPermissions(ctx, companyID, actorID, domain.RoleOwner, false); err != nil {
		return err
	}
	quiz, err := s.store.Quizzes().Get(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.CompanyID != companyID {
		return domain.ErrNotFound
	}
	if err := s.store.Quizzes().Delete(ctx, quizID); err != nil {
		return err
	}
	return s.invalidateQuiz(ctx, quiz.RootID(), quiz.ID)
}

// invalidateQuiz drops every cache entry tagged under the given quiz ids.
// Called right after a successful write, never from storage hooks.
func (s *CatalogService) invalidateQuiz(ctx context.Context, quizIDs ...uuid.UUID) error {
	keys := make([]string, 0, len(quizIDs))
	for _, id := range quizIDs {
		keys = append(keys, QuizMappingKey(id))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		// Stale cache self-heals on TTL; the write already committed.
		s.log.Warn("cache invalidation failed", zap.Error(err))
	}
	return nil
}

// QuizMappingKey tags cache entries derived from one quiz version.
func QuizMappingKey(quizID uuid.UUID) string {
	return "map:quiz:" + quizID.String()
}
