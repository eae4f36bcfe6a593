package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"quizhub-service/internal/domain"
)

// Store bundles the per-aggregate repositories and the unit-of-work boundary.
// InTx runs fn against a transaction-bound Store; repositories obtained inside
// fn share one transaction, and GetForUpdate locks are held until fn returns.
type Store interface {
	Companies() CompanyRepository
	Memberships() MembershipRepository
	Quizzes() QuizRepository
	Attempts() AttemptRepository

	InTx(ctx context.Context, fn func(tx Store) error) error
}

// CompanyRepository manages tenant rows. Deleting a company cascades through
// quizzes down to attempt selections at the schema level.
type CompanyRepository interface {
	Create(ctx context.Context, company *domain.Company) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Company, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MembershipRepository manages (company, user) role rows.
type MembershipRepository interface {
	// Get returns domain.ErrNotAMember when no row exists.
	Get(ctx context.Context, companyID, userID uuid.UUID) (*domain.Membership, error)
	// GetForUpdate is Get with a row-level exclusive lock; only meaningful
	// inside InTx, where the lock lives until the transaction ends.
	GetForUpdate(ctx context.Context, companyID, userID uuid.UUID) (*domain.Membership, error)
	Create(ctx context.Context, m *domain.Membership) error
	UpdateRole(ctx context.Context, companyID, userID uuid.UUID, role domain.Role) error
	Delete(ctx context.Context, companyID, userID uuid.UUID) error
	CountWithRole(ctx context.Context, companyID uuid.UUID, role domain.Role) (int, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*domain.Membership, error)
}

// QuizRepository manages the quiz aggregate: quiz versions, questions and
// answer options.
type QuizRepository interface {
	Create(ctx context.Context, quiz *domain.Quiz) error
	// Get loads the quiz row without its question graph.
	Get(ctx context.Context, id uuid.UUID) (*domain.Quiz, error)
	// GetWithQuestions loads the quiz with questions and options, both in
	// position order.
	GetWithQuestions(ctx context.Context, id uuid.UUID) (*domain.Quiz, error)
	// List returns company quizzes; with onlyVisible set it filters to
	// published and visible versions.
	List(ctx context.Context, companyID uuid.UUID, onlyVisible bool, limit, offset int) ([]*domain.Quiz, error)
	Update(ctx context.Context, quiz *domain.Quiz) error
	Delete(ctx context.Context, id uuid.UUID) error
	// MaxVersion returns the highest version across the lineage of rootID,
	// the root itself included.
	MaxVersion(ctx context.Context, rootID uuid.UUID) (int, error)
	// HideSiblings clears is_visible on every other version of the lineage
	// in a single statement, leaving is_published untouched.
	HideSiblings(ctx context.Context, rootID, keepID uuid.UUID) error

	CreateQuestion(ctx context.Context, question *domain.Question) error
	GetQuestion(ctx context.Context, id uuid.UUID) (*domain.Question, error)
	UpdateQuestion(ctx context.Context, question *domain.Question) error
	DeleteQuestion(ctx context.Context, id uuid.UUID) error
	CreateOption(ctx context.Context, option *domain.AnswerOption) error
	DeleteOption(ctx context.Context, id uuid.UUID) error
}

// AttemptRepository manages attempts and their answer graphs. The lookup
// methods take the (attempt, quiz, user) triple so a mismatch on any leg
// reads as absence rather than leaking another user's attempt.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.Attempt) error
	// CountForQuiz counts a user's attempts of any status against one quiz,
	// scoped to the company.
	CountForQuiz(ctx context.Context, companyID, quizID, userID uuid.UUID) (int, error)
	// GetForUser returns domain.ErrNotFound unless all three ids match.
	GetForUser(ctx context.Context, attemptID, quizID, userID uuid.UUID) (*domain.Attempt, error)
	// GetWithAnswers eagerly loads answers, their selections, and each
	// answered question with its options, so scoring runs against one
	// consistent snapshot without further fetches.
	GetWithAnswers(ctx context.Context, attemptID, quizID, userID uuid.UUID) (*domain.Attempt, error)
	// UpsertAnswer replaces any prior selections for (attempt, question)
	// with the given option set.
	UpsertAnswer(ctx context.Context, attemptID, questionID uuid.UUID, optionIDs []uuid.UUID) error
	// Finalize persists score, counts, status and finished_at.
	Finalize(ctx context.Context, attempt *domain.Attempt) error
	// ListExpired returns in-progress attempts whose deadline passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Attempt, error)
}

// StatsReader serves the aggregate queries. Kept separate from Store because
// the postgres implementation reads through its own pool, not the ORM.
type StatsReader interface {
	UserStats(ctx context.Context, userID uuid.UUID, companyID *uuid.UUID) (domain.UserStats, error)
	QuizStats(ctx context.Context, quizID uuid.UUID) (domain.QuizStats, error)
}

// Cache is the key-value store used for derived, read-mostly data. Tag links
// cache keys to a mapping key; Invalidate deletes every key tagged under the
// given mapping keys, so writers only need to name what changed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Tag(ctx context.Context, mappingKey string, keys ...string) error
	Invalidate(ctx context.Context, mappingKeys ...string) error
}
