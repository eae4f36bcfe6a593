package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

// NewDB opens a bun handle over the pgdriver connector.
func NewDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store implements app.Store on bun. A Store is either bound to the root
// connection or, inside InTx, to a transaction; repositories issued by either
// share that binding, so FOR UPDATE locks taken inside InTx hold until the
// transaction ends.
type Store struct {
	db   bun.IDB
	root *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, root: db}
}

func (s *Store) Companies() app.CompanyRepository      { return &companyRepo{s} }
func (s *Store) Memberships() app.MembershipRepository { return &membershipRepo{s} }
func (s *Store) Quizzes() app.QuizRepository           { return &quizRepo{s} }
func (s *Store) Attempts() app.AttemptRepository       { return &attemptRepo{s} }

func (s *Store) InTx(ctx context.Context, fn func(tx app.Store) error) error {
	if _, ok := s.db.(bun.Tx); ok {
		// Already transaction-bound; joins the enclosing transaction.
		return fn(s)
	}
	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(&Store{db: tx, root: s.root})
	})
}

// translateError maps storage errors to domain kinds at the repository
// boundary so raw driver errors never leak upward.
func translateError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

// --- companies ---

type companyRepo struct{ s *Store }

func (r *companyRepo) Create(ctx context.Context, company *domain.Company) error {
	_, err := r.s.db.NewInsert().Model(company).Exec(ctx)
	return translateError(err, nil)
}

func (r *companyRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Company, error) {
	company := new(domain.Company)
	err := r.s.db.NewSelect().Model(company).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, translateError(err, domain.NotFoundf("company %s not found", id))
	}
	return company, nil
}

func (r *companyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.s.db.NewDelete().Model((*domain.Company)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("company %s not found", id)
	}
	return nil
}

// --- memberships ---

type membershipRepo struct{ s *Store }

func (r *membershipRepo) Get(ctx context.Context, companyID, userID uuid.UUID) (*domain.Membership, error) {
	m := new(domain.Membership)
	err := r.s.db.NewSelect().Model(m).
		Where("company_id = ?", companyID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, translateError(err, domain.ErrNotAMember)
	}
	return m, nil
}

func (r *membershipRepo) GetForUpdate(ctx context.Context, companyID, userID uuid.UUID) (*domain.Membership, error) {
	m := new(domain.Membership)
	err := r.s.db.NewSelect().Model(m).
		Where("company_id = ?", companyID).
		Where("user_id = ?", userID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, translateError(err, domain.ErrNotAMember)
	}
	return m, nil
}

func (r *membershipRepo) Create(ctx context.Context, m *domain.Membership) error {
	_, err := r.s.db.NewInsert().Model(m).Exec(ctx)
	return translateError(err, nil)
}

func (r *membershipRepo) UpdateRole(ctx context.Context, companyID, userID uuid.UUID, role domain.Role) error {
	res, err := r.s.db.NewUpdate().Model((*domain.Membership)(nil)).
		Set("role = ?", role).
		Where("company_id = ?", companyID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotAMember
	}
	return nil
}

func (r *membershipRepo) Delete(ctx context.Context, companyID, userID uuid.UUID) error {
	res, err := r.s.db.NewDelete().Model((*domain.Membership)(nil)).
		Where("company_id = ?", companyID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotAMember
	}
	return nil
}

func (r *membershipRepo) CountWithRole(ctx context.Context, companyID uuid.UUID, role domain.Role) (int, error) {
	return r.s.db.NewSelect().Model((*domain.Membership)(nil)).
		Where("company_id = ?", companyID).
		Where("role = ?", role).
		Count(ctx)
}

func (r *membershipRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*domain.Membership, error) {
	var members []*domain.Membership
	err := r.s.db.NewSelect().Model(&members).
		Where("company_id = ?", companyID).
		Order("joined_at ASC").
		Scan(ctx)
	return members, err
}

// --- quizzes ---

type quizRepo struct{ s *Store }

func (r *quizRepo) Create(ctx context.Context, quiz *domain.Quiz) error {
	_, err := r.s.db.NewInsert().Model(quiz).Exec(ctx)
	return translateError(err, nil)
}

func (r *quizRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Quiz, error) {
	quiz := new(domain.Quiz)
	err := r.s.db.NewSelect().Model(quiz).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, translateError(err, domain.NotFoundf("quiz %s not found", id))
	}
	return quiz, nil
}

func (r *quizRepo) GetWithQuestions(ctx context.Context, id uuid.UUID) (*domain.Quiz, error) {
	quiz := new(domain.Quiz)
	err := r.s.db.NewSelect().Model(quiz).
		Where("quiz.id = ?", id).
		Relation("Questions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Relation("Questions.Options", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Scan(ctx)
	if err != nil {
		return nil, translateError(err, domain.NotFoundf("quiz %s not found", id))
	}
	return quiz, nil
}

func (r *quizRepo) List(ctx context.Context, companyID uuid.UUID, onlyVisible bool, limit, offset int) ([]*domain.Quiz, error) {
	var quizzes []*domain.Quiz
	q := r.s.db.NewSelect().Model(&quizzes).
		Where("company_id = ?", companyID).
		Order("created_at ASC")
	if onlyVisible {
		q = q.Where("is_published AND is_visible")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return quizzes, q.Scan(ctx)
}

func (r *quizRepo) Update(ctx context.Context, quiz *domain.Quiz) error {
	res, err := r.s.db.NewUpdate().Model(quiz).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("quiz %s not found", quiz.ID)
	}
	return nil
}

func (r *quizRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.s.db.NewDelete().Model((*domain.Quiz)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("quiz %s not found", id)
	}
	return nil
}

func (r *quizRepo) MaxVersion(ctx context.Context, rootID uuid.UUID) (int, error) {
	var max int
	err := r.s.db.NewSelect().Model((*domain.Quiz)(nil)).
		ColumnExpr("coalesce(max(version), 0)").
		Where("id = ? OR root_quiz_id = ?", rootID, rootID).
		Scan(ctx, &max)
	return max, err
}

// HideSiblings is a single atomic UPDATE so there is never a window with two
// visible versions of one lineage.
func (r *quizRepo) HideSiblings(ctx context.Context, rootID, keepID uuid.UUID) error {
	_, err := r.s.db.NewUpdate().Model((*domain.Quiz)(nil)).
		Set("is_visible = FALSE").
		Where("id = ? OR root_quiz_id = ?", rootID, rootID).
		Where("id != ?", keepID).
		Exec(ctx)
	return err
}

func (r *quizRepo) CreateQuestion(ctx context.Context, question *domain.Question) error {
	err := r.s.InTx(ctx, func(tx app.Store) error {
		txr := tx.(*Store)
		if _, err := txr.db.NewInsert().Model(question).Exec(ctx); err != nil {
			return err
		}
		if len(question.Options) > 0 {
			if _, err := txr.db.NewInsert().Model(&question.Options).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	return translateError(err, nil)
}

func (r *quizRepo) GetQuestion(ctx context.Context, id uuid.UUID) (*domain.Question, error) {
	question := new(domain.Question)
	err := r.s.db.NewSelect().Model(question).
		Where("question.id = ?", id).
		Relation("Options", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Scan(ctx)
	if err != nil {
		return nil, translateError(err, domain.NotFoundf("question %s not found", id))
	}
	return question, nil
}

func (r *quizRepo) UpdateQuestion(ctx context.Context, question *domain.Question) error {
	res, err := r.s.db.NewUpdate().Model(question).
		Column("text", "points", "position").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("question %s not found", question.ID)
	}
	return nil
}

func (r *quizRepo) DeleteQuestion(ctx context.Context, id uuid.UUID) error {
	res, err := r.s.db.NewDelete().Model((*domain.Question)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("question %s not found", id)
	}
	return nil
}

func (r *quizRepo) CreateOption(ctx context.Context, option *domain.AnswerOption) error {
	_, err := r.s.db.NewInsert().Model(option).Exec(ctx)
	return translateError(err, nil)
}

func (r *quizRepo) DeleteOption(ctx context.Context, id uuid.UUID) error {
	res, err := r.s.db.NewDelete().Model((*domain.AnswerOption)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("option %s not found", id)
	}
	return nil
}

// --- attempts ---

type attemptRepo struct{ s *Store }

func (r *attemptRepo) Create(ctx context.Context, attempt *domain.Attempt) error {
	_, err := r.s.db.NewInsert().Model(attempt).Exec(ctx)
	return translateError(err, nil)
}

func (r *attemptRepo) CountForQuiz(ctx context.Context, companyID, quizID, userID uuid.UUID) (int, error) {
	return r.s.db.NewSelect().Model((*domain.Attempt)(nil)).
		Where("company_id = ?", companyID).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Count(ctx)
}

func (r *attemptRepo) GetForUser(ctx context.Context, attemptID, quizID, userID uuid.UUID) (*domain.Attempt, error) {
	attempt := new(domain.Attempt)
	err := r.s.db.NewSelect().Model(attempt).
		Where("id = ?", attemptID).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, translateError(err, domain.NotFoundf("attempt %s not found", attemptID))
	}
	return attempt, nil
}

// GetWithAnswers loads the four-level graph in one go: answers, selections,
// each answered question and its options. Scoring never fetches after this.
func (r *attemptRepo) GetWithAnswers(ctx context.Context, attemptID, quizID, userID uuid.UUID) (*domain.Attempt, error) {
	attempt := new(domain.Attempt)
	err := r.s.db.NewSelect().Model(attempt).
		Where("attempt.id = ?", attemptID).
		Where("attempt.quiz_id = ?", quizID).
		Where("attempt.user_id = ?", userID).
		Relation("Answers").
		Relation("Answers.Selections").
		Relation("Answers.Question").
		Relation("Answers.Question.Options").
		Scan(ctx)
	if err != nil {
		return nil, translateError(err, domain.NotFoundf("attempt %s not found", attemptID))
	}
	return attempt, nil
}

// UpsertAnswer implements latest-submission-wins: any prior selections for
// the (attempt, question) pair are cleared before the new set goes in.
func (r *attemptRepo) UpsertAnswer(ctx context.Context, attemptID, questionID uuid.UUID, optionIDs []uuid.UUID) error {
	return r.s.InTx(ctx, func(tx app.Store) error {
		txr := tx.(*Store)

		answer := new(domain.AttemptAnswer)
		err := txr.db.NewSelect().Model(answer).
			Where("attempt_id = ?", attemptID).
			Where("question_id = ?", questionID).
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			answer = &domain.AttemptAnswer{
				ID:         uuid.New(),
				AttemptID:  attemptID,
				QuestionID: questionID,
			}
			if _, err := txr.db.NewInsert().Model(answer).Exec(ctx); err != nil {
				return translateError(err, nil)
			}
		case err != nil:
			return err
		default:
			if _, err := txr.db.NewDelete().Model((*domain.AttemptAnswerSelection)(nil)).
				Where("answer_id = ?", answer.ID).
				Exec(ctx); err != nil {
				return err
			}
		}

		if len(optionIDs) == 0 {
			return nil
		}
		selections := make([]*domain.AttemptAnswerSelection, 0, len(optionIDs))
		for _, optionID := range optionIDs {
			selections = append(selections, &domain.AttemptAnswerSelection{
				ID:       uuid.New(),
				AnswerID: answer.ID,
				OptionID: optionID,
			})
		}
		_, err = txr.db.NewInsert().Model(&selections).Exec(ctx)
		return translateError(err, nil)
	})
}

func (r *attemptRepo) Finalize(ctx context.Context, attempt *domain.Attempt) error {
	res, err := r.s.db.NewUpdate().Model(attempt).
		Column("status", "score", "correct_answers_count", "total_questions_count", "finished_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("attempt %s not found", attempt.ID)
	}
	return nil
}

func (r *attemptRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Attempt, error) {
	var attempts []*domain.Attempt
	q := r.s.db.NewSelect().Model(&attempts).
		Where("status = ?", domain.AttemptInProgress).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return attempts, q.Scan(ctx)
}
