package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

// Store is an in-memory implementation of app.Store (plus app.StatsReader),
// used by unit tests and by the server's no-database demo mode. Transactions
// are serialized on one mutex rather than isolated; row locks degrade to that
// same serialization, which is enough to keep the locked code paths honest in
// tests.
type Store struct {
	txMu sync.Mutex

	mu          sync.RWMutex
	companies   map[uuid.UUID]*domain.Company
	memberships map[membershipKey]*domain.Membership
	quizzes     map[uuid.UUID]*domain.Quiz
	questions   map[uuid.UUID]*domain.Question
	options     map[uuid.UUID]*domain.AnswerOption
	attempts    map[uuid.UUID]*domain.Attempt
	answers     map[uuid.UUID]*domain.AttemptAnswer
	selections  map[uuid.UUID]*domain.AttemptAnswerSelection
}

type membershipKey struct {
	companyID uuid.UUID
	userID    uuid.UUID
}

func NewStore() *Store {
	return &Store{
		companies:   make(map[uuid.UUID]*domain.Company),
		memberships: make(map[membershipKey]*domain.Membership),
		quizzes:     make(map[uuid.UUID]*domain.Quiz),
		questions:   make(map[uuid.UUID]*domain.Question),
		options:     make(map[uuid.UUID]*domain.AnswerOption),
		attempts:    make(map[uuid.UUID]*domain.Attempt),
		answers:     make(map[uuid.UUID]*domain.AttemptAnswer),
		selections:  make(map[uuid.UUID]*domain.AttemptAnswerSelection),
	}
}

func (s *Store) Companies() app.CompanyRepository      { return (*companyRepo)(s) }
func (s *Store) Memberships() app.MembershipRepository { return (*membershipRepo)(s) }
func (s *Store) Quizzes() app.QuizRepository           { return (*quizRepo)(s) }
func (s *Store) Attempts() app.AttemptRepository       { return (*attemptRepo)(s) }

func (s *Store) InTx(ctx context.Context, fn func(tx app.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

// --- companies ---

type companyRepo Store

func (r *companyRepo) Create(_ context.Context, company *domain.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[company.ID]; ok {
		return domain.AlreadyExistsf("company %s already exists", company.ID)
	}
	clone := *company
	r.companies[company.ID] = &clone
	return nil
}

func (r *companyRepo) Get(_ context.Context, id uuid.UUID) (*domain.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	company, ok := r.companies[id]
	if !ok {
		return nil, domain.NotFoundf("company %s not found", id)
	}
	clone := *company
	return &clone, nil
}

func (r *companyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[id]; !ok {
		return domain.NotFoundf("company %s not found", id)
	}
	delete(r.companies, id)
	for key := range r.memberships {
		if key.companyID == id {
			delete(r.memberships, key)
		}
	}
	for quizID, quiz := range r.quizzes {
		if quiz.CompanyID == id {
			(*quizRepo)(r).deleteQuizLocked(quizID)
		}
	}
	return nil
}

// --- memberships ---

type membershipRepo Store

func (r *membershipRepo) Get(_ context.Context, companyID, userID uuid.UUID) (*domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.memberships[membershipKey{companyID, userID}]
	if !ok {
		return nil, domain.ErrNotAMember
	}
	clone := *m
	return &clone, nil
}

// GetForUpdate degrades to Get: transaction serialization in InTx stands in
// for the row lock.
func (r *membershipRepo) GetForUpdate(ctx context.Context, companyID, userID uuid.UUID) (*domain.Membership, error) {
	return r.Get(ctx, companyID, userID)
}

func (r *membershipRepo) Create(_ context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := membershipKey{m.CompanyID, m.UserID}
	if _, ok := r.memberships[key]; ok {
		return domain.AlreadyExistsf("user %s is already a member", m.UserID)
	}
	clone := *m
	r.memberships[key] = &clone
	return nil
}

func (r *membershipRepo) UpdateRole(_ context.Context, companyID, userID uuid.UUID, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[membershipKey{companyID, userID}]
	if !ok {
		return domain.ErrNotAMember
	}
	m.Role = role
	return nil
}

func (r *membershipRepo) Delete(_ context.Context, companyID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := membershipKey{companyID, userID}
	if _, ok := r.memberships[key]; !ok {
		return domain.ErrNotAMember
	}
	delete(r.memberships, key)
	return nil
}

func (r *membershipRepo) CountWithRole(_ context.Context, companyID uuid.UUID, role domain.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for key, m := range r.memberships {
		if key.companyID == companyID && m.Role == role {
			count++
		}
	}
	return count, nil
}

func (r *membershipRepo) ListByCompany(_ context.Context, companyID uuid.UUID) ([]*domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Membership
	for key, m := range r.memberships {
		if key.companyID == companyID {
			clone := *m
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// --- quizzes ---

type quizRepo Store

func (r *quizRepo) Create(_ context.Context, quiz *domain.Quiz) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[quiz.ID]; ok {
		return domain.AlreadyExistsf("quiz %s already exists", quiz.ID)
	}
	clone := *quiz
	clone.Questions = nil
	r.quizzes[quiz.ID] = &clone
	return nil
}

func (r *quizRepo) Get(_ context.Context, id uuid.UUID) (*domain.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	quiz, ok := r.quizzes[id]
	if !ok {
		return nil, domain.NotFoundf("quiz %s not found", id)
	}
	clone := *quiz
	return &clone, nil
}

func (r *quizRepo) GetWithQuestions(_ context.Context, id uuid.UUID) (*domain.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	quiz, ok := r.quizzes[id]
	if !ok {
		return nil, domain.NotFoundf("quiz %s not found", id)
	}
	clone := *quiz
	clone.Questions = r.questionGraphLocked(id)
	return &clone, nil
}

// questionGraphLocked assembles ordered questions with ordered options.
func (r *quizRepo) questionGraphLocked(quizID uuid.UUID) []*domain.Question {
	var questions []*domain.Question
	for _, q := range r.questions {
		if q.QuizID != quizID {
			continue
		}
		qc := *q
		qc.Options = nil
		for _, opt := range r.options {
			if opt.QuestionID == q.ID {
				oc := *opt
				qc.Options = append(qc.Options, &oc)
			}
		}
		sort.Slice(qc.Options, func(i, j int) bool { return qc.Options[i].Position < qc.Options[j].Position })
		questions = append(questions, &qc)
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })
	return questions
}

func (r *quizRepo) List(_ context.Context, companyID uuid.UUID, onlyVisible bool, limit, offset int) ([]*domain.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Quiz
	for _, quiz := range r.quizzes {
		if quiz.CompanyID != companyID {
			continue
		}
		if onlyVisible && (!quiz.IsPublished || !quiz.IsVisible) {
			continue
		}
		clone := *quiz
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *quizRepo) Update(_ context.Context, quiz *domain.Quiz) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[quiz.ID]; !ok {
		return domain.NotFoundf("quiz %s not found", quiz.ID)
	}
	clone := *quiz
	clone.Questions = nil
	r.quizzes[quiz.ID] = &clone
	return nil
}

func (r *quizRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[id]; !ok {
		return domain.NotFoundf("quiz %s not found", id)
	}
	r.deleteQuizLocked(id)
	return nil
}

// deleteQuizLocked cascades: questions, options, attempts and their answers.
func (r *quizRepo) deleteQuizLocked(id uuid.UUID) {
	delete(r.quizzes, id)
	for questionID, q := range r.questions {
		if q.QuizID == id {
			r.deleteQuestionLocked(questionID)
		}
	}
	for attemptID, a := range r.attempts {
		if a.QuizID == id {
			(*attemptRepo)(r).deleteAttemptLocked(attemptID)
		}
	}
}

func (r *quizRepo) deleteQuestionLocked(id uuid.UUID) {
	delete(r.questions, id)
	for optionID, opt := range r.options {
		if opt.QuestionID == id {
			delete(r.options, optionID)
		}
	}
	for answerID, ans := range r.answers {
		if ans.QuestionID == id {
			(*attemptRepo)(r).deleteAnswerLocked(answerID)
		}
	}
}

func (r *quizRepo) MaxVersion(_ context.Context, rootID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	max := 0
	for _, quiz := range r.quizzes {
		if quiz.ID == rootID || (quiz.RootQuizID != nil && *quiz.RootQuizID == rootID) {
			if quiz.Version > max {
				max = quiz.Version
			}
		}
	}
	return max, nil
}

func (r *quizRepo) HideSiblings(_ context.Context, rootID, keepID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, quiz := range r.quizzes {
		if quiz.ID == keepID {
			continue
		}
		if quiz.ID == rootID || (quiz.RootQuizID != nil && *quiz.RootQuizID == rootID) {
			quiz.IsVisible = false
		}
	}
	return nil
}

func (r *quizRepo) CreateQuestion(_ context.Context, question *domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *question
	clone.Options = nil
	r.questions[question.ID] = &clone
	for _, opt := range question.Options {
		oc := *opt
		r.options[opt.ID] = &oc
	}
	return nil
}

func (r *quizRepo) GetQuestion(_ context.Context, id uuid.UUID) (*domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	question, ok := r.questions[id]
	if !ok {
		return nil, domain.NotFoundf("question %s not found", id)
	}
	clone := *question
	for _, opt := range r.options {
		if opt.QuestionID == id {
			oc := *opt
			clone.Options = append(clone.Options, &oc)
		}
	}
	sort.Slice(clone.Options, func(i, j int) bool { return clone.Options[i].Position < clone.Options[j].Position })
	return &clone, nil
}

func (r *quizRepo) UpdateQuestion(_ context.Context, question *domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[question.ID]; !ok {
		return domain.NotFoundf("question %s not found", question.ID)
	}
	clone := *question
	clone.Options = nil
	r.questions[question.ID] = &clone
	return nil
}

func (r *quizRepo) DeleteQuestion(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[id]; !ok {
		return domain.NotFoundf("question %s not found", id)
	}
	r.deleteQuestionLocked(id)
	return nil
}

func (r *quizRepo) CreateOption(_ context.Context, option *domain.AnswerOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *option
	r.options[option.ID] = &clone
	return nil
}

func (r *quizRepo) DeleteOption(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.options[id]; !ok {
		return domain.NotFoundf("option %s not found", id)
	}
	delete(r.options, id)
	return nil
}

// --- attempts ---

type attemptRepo Store

func (r *attemptRepo) Create(_ context.Context, attempt *domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *attempt
	clone.Answers = nil
	r.attempts[attempt.ID] = &clone
	return nil
}

func (r *attemptRepo) CountForQuiz(_ context.Context, companyID, quizID, userID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, a := range r.attempts {
		if a.CompanyID == companyID && a.QuizID == quizID && a.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *attemptRepo) getLocked(attemptID, quizID, userID uuid.UUID) (*domain.Attempt, error) {
	a, ok := r.attempts[attemptID]
	if !ok || a.QuizID != quizID || a.UserID != userID {
		return nil, domain.NotFoundf("attempt %s not found", attemptID)
	}
	return a, nil
}

func (r *attemptRepo) GetForUser(_ context.Context, attemptID, quizID, userID uuid.UUID) (*domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, err := r.getLocked(attemptID, quizID, userID)
	if err != nil {
		return nil, err
	}
	clone := *a
	return &clone, nil
}

func (r *attemptRepo) GetWithAnswers(_ context.Context, attemptID, quizID, userID uuid.UUID) (*domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, err := r.getLocked(attemptID, quizID, userID)
	if err != nil {
		return nil, err
	}
	clone := *a
	for _, ans := range r.answers {
		if ans.AttemptID != attemptID {
			continue
		}
		ac := *ans
		for _, sel := range r.selections {
			if sel.AnswerID == ans.ID {
				sc := *sel
				ac.Selections = append(ac.Selections, &sc)
			}
		}
		if q, ok := r.questions[ans.QuestionID]; ok {
			qc := *q
			for _, opt := range r.options {
				if opt.QuestionID == q.ID {
					oc := *opt
					qc.Options = append(qc.Options, &oc)
				}
			}
			ac.Question = &qc
		}
		clone.Answers = append(clone.Answers, &ac)
	}
	return &clone, nil
}

func (r *attemptRepo) UpsertAnswer(_ context.Context, attemptID, questionID uuid.UUID, optionIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var answer *domain.AttemptAnswer
	for _, ans := range r.answers {
		if ans.AttemptID == attemptID && ans.QuestionID == questionID {
			answer = ans
			break
		}
	}
	if answer == nil {
		answer = &domain.AttemptAnswer{
			ID:         uuid.New(),
			AttemptID:  attemptID,
			QuestionID: questionID,
		}
		r.answers[answer.ID] = answer
	} else {
		for selID, sel := range r.selections {
			if sel.AnswerID == answer.ID {
				delete(r.selections, selID)
			}
		}
	}
	for _, optionID := range optionIDs {
		sel := &domain.AttemptAnswerSelection{
			ID:       uuid.New(),
			AnswerID: answer.ID,
			OptionID: optionID,
		}
		r.selections[sel.ID] = sel
	}
	return nil
}

func (r *attemptRepo) Finalize(_ context.Context, attempt *domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.attempts[attempt.ID]
	if !ok {
		return domain.NotFoundf("attempt %s not found", attempt.ID)
	}
	stored.Status = attempt.Status
	stored.Score = attempt.Score
	stored.CorrectAnswersCount = attempt.CorrectAnswersCount
	stored.TotalQuestionsCount = attempt.TotalQuestionsCount
	stored.FinishedAt = attempt.FinishedAt
	return nil
}

func (r *attemptRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Attempt
	for _, a := range r.attempts {
		if a.Status == domain.AttemptInProgress && a.IsExpired(now) {
			clone := *a
			out = append(out, &clone)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *attemptRepo) deleteAttemptLocked(id uuid.UUID) {
	delete(r.attempts, id)
	for answerID, ans := range r.answers {
		if ans.AttemptID == id {
			r.deleteAnswerLocked(answerID)
		}
	}
}

func (r *attemptRepo) deleteAnswerLocked(id uuid.UUID) {
	delete(r.answers, id)
	for selID, sel := range r.selections {
		if sel.AnswerID == id {
			delete(r.selections, selID)
		}
	}
}

// --- stats ---

// UserStats aggregates finished attempts, optionally scoped to one company.
func (s *Store) UserStats(_ context.Context, userID uuid.UUID, companyID *uuid.UUID) (domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.UserStats{UserID: userID, CompanyID: companyID}
	sum := 0.0
	for _, a := range s.attempts {
		if a.UserID != userID || a.Status == domain.AttemptInProgress {
			continue
		}
		if companyID != nil && a.CompanyID != *companyID {
			continue
		}
		stats.AttemptCount++
		stats.TotalCorrect += a.CorrectAnswersCount
		stats.TotalAnswered += a.TotalQuestionsCount
		sum += a.Score
	}
	if stats.AttemptCount > 0 {
		stats.AverageScore = sum / float64(stats.AttemptCount)
	}
	return stats, nil
}

// QuizStats aggregates finished attempts against one quiz version.
func (s *Store) QuizStats(_ context.Context, quizID uuid.UUID) (domain.QuizStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.QuizStats{QuizID: quizID, UpdatedAt: time.Now()}
	sum := 0.0
	for _, a := range s.attempts {
		if a.QuizID != quizID || a.Status == domain.AttemptInProgress {
			continue
		}
		stats.AttemptCount++
		sum += a.Score
	}
	if stats.AttemptCount > 0 {
		stats.AverageScore = sum / float64(stats.AttemptCount)
	}
	return stats, nil
}
