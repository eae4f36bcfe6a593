package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the minimal identity row the service keeps; authentication itself
// is handled by the external identity provider.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Email       string    `bun:"email,notnull,unique" json:"email"`
	DisplayName string    `bun:"display_name,notnull" json:"displayName"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// Company is a tenant: it owns quizzes and has a membership roster.
type Company struct {
	bun.BaseModel `bun:"table:companies,alias:company"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Description string    `bun:"description" json:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// Membership links a user to a company at a role. At most one row exists per
// (company, user) pair.
type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:membership"`

	CompanyID uuid.UUID `bun:"company_id,pk,type:uuid" json:"companyId"`
	UserID    uuid.UUID `bun:"user_id,pk,type:uuid" json:"userId"`
	Role      Role      `bun:"role,notnull" json:"role"`
	JoinedAt  time.Time `bun:"joined_at,notnull" json:"joinedAt"`
}

// Quiz is one version within a lineage. A nil RootQuizID marks the lineage
// root; forked versions point back at it and bump Version.
type Quiz struct {
	bun.BaseModel `bun:"table:quizzes,alias:quiz"`

	ID               uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	CompanyID        uuid.UUID  `bun:"company_id,notnull,type:uuid" json:"companyId"`
	Title            string     `bun:"title,notnull" json:"title"`
	Description      string     `bun:"description" json:"description"`
	AllowedAttempts  *int       `bun:"allowed_attempts" json:"allowedAttempts,omitempty"`
	TimeLimitMinutes *int       `bun:"time_limit_minutes" json:"timeLimitMinutes,omitempty"`
	IsPublished      bool       `bun:"is_published,notnull" json:"isPublished"`
	IsVisible        bool       `bun:"is_visible,notnull" json:"isVisible"`
	RootQuizID       *uuid.UUID `bun:"root_quiz_id,type:uuid" json:"rootQuizId,omitempty"`
	Version          int        `bun:"version,notnull" json:"version"`
	CreatedAt        time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull" json:"updatedAt"`

	Questions []*Question `bun:"rel:has-many,join:id=quiz_id" json:"questions,omitempty"`
}

// RootID resolves the lineage root: the quiz itself when it has no parent.
func (q *Quiz) RootID() uuid.UUID {
	if q.RootQuizID != nil {
		return *q.RootQuizID
	}
	return q.ID
}

// Question belongs to exactly one quiz version and owns its options in order.
type Question struct {
	bun.BaseModel `bun:"table:questions,alias:question"`

	ID       uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	QuizID   uuid.UUID `bun:"quiz_id,notnull,type:uuid" json:"quizId"`
	Text     string    `bun:"text,notnull" json:"text"`
	Points   float64   `bun:"points,notnull,default:1" json:"points"`
	Position int       `bun:"position,notnull" json:"position"`

	Options []*AnswerOption `bun:"rel:has-many,join:id=question_id" json:"options,omitempty"`
}

// Clone deep-copies the question and its options under a new quiz with fresh
// identities. Used when forking a quiz version; edits to the clone never
// touch the original.
func (q *Question) Clone(quizID uuid.UUID) *Question {
	clone := &Question{
		ID:       uuid.New(),
		QuizID:   quizID,
		Text:     q.Text,
		Points:   q.Points,
		Position: q.Position,
	}
	clone.Options = make([]*AnswerOption, 0, len(q.Options))
	for _, opt := range q.Options {
		clone.Options = append(clone.Options, opt.Clone(clone.ID))
	}
	return clone
}

// CorrectOptionIDs returns the set of option ids flagged correct.
func (q *Question) CorrectOptionIDs() map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{})
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids[opt.ID] = struct{}{}
		}
	}
	return ids
}

// AnswerOption is one selectable answer for a question.
type AnswerOption struct {
	bun.BaseModel `bun:"table:answer_options,alias:answer_option"`

	ID         uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	QuestionID uuid.UUID `bun:"question_id,notnull,type:uuid" json:"questionId"`
	Text       string    `bun:"text,notnull" json:"text"`
	IsCorrect  bool      `bun:"is_correct,notnull" json:"isCorrect"`
	Position   int       `bun:"position,notnull" json:"position"`
}

// Clone copies the option under a new question with a fresh identity.
func (o *AnswerOption) Clone(questionID uuid.UUID) *AnswerOption {
	return &AnswerOption{
		ID:         uuid.New(),
		QuestionID: questionID,
		Text:       o.Text,
		IsCorrect:  o.IsCorrect,
		Position:   o.Position,
	}
}

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptExpired    AttemptStatus = "expired"
)

// Attempt is one user's run through a quiz. Score is a 0-100 percentage.
// TotalQuestionsCount counts answered questions only: unanswered questions
// contribute to neither the numerator nor the denominator, so a partially
// completed attempt is scored against what was actually answered.
type Attempt struct {
	bun.BaseModel `bun:"table:attempts,alias:attempt"`

	ID                  uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	UserID              uuid.UUID     `bun:"user_id,notnull,type:uuid" json:"userId"`
	QuizID              uuid.UUID     `bun:"quiz_id,notnull,type:uuid" json:"quizId"`
	CompanyID           uuid.UUID     `bun:"company_id,notnull,type:uuid" json:"companyId"`
	Status              AttemptStatus `bun:"status,notnull" json:"status"`
	Score               float64       `bun:"score,notnull" json:"score"`
	CorrectAnswersCount int           `bun:"correct_answers_count,notnull" json:"correctAnswersCount"`
	TotalQuestionsCount int           `bun:"total_questions_count,notnull" json:"totalQuestionsCount"`
	StartedAt           time.Time     `bun:"started_at,notnull" json:"startedAt"`
	FinishedAt          *time.Time    `bun:"finished_at" json:"finishedAt,omitempty"`
	ExpiresAt           *time.Time    `bun:"expires_at" json:"expiresAt,omitempty"`

	Answers []*AttemptAnswer `bun:"rel:has-many,join:id=attempt_id" json:"answers,omitempty"`
}

// IsExpired reports whether the deadline has passed. A nil ExpiresAt means
// the attempt never expires.
func (a *Attempt) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// IsTerminal reports whether the attempt reached a final state.
func (a *Attempt) IsTerminal() bool {
	return a.Status != AttemptInProgress
}

// AttemptAnswer records the latest submission for one question within an
// attempt; re-saving replaces the selections rather than duplicating the row.
type AttemptAnswer struct {
	bun.BaseModel `bun:"table:attempt_answers,alias:attempt_answer"`

	ID         uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AttemptID  uuid.UUID `bun:"attempt_id,notnull,type:uuid" json:"attemptId"`
	QuestionID uuid.UUID `bun:"question_id,notnull,type:uuid" json:"questionId"`

	Question   *Question                 `bun:"rel:belongs-to,join:question_id=id" json:"question,omitempty"`
	Selections []*AttemptAnswerSelection `bun:"rel:has-many,join:id=answer_id" json:"selections,omitempty"`
}

// SelectedOptionIDs returns the set of chosen option ids.
func (a *AttemptAnswer) SelectedOptionIDs() map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{})
	for _, sel := range a.Selections {
		ids[sel.OptionID] = struct{}{}
	}
	return ids
}

// AttemptAnswerSelection is one chosen option within an answer.
type AttemptAnswerSelection struct {
	bun.BaseModel `bun:"table:attempt_answer_selections,alias:selection"`

	ID       uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AnswerID uuid.UUID `bun:"answer_id,notnull,type:uuid" json:"answerId"`
	OptionID uuid.UUID `bun:"option_id,notnull,type:uuid" json:"optionId"`
}

// AttemptQuestion is the sanitized question view handed to a taker during an
// active attempt. It never carries correctness flags, regardless of the
// caller's role in the company.
type AttemptQuestion struct {
	ID      uuid.UUID       `json:"id"`
	Text    string          `json:"text"`
	Points  float64         `json:"points"`
	Options []AttemptOption `json:"options"`
}

// AttemptOption is the sanitized option view.
type AttemptOption struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// SanitizeQuestions strips correctness flags from a question graph.
func SanitizeQuestions(questions []*Question) []AttemptQuestion {
	out := make([]AttemptQuestion, 0, len(questions))
	for _, q := range questions {
		view := AttemptQuestion{
			ID:      q.ID,
			Text:    q.Text,
			Points:  q.Points,
			Options: make([]AttemptOption, 0, len(q.Options)),
		}
		for _, opt := range q.Options {
			view.Options = append(view.Options, AttemptOption{ID: opt.ID, Text: opt.Text})
		}
		out = append(out, view)
	}
	return out
}

// UserStats aggregates a user's finished attempts, either scoped to one
// company or across all companies.
type UserStats struct {
	UserID        uuid.UUID  `json:"userId"`
	CompanyID     *uuid.UUID `json:"companyId,omitempty"`
	AttemptCount  int        `json:"attemptCount"`
	AverageScore  float64    `json:"averageScore"`
	TotalCorrect  int        `json:"totalCorrect"`
	TotalAnswered int        `json:"totalAnswered"`
}

// QuizStats is the live per-quiz aggregate pushed to stats subscribers.
type QuizStats struct {
	QuizID       uuid.UUID `json:"quizId"`
	AttemptCount int       `json:"attemptCount"`
	AverageScore float64   `json:"averageScore"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
