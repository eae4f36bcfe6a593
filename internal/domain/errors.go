package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error so the transport layer can map it to a
// status code without inspecting message text.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindNotAMember
	KindForbidden
	KindConflict
	KindAlreadyExists
)

// Error is a kinded domain error. Two Errors match under errors.Is when their
// kinds are equal, so the sentinels below double as match targets for
// formatted instances.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrNotFound covers missing quizzes, questions and attempts. Fetching
	// another user's attempt by id also resolves to this, never to a
	// permission error, so existence is not leaked.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrNotAMember means no membership row exists for the (company, user) pair.
	ErrNotAMember = &Error{Kind: KindNotAMember, Message: "not a member of this company"}
	// ErrForbidden means a membership row exists but the role is too low.
	ErrForbidden = &Error{Kind: KindForbidden, Message: "insufficient role"}
	// ErrConflict covers state conflicts: published quizzes being edited,
	// exhausted attempt budgets, finished attempts being written to.
	ErrConflict = &Error{Kind: KindConflict, Message: "conflict"}
	// ErrAlreadyExists is the domain translation of a unique constraint hit.
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists, Message: "already exists"}
)

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func AlreadyExistsf(format string, args ...any) error {
	return &Error{Kind: KindAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or zero if err is not a domain error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
