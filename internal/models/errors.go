package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("comment not found")
	ErrAlreadyReplied      = errors.New("comment already replied")
	ErrAlreadyClassified   = errors.New("comment already classified")
	ErrSourceUnauthorized  = errors.New("comment source rejected credentials")
	ErrCategoryNotListable = errors.New("category is not listable")
	ErrInvalidCursor       = errors.New("invalid page cursor")
)

// TransientError wraps a failure that may succeed when retried: timeouts,
// rate limits, quota exhaustion and upstream 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// MalformedResponseError reports classifier output that failed validation.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed classifier response: " + e.Reason
}

func Malformed(format string, args ...any) error {
	return &MalformedResponseError{Reason: fmt.Sprintf(format, args...)}
}

func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// IsAlreadyHandled reports duplicate work that the pipeline treats as a no-op.
func IsAlreadyHandled(err error) bool {
	return errors.Is(err, ErrAlreadyClassified) || errors.Is(err, ErrAlreadyReplied)
}

// ReconciliationError marks a reply that exists on the platform but could not
// be recorded in the store.
type ReconciliationError struct {
	CommentID string
	ReplyID   string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reply %s posted for comment %s but not recorded: %v", e.ReplyID, e.CommentID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
