package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrorKind classifies engine failures for callers and the HTTP layer.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindInvalidTransition   ErrorKind = "invalid_transition"
	KindValidation          ErrorKind = "validation_error"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindInternal            ErrorKind = "internal_error"
)

// Sentinels for errors.Is; any EngineError of the same kind matches.
var (
	ErrNotFound            = &EngineError{Kind: KindNotFound}
	ErrInvalidTransition   = &EngineError{Kind: KindInvalidTransition}
	ErrValidation          = &EngineError{Kind: KindValidation}
	ErrConcurrencyConflict = &EngineError{Kind: KindConcurrencyConflict}
	ErrInternal            = &EngineError{Kind: KindInternal}
)

type EngineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Kind == e.Kind
}

func notFound(format string, args ...interface{}) error {
	return &EngineError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidTransition(format string, args ...interface{}) error {
	return &EngineError{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...interface{}) error {
	return &EngineError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...interface{}) error {
	return &EngineError{Kind: KindConcurrencyConflict, Message: fmt.Sprintf(format, args...)}
}

// internalError wraps a collaborator or storage failure. Engine errors pass through untouched.
func internalError(msg string, err error) error {
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	return KindInternal
}
