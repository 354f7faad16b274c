// Package errs defines the error kinds shared across raco packages.
//
// Every error produced through this package carries a Kind that can be
// matched with errors.Is against the exported sentinels:
//
//	if errors.Is(err, errs.ErrConfig) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindConfig        Kind = "config"
	KindIO            Kind = "io"
	KindSerialization Kind = "serialization"
	KindOther         Kind = "other"
)

var (
	ErrConfig        = &Error{Kind: KindConfig}
	ErrIO            = &Error{Kind: KindIO}
	ErrSerialization = &Error{Kind: KindSerialization}
	ErrOther         = &Error{Kind: KindOther}
)

// Error is a classified error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	var prefix string
	switch e.Kind {
	case KindConfig:
		prefix = "configuration error"
	case KindIO:
		prefix = "I/O error"
	case KindSerialization:
		prefix = "serialization error"
	default:
		prefix = "error"
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err; it returns nil when err is nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithContext prefixes err with ctx, keeping the chain intact.
func WithContext(err error, ctx string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", ctx, err)
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}
