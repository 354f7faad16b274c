package store

import (
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/service/dao"
)

type options[T any] struct {
	clone  func(*T) *T
	filter func(*T, []*dao.Parameter) bool
	logger *logging.Logger
}

func (o *options[T]) copy(v *T) *T {
	if o.clone == nil {
		return v
	}
	return o.clone(v)
}

func (o *options[T]) accept(v *T, parameters []*dao.Parameter) bool {
	if o.filter == nil {
		return true
	}
	return o.filter(v, parameters)
}

// Option customises a store.
type Option[T any] func(*options[T])

// WithClone makes the memory store save and return copies.
func WithClone[T any](clone func(*T) *T) Option[T] {
	return func(o *options[T]) { o.clone = clone }
}

// WithFilter applies List parameters to records.
func WithFilter[T any](filter func(*T, []*dao.Parameter) bool) Option[T] {
	return func(o *options[T]) { o.filter = filter }
}

// WithLogger sets the logger reporting unreadable records.
func WithLogger[T any](logger *logging.Logger) Option[T] {
	return func(o *options[T]) { o.logger = logger }
}
