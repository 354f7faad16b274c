package idgen

import "github.com/google/uuid"

// NewFunc generates identifiers; tests may replace it.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new UUIDv4 string.
func New() string { return NewFunc() }

// Valid reports whether id is a well-formed UUID.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
