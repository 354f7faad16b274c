package raco

import (
	"errors"

	"github.com/avrabe/raco/model"
)

var (
	// ErrWorkflowNotFound is returned for unknown instance ids.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrInvalidState is returned when an operation does not fit the
	// current workflow or step status.
	ErrInvalidState = errors.New("invalid state")
	// ErrStepNotFound is returned for unknown step references.
	ErrStepNotFound = errors.New("step not found")

	ErrInvalidDependency = model.ErrInvalidDependency
	ErrCycle             = model.ErrCycle
)
