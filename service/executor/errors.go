package executor

import "errors"

var (
	ErrStepNotFound = errors.New("step not found in workflow")
	// ErrPolicyDenied marks executions refused by the policy; they are not retried.
	ErrPolicyDenied = errors.New("denied by policy")
	// ErrInvalidStep marks definitions that cannot be built into a step.
	ErrInvalidStep = errors.New("invalid step")
)
