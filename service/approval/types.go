package approval

import (
	"time"
)

// Kind tells whether a request asks for a value or a yes/no decision.
type Kind string

const (
	KindInput    Kind = "input"
	KindApproval Kind = "approval"
)

// Event is published on the service queue for every request and decision.
type Event struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"` // *Request | *Decision
}

const (
	TopicRequestCreated  = "request.created"
	TopicRequestExpired  = "request.expired"
	TopicDecisionCreated = "decision.created"
)

// Request represents a step waiting for a person.
type Request struct {
	ID          string      `json:"id"`
	InstanceID  string      `json:"instanceId"`
	StepID      string      `json:"stepId"`
	StepName    string      `json:"stepName,omitempty"`
	ExecutionID string      `json:"executionId,omitempty"`
	Kind        Kind        `json:"kind"`
	Prompt      string      `json:"prompt,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty"`
}

// Expired reports whether the request deadline was reached.
func (r *Request) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Decision is the answer to a request; ID equals the request ID.
type Decision struct {
	ID        string      `json:"id"`
	Approved  bool        `json:"approved"`
	Input     interface{} `json:"input,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	DecidedAt time.Time   `json:"decidedAt"`
}

// Filter selects pending requests.
type Filter func(r *Request) bool

// ForInstance matches requests of one instance.
func ForInstance(instanceID string) Filter {
	return func(r *Request) bool { return r.InstanceID == instanceID }
}

// ForStep matches the request of one instance step.
func ForStep(instanceID, stepID string) Filter {
	return func(r *Request) bool { return r.InstanceID == instanceID && r.StepID == stepID }
}
