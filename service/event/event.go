package event

import (
	"strings"
	"time"

	"github.com/avrabe/raco/internal/clock"
)

// Event types published by the engine.
const (
	TypeWorkflowCreated   = "workflow.created"
	TypeWorkflowStarted   = "workflow.started"
	TypeWorkflowWaiting   = "workflow.waiting"
	TypeWorkflowCompleted = "workflow.completed"
	TypeWorkflowFailed    = "workflow.failed"
	TypeWorkflowCancelled = "workflow.cancelled"

	TypeStepScheduled = "step.scheduled"
	TypeStepExecuted  = "step.executed"
	TypeStepWaiting   = "step.waiting"
	TypeStepRetry     = "step.retry"
	TypeStepCompleted = "step.completed"
	TypeStepFailed    = "step.failed"
	TypeStepSkipped   = "step.skipped"
)

// SubjectPrefix prefixes every event subject.
const SubjectPrefix = "raco.workflow"

type Context struct {
	InstanceID  string `json:"instanceId"`
	Workflow    string `json:"workflow,omitempty"`
	StepID      string `json:"stepId,omitempty"`
	StepName    string `json:"stepName,omitempty"`
	StepType    string `json:"stepType,omitempty"`
	EventType   string `json:"eventType"`
	Service     string `json:"service,omitempty"`
	Method      string `json:"method,omitempty"`
	TimeTakenMs int    `json:"timeTakenMs,omitempty"`
}

// Subject returns raco.workflow.<instance>.<event type>.
func (c *Context) Subject() string {
	instance := c.InstanceID
	if instance == "" {
		instance = "_"
	}
	return strings.Join([]string{SubjectPrefix, instance, c.EventType}, ".")
}

type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      T                      `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
