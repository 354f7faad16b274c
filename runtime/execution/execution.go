package execution

import (
	"fmt"
	"sync"
	"time"

	"github.com/avrabe/raco/internal/clock"
	"github.com/avrabe/raco/internal/idgen"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/service/event"
)

// Execution represents a single step execution
type Execution struct {
	ID          string       `json:"id"`
	InstanceID  string       `json:"instanceId"`
	StepID      string       `json:"stepId"`
	StepName    string       `json:"stepName,omitempty"`
	State       StepStatus   `json:"state"`
	Input       interface{}  `json:"input,omitempty"`
	Output      interface{}  `json:"output,omitempty"`
	Error       string       `json:"error,omitempty"`
	Attempts    int          `json:"attempts,omitempty"`
	ScheduledAt time.Time    `json:"scheduledAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	RunAfter    *time.Time   `json:"runAfter,omitempty"`
	mux         sync.RWMutex `json:"-"`
}

// Context returns the event context describing this execution.
func (e *Execution) Context(eventType string, step *graph.Step) *event.Context {
	ret := &event.Context{
		EventType:  eventType,
		InstanceID: e.InstanceID,
		StepID:     e.StepID,
		StepName:   e.StepName,
	}
	if step != nil {
		ret.StepType = string(step.Type)
		if action := step.Action; action != nil {
			ret.Service = action.Service
			ret.Method = action.Method
		}
	}
	return ret
}

// NewExecution creates a new execution for a step
func NewExecution(instanceID string, step *graph.Step) *Execution {
	return &Execution{
		ID:          generateExecutionID(instanceID, step.ID),
		InstanceID:  instanceID,
		StepID:      step.ID,
		StepName:    step.Name,
		State:       StepPending,
		ScheduledAt: clock.Now(),
	}
}

// Start marks the execution as started
func (e *Execution) Start() {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.StartedAt = clock.NowPtr()
	e.State = StepRunning
}

// Complete marks the execution as completed
func (e *Execution) Complete(output interface{}) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.Output = output
	e.Error = ""
	e.CompletedAt = clock.NowPtr()
	e.State = StepCompleted
}

// Wait marks the execution as blocked on human input.
func (e *Execution) Wait() {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.State = StepWaitingForInput
}

// Fail marks the execution as failed
func (e *Execution) Fail(err error) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.CompletedAt = clock.NowPtr()
	if err != nil {
		e.Error = err.Error()
	}
	e.State = StepFailed
}

// Skip marks the execution as dropped.
func (e *Execution) Skip() {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.CompletedAt = clock.NowPtr()
	e.State = StepSkipped
}

// Retry records a failed attempt and the earliest time of the next one.
func (e *Execution) Retry(err error, delay time.Duration) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.Attempts++
	if err != nil {
		e.Error = err.Error()
	}
	runAfter := clock.Now().Add(delay)
	e.RunAfter = &runAfter
	e.State = StepPending
}

// GetState returns the execution state
func (e *Execution) GetState() StepStatus {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.State
}

// generateExecutionID creates a unique ID for an execution
func generateExecutionID(instanceID, stepID string) string {
	return fmt.Sprintf("%s-%s-%s", instanceID, stepID, idgen.New())
}

// Clone creates a copy of the execution so that the caller can mutate it
// without affecting the original instance. Input and Output are shared.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	e.mux.RLock()
	defer e.mux.RUnlock()
	clone := &Execution{
		ID:          e.ID,
		InstanceID:  e.InstanceID,
		StepID:      e.StepID,
		StepName:    e.StepName,
		State:       e.State,
		Input:       e.Input,
		Output:      e.Output,
		Error:       e.Error,
		Attempts:    e.Attempts,
		ScheduledAt: e.ScheduledAt,
		StartedAt:   copyTime(e.StartedAt),
		CompletedAt: copyTime(e.CompletedAt),
		RunAfter:    copyTime(e.RunAfter),
	}
	return clone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
