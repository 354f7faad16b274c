package execution

import (
	"sort"
	"sync"
	"time"

	"github.com/avrabe/raco/internal/clock"
	"github.com/avrabe/raco/internal/idgen"
	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/policy"
	"github.com/avrabe/raco/progress"
	"github.com/avrabe/raco/tracing"
)

// HumanInput carries a human answer for an input or approval step.
type HumanInput struct {
	Value      interface{} `json:"value,omitempty"`
	Approved   *bool       `json:"approved,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	ProvidedAt time.Time   `json:"providedAt"`
}

// Instance represents a running copy of a workflow definition.
type Instance struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Status      WorkflowStatus         `json:"status"`
	Workflow    *model.Workflow        `json:"workflow"`
	Steps       map[string]StepStatus  `json:"steps"`
	Executions  map[string]string      `json:"executions,omitempty"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Errors      map[string]string      `json:"errors,omitempty"`
	Inputs      map[string]*HumanInput `json:"inputs,omitempty"`
	Global      map[string]interface{} `json:"global,omitempty"`
	Policy      *policy.Config         `json:"policy,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	StartedAt   *time.Time             `json:"startedAt,omitempty"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	Span        *tracing.Span          `json:"-"`
	mu          sync.RWMutex
}

// NewInstance validates a copy of workflow and creates a pending instance
// with every step pending. global overrides the workflow's default globals.
func NewInstance(workflow *model.Workflow, global map[string]interface{}) (*Instance, error) {
	definition := workflow.Clone()
	definition.Init()
	if err := definition.Validate(); err != nil {
		return nil, err
	}
	merged := graph.CloneMap(definition.Global)
	if merged == nil {
		merged = map[string]interface{}{}
	}
	for k, v := range global {
		merged[k] = v
	}
	now := clock.Now()
	ret := &Instance{
		ID:         idgen.New(),
		Name:       definition.Name,
		Status:     WorkflowPending,
		Workflow:   definition,
		Steps:      make(map[string]StepStatus, len(definition.Steps)),
		Executions: map[string]string{},
		Outputs:    map[string]interface{}{},
		Errors:     map[string]string{},
		Inputs:     map[string]*HumanInput{},
		Global:     merged,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, step := range definition.Steps {
		ret.Steps[step.ID] = StepPending
	}
	return ret, nil
}

// GetStatus returns the workflow status
func (i *Instance) GetStatus() WorkflowStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.Status
}

// SetStatus updates the workflow status and its timestamps.
func (i *Instance) SetStatus(status WorkflowStatus) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.setStatus(status)
}

func (i *Instance) setStatus(status WorkflowStatus) {
	i.Status = status
	now := clock.Now()
	if status == WorkflowRunning && i.StartedAt == nil {
		i.StartedAt = &now
	}
	if status.IsTerminal() && i.CompletedAt == nil {
		i.CompletedAt = &now
	}
	i.UpdatedAt = now
}

// StepStatus returns the status of a step.
func (i *Instance) StepStatus(stepID string) (StepStatus, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	status, ok := i.Steps[stepID]
	return status, ok
}

// SetStepStatus updates the status of a step.
func (i *Instance) SetStepStatus(stepID string, status StepStatus) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Steps[stepID] = status
	i.UpdatedAt = clock.Now()
}

// SetExecution records the current execution of a step.
func (i *Instance) SetExecution(stepID, executionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Executions == nil {
		i.Executions = map[string]string{}
	}
	i.Executions[stepID] = executionID
}

// ExecutionID returns the current execution id of a step.
func (i *Instance) ExecutionID(stepID string) string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.Executions[stepID]
}

// SetOutput stores the output of a completed step.
func (i *Instance) SetOutput(stepID string, output interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Outputs == nil {
		i.Outputs = map[string]interface{}{}
	}
	i.Outputs[stepID] = output
}

// Output returns the output of a step.
func (i *Instance) Output(stepID string) interface{} {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.Outputs[stepID]
}

// SetError records a step error keyed by step name (or id when unnamed).
func (i *Instance) SetError(stepID string, message string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Errors == nil {
		i.Errors = map[string]string{}
	}
	key := stepID
	if step := i.Workflow.Step(stepID); step != nil && step.Name != "" {
		key = step.Name
	}
	i.Errors[key] = message
}

// SetInput stores a human answer for a step.
func (i *Instance) SetInput(stepID string, input *HumanInput) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Inputs == nil {
		i.Inputs = map[string]*HumanInput{}
	}
	i.Inputs[stepID] = input
}

// Input returns the human answer for a step, if any.
func (i *Instance) Input(stepID string) *HumanInput {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.Inputs[stepID]
}

// LookupStep returns the step definition by id or name.
func (i *Instance) LookupStep(ref string) *graph.Step {
	return i.Workflow.Lookup(ref)
}

// ReadySteps returns pending steps whose predecessors are all completed or
// skipped, in definition order.
func (i *Instance) ReadySteps() []*graph.Step {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var ready []*graph.Step
	for _, step := range i.Workflow.Steps {
		if i.Steps[step.ID] != StepPending {
			continue
		}
		met := true
		for _, pred := range i.Workflow.Predecessors(step.ID) {
			if !i.Steps[pred].IsDone() {
				met = false
				break
			}
		}
		if met {
			ready = append(ready, step)
		}
	}
	return ready
}

// PreviousOutputs returns the outputs of every completed ancestor of stepID,
// keyed by step id.
func (i *Instance) PreviousOutputs(stepID string) map[string]interface{} {
	i.mu.RLock()
	defer i.mu.RUnlock()
	result := map[string]interface{}{}
	visited := map[string]bool{}
	queue := i.Workflow.Predecessors(stepID)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if output, ok := i.Outputs[id]; ok {
			result[id] = output
		}
		queue = append(queue, i.Workflow.Predecessors(id)...)
	}
	return result
}

// SkipRemaining marks every non-terminal step skipped and returns their ids.
func (i *Instance) SkipRemaining() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	var skipped []string
	for id, status := range i.Steps {
		if status.IsTerminal() {
			continue
		}
		i.Steps[id] = StepSkipped
		skipped = append(skipped, id)
	}
	sort.Strings(skipped)
	i.UpdatedAt = clock.Now()
	return skipped
}

// Counts returns the number of steps per status.
func (i *Instance) Counts() map[StepStatus]int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ret := map[StepStatus]int{}
	for _, status := range i.Steps {
		ret[status]++
	}
	return ret
}

// Progress converts step statuses into progress counters.
func (i *Instance) Progress() progress.Counters {
	counts := i.Counts()
	return progress.Counters{
		Total:     len(i.Workflow.Steps),
		Completed: counts[StepCompleted],
		Skipped:   counts[StepSkipped],
		Failed:    counts[StepFailed],
		Running:   counts[StepRunning],
		Waiting:   counts[StepWaitingForInput],
		Pending:   counts[StepPending],
	}
}

// Evaluate derives the workflow status from step statuses: any failed step
// fails the workflow, all steps done completes it, and a waiting step with
// nothing running means the workflow waits for input.
func (i *Instance) Evaluate() WorkflowStatus {
	counts := i.Counts()
	total := len(i.Workflow.Steps)
	switch {
	case counts[StepFailed] > 0:
		return WorkflowFailed
	case counts[StepCompleted]+counts[StepSkipped] == total:
		return WorkflowCompleted
	case counts[StepRunning] > 0:
		return WorkflowRunning
	case counts[StepWaitingForInput] > 0:
		return WorkflowWaitingForInput
	}
	return WorkflowRunning
}

// CopyFrom updates mutable fields from src, keeping the receiver's lock.
func (i *Instance) CopyFrom(src *Instance) {
	if src == nil || src == i {
		return
	}
	clone := src.Clone()
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Status = clone.Status
	i.Steps = clone.Steps
	i.Executions = clone.Executions
	i.Outputs = clone.Outputs
	i.Errors = clone.Errors
	i.Inputs = clone.Inputs
	i.Global = clone.Global
	i.Policy = clone.Policy
	i.UpdatedAt = clone.UpdatedAt
	i.StartedAt = clone.StartedAt
	i.CompletedAt = clone.CompletedAt
	if clone.Span != nil {
		i.Span = clone.Span
	}
}

// Clone creates a copy of the instance safe for concurrent mutation. The
// workflow definition is shared because it is immutable after creation.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := &Instance{
		ID:          i.ID,
		Name:        i.Name,
		Status:      i.Status,
		Workflow:    i.Workflow,
		Global:      graph.CloneMap(i.Global),
		Outputs:     graph.CloneMap(i.Outputs),
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
		StartedAt:   copyTime(i.StartedAt),
		CompletedAt: copyTime(i.CompletedAt),
		Span:        i.Span,
	}
	if i.Policy != nil {
		p := *i.Policy
		out.Policy = &p
	}
	out.Steps = make(map[string]StepStatus, len(i.Steps))
	for k, v := range i.Steps {
		out.Steps[k] = v
	}
	out.Executions = make(map[string]string, len(i.Executions))
	for k, v := range i.Executions {
		out.Executions[k] = v
	}
	out.Errors = make(map[string]string, len(i.Errors))
	for k, v := range i.Errors {
		out.Errors[k] = v
	}
	out.Inputs = make(map[string]*HumanInput, len(i.Inputs))
	for k, v := range i.Inputs {
		if v == nil {
			continue
		}
		in := *v
		out.Inputs[k] = &in
	}
	return out
}
