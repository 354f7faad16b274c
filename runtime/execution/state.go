package execution

// WorkflowStatus represents the lifecycle state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowPending         WorkflowStatus = "pending"
	WorkflowRunning         WorkflowStatus = "running"
	WorkflowWaitingForInput WorkflowStatus = "waitingForInput"
	WorkflowCompleted       WorkflowStatus = "completed"
	WorkflowFailed          WorkflowStatus = "failed"
	WorkflowCancelled       WorkflowStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	}
	return false
}

// IsActive reports whether the allocator should look at the instance.
func (s WorkflowStatus) IsActive() bool {
	return s == WorkflowRunning || s == WorkflowWaitingForInput
}

// StepStatus represents the current state of a step
type StepStatus string

const (
	StepPending         StepStatus = "pending"
	StepRunning         StepStatus = "running"
	StepWaitingForInput StepStatus = "waitingForInput"
	StepCompleted       StepStatus = "completed"
	StepFailed          StepStatus = "failed"
	StepSkipped         StepStatus = "skipped"
)

// IsDone reports whether dependants may run (completed or skipped).
func (s StepStatus) IsDone() bool {
	return s == StepCompleted || s == StepSkipped
}

// IsTerminal reports whether the step will not change anymore.
func (s StepStatus) IsTerminal() bool {
	return s.IsDone() || s == StepFailed
}
