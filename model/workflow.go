package model

import (
	"errors"
	"fmt"

	"github.com/avrabe/raco/internal/idgen"
	"github.com/avrabe/raco/model/graph"
)

var (
	// ErrEmptyWorkflow is returned for workflows without steps.
	ErrEmptyWorkflow = errors.New("workflow has no steps")
	// ErrDuplicateStep is returned when two steps share an id.
	ErrDuplicateStep = errors.New("duplicate step id")
	// ErrInvalidDependency is returned when a dependency names an unknown step.
	ErrInvalidDependency = errors.New("invalid dependency")
	// ErrCycle is returned when dependencies form a cycle.
	ErrCycle = errors.New("workflow contains cyclic dependencies")
)

// Workflow represents a workflow definition
type Workflow struct {
	// Source provides information about the origin of the workflow
	Source *Source `json:"source,omitempty" yaml:"source,omitempty"`

	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description of the workflow
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Global holds default global variables, overridden by values supplied at creation.
	Global map[string]interface{} `json:"global,omitempty" yaml:"global,omitempty"`

	Steps []*graph.Step `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Dependencies order steps; endpoints may reference a step id or name.
	Dependencies []*graph.Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

type Source struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// NewWorkflow creates a new workflow with the given name
func NewWorkflow(name string) *Workflow {
	return &Workflow{Name: name}
}

// WithDescription sets the description of the workflow
func (w *Workflow) WithDescription(description string) *Workflow {
	w.Description = description
	return w
}

// WithGlobal sets a default global variable.
func (w *Workflow) WithGlobal(key string, value interface{}) *Workflow {
	if w.Global == nil {
		w.Global = map[string]interface{}{}
	}
	w.Global[key] = value
	return w
}

// NewStep creates a step with the given name and type and appends it.
func (w *Workflow) NewStep(name string, stepType graph.StepType) *graph.Step {
	step := &graph.Step{Name: name, Type: stepType}
	w.Steps = append(w.Steps, step)
	return step
}

// AddDependency orders to after from; both may be ids or names.
func (w *Workflow) AddDependency(from, to string) *Workflow {
	w.Dependencies = append(w.Dependencies, &graph.Dependency{From: from, To: to})
	return w
}

// Init assigns ids to the workflow and its steps, folds step DependsOn into
// Dependencies and resolves endpoints given by step name to step ids.
// Unresolvable endpoints are left untouched for Validate to report.
func (w *Workflow) Init() {
	if w.ID == "" {
		w.ID = idgen.New()
	}
	for _, step := range w.Steps {
		if step == nil {
			continue
		}
		if step.ID == "" {
			step.ID = idgen.New()
		}
	}
	for _, step := range w.Steps {
		if step == nil {
			continue
		}
		for _, ref := range step.DependsOn {
			if !w.hasDependency(ref, step.ID) {
				w.Dependencies = append(w.Dependencies, &graph.Dependency{From: ref, To: step.ID})
			}
		}
		step.DependsOn = nil
	}
	for _, dep := range w.Dependencies {
		if dep == nil {
			continue
		}
		if s := w.lookup(dep.From); s != nil {
			dep.From = s.ID
		}
		if s := w.lookup(dep.To); s != nil {
			dep.To = s.ID
		}
	}
}

func (w *Workflow) hasDependency(from, to string) bool {
	for _, dep := range w.Dependencies {
		if dep != nil && dep.From == from && dep.To == to {
			return true
		}
	}
	return false
}

// Validate checks the static structure of the workflow: non-empty steps,
// unique ids, known step types, existing dependency endpoints and no cycles.
func (w *Workflow) Validate() error {
	if len(w.Steps) == 0 {
		return ErrEmptyWorkflow
	}
	var issues []error
	seen := map[string]bool{}
	for i, step := range w.Steps {
		if step == nil {
			issues = append(issues, fmt.Errorf("step %d is nil", i))
			continue
		}
		if step.ID == "" {
			issues = append(issues, fmt.Errorf("step %q has no id", step.Name))
			continue
		}
		if seen[step.ID] {
			issues = append(issues, fmt.Errorf("%w: %s", ErrDuplicateStep, step.ID))
		}
		seen[step.ID] = true
		if !step.Type.IsValid() {
			issues = append(issues, fmt.Errorf("step %s has unsupported type %q", step.ID, step.Type))
		}
		if step.Type == graph.TypeAction && (step.Action == nil || step.Action.Service == "" || step.Action.Method == "") {
			issues = append(issues, fmt.Errorf("action step %s requires action service and method", step.ID))
		}
		if err := step.Retry.Validate(); err != nil {
			issues = append(issues, fmt.Errorf("step %s: %w", step.ID, err))
		}
	}
	for _, dep := range w.Dependencies {
		if dep == nil {
			continue
		}
		for _, endpoint := range []string{dep.From, dep.To} {
			if !seen[endpoint] {
				issues = append(issues, fmt.Errorf("%w: step %s not found", ErrInvalidDependency, endpoint))
			}
		}
	}
	if len(issues) > 0 {
		return errors.Join(issues...)
	}
	if w.hasCycle() {
		return ErrCycle
	}
	return nil
}

// hasCycle runs a DFS with colour marking (white/grey/black) over every step.
func (w *Workflow) hasCycle() bool {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	state := map[string]int{}
	var dfs func(string) bool
	dfs = func(n string) bool {
		switch state[n] {
		case grey:
			return true
		case black:
			return false
		}
		state[n] = grey
		for _, next := range w.Successors(n) {
			if dfs(next) {
				return true
			}
		}
		state[n] = black
		return false
	}
	for _, step := range w.Steps {
		if state[step.ID] == white && dfs(step.ID) {
			return true
		}
	}
	return false
}

// Step returns the step with the given id, or nil.
func (w *Workflow) Step(id string) *graph.Step {
	for _, step := range w.Steps {
		if step != nil && step.ID == id {
			return step
		}
	}
	return nil
}

// Lookup returns the step matching ref by id first, then by name.
func (w *Workflow) Lookup(ref string) *graph.Step {
	return w.lookup(ref)
}

func (w *Workflow) lookup(ref string) *graph.Step {
	if step := w.Step(ref); step != nil {
		return step
	}
	for _, step := range w.Steps {
		if step != nil && step.Name == ref {
			return step
		}
	}
	return nil
}

// Predecessors returns the ids of steps that must complete before id.
func (w *Workflow) Predecessors(id string) []string {
	var result []string
	for _, dep := range w.Dependencies {
		if dep != nil && dep.To == id {
			result = append(result, dep.From)
		}
	}
	return result
}

// Successors returns the ids of steps that wait for id.
func (w *Workflow) Successors(id string) []string {
	var result []string
	for _, dep := range w.Dependencies {
		if dep != nil && dep.From == id {
			result = append(result, dep.To)
		}
	}
	return result
}

// Roots returns steps without predecessors, in definition order.
func (w *Workflow) Roots() []*graph.Step {
	var result []*graph.Step
	for _, step := range w.Steps {
		if step != nil && len(w.Predecessors(step.ID)) == 0 {
			result = append(result, step)
		}
	}
	return result
}

// Clone creates a deep copy of the workflow
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	clone := &Workflow{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
		Global:      graph.CloneMap(w.Global),
	}
	if w.Source != nil {
		source := *w.Source
		clone.Source = &source
	}
	if w.Steps != nil {
		clone.Steps = make([]*graph.Step, len(w.Steps))
		for i, step := range w.Steps {
			clone.Steps[i] = step.Clone()
		}
	}
	if w.Dependencies != nil {
		clone.Dependencies = make([]*graph.Dependency, 0, len(w.Dependencies))
		for _, dep := range w.Dependencies {
			if dep == nil {
				continue
			}
			d := *dep
			clone.Dependencies = append(clone.Dependencies, &d)
		}
	}
	return clone
}
