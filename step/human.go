package step

import (
	"context"
	"fmt"

	"github.com/avrabe/raco/model/graph"
)

// HumanInputStep waits for free-form input from a person.
type HumanInputStep struct {
	*base
}

func newHumanInputStep(def *graph.Step) (*HumanInputStep, error) {
	b, err := newBase(def, nil)
	if err != nil {
		return nil, err
	}
	return &HumanInputStep{base: b}, nil
}

func (s *HumanInputStep) RequiresHumanInput() bool { return true }

func (s *HumanInputStep) HumanInputPrompt() string {
	return prompt(s.def)
}

// DefaultInput returns the "default" answer declared in the step input.
func (s *HumanInputStep) DefaultInput() (interface{}, bool) {
	value, ok := s.def.Input["default"]
	return value, ok
}

// Execute returns {"human_input": value} once input is available.
func (s *HumanInputStep) Execute(_ context.Context, c *Context) (*Result, error) {
	if c.HumanInput == nil {
		return Waiting(), nil
	}
	return Completed(map[string]interface{}{"human_input": c.HumanInput.Value}), nil
}

// ApprovalStep waits for a person to approve or reject.
type ApprovalStep struct {
	*base
}

func newApprovalStep(def *graph.Step) (*ApprovalStep, error) {
	b, err := newBase(def, nil)
	if err != nil {
		return nil, err
	}
	return &ApprovalStep{base: b}, nil
}

func (s *ApprovalStep) RequiresHumanInput() bool { return true }

func (s *ApprovalStep) HumanInputPrompt() string {
	return prompt(s.def)
}

// Execute completes on approval and fails on rejection.
func (s *ApprovalStep) Execute(_ context.Context, c *Context) (*Result, error) {
	if c.HumanInput == nil || c.HumanInput.Approved == nil {
		return Waiting(), nil
	}
	reason := c.HumanInput.Reason
	if !*c.HumanInput.Approved {
		if reason == "" {
			return Failed(fmt.Sprintf("step %v was rejected", s.def.Name)), nil
		}
		return Failed(fmt.Sprintf("step %v was rejected: %v", s.def.Name, reason)), nil
	}
	return Completed(map[string]interface{}{"approved": true, "reason": reason}), nil
}

func prompt(def *graph.Step) string {
	if def.Prompt != "" {
		return def.Prompt
	}
	if def.Description != "" {
		return def.Description
	}
	return def.Name
}
