package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/avrabe/raco/extension"
	"github.com/avrabe/raco/internal/clock"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/policy"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/approval"
	"github.com/avrabe/raco/service/event"
	"github.com/avrabe/raco/step"
	"github.com/avrabe/raco/tracing"
	"go.uber.org/zap"
)

// Service represents a step executor.
type Service interface {
	Execute(ctx context.Context, anExecution *execution.Execution, instance *execution.Instance) (*step.Result, error)
}

type service struct {
	actions   *extension.Actions
	approvals approval.Service
	events    *event.Service
	policy    *policy.Policy
	logger    *logging.Logger
}

// Execute runs the step behind anExecution against a snapshot of instance.
func (s *service) Execute(ctx context.Context, anExecution *execution.Execution, instance *execution.Instance) (result *step.Result, err error) {
	def := instance.LookupStep(anExecution.StepID)
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, anExecution.StepID)
	}
	ctx, span := tracing.StartSpan(ctx, "step.execute "+def.Name, tracing.KindInternal)
	span.WithAttributes(map[string]string{
		"instance.id": instance.ID,
		"step.id":     def.ID,
		"step.type":   string(def.Type),
	})
	defer func() { tracing.EndSpan(span, err) }()

	started := clock.Now()
	eCtx := execution.NewContext(ctx, s.actions, s.events).ExecutionContext(instance, anExecution, def)
	result, err = s.execute(eCtx, anExecution, instance, def)
	if err != nil {
		return nil, err
	}
	evCtx := anExecution.Context(event.TypeStepExecuted, def)
	evCtx.Workflow = instance.Name
	evCtx.TimeTakenMs = int(clock.Since(started).Milliseconds())
	if result.Status == execution.StepWaitingForInput {
		evCtx.EventType = event.TypeStepWaiting
	}
	event.Emit(ctx, s.events, evCtx, result)
	return result, nil
}

func (s *service) execute(ctx context.Context, anExecution *execution.Execution, instance *execution.Instance, def *graph.Step) (*step.Result, error) {
	aStep, err := step.New(def, s.actions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStep, err)
	}
	p := policy.FromConfig(instance.Policy)
	if p == nil {
		p = s.policy
	}
	if actionStep, ok := aStep.(*step.ActionStep); ok && !p.IsAllowed(actionStep.Action()) {
		return nil, fmt.Errorf("%w: action %v", ErrPolicyDenied, actionStep.Action())
	}

	sCtx := &step.Context{
		PreviousOutputs: instance.PreviousOutputs(def.ID),
		Global:          instance.Global,
		HumanInput:      instance.Input(def.ID),
		StepNames:       stepNames(instance),
	}
	input := def.Input
	if input == nil {
		input = map[string]interface{}{}
	}
	expanded, err := step.ExpandInput(input, sCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", step.ErrInvalidInput, err)
	}
	sCtx.Input = expanded
	if err = aStep.ValidateInput(expanded); err != nil {
		return nil, err
	}

	if aStep.RequiresHumanInput() && !answered(def, sCtx.HumanInput) {
		switch p.EffectiveMode() {
		case policy.ModeDeny:
			return step.Failed(fmt.Sprintf("step %v requires human input which the policy denies", def.Name)), nil
		case policy.ModeAuto:
			sCtx.HumanInput = autoAnswer(def, expanded)
		default:
			if err = s.requestInput(ctx, anExecution, instance, def, aStep, expanded); err != nil {
				return nil, err
			}
			return step.Waiting(), nil
		}
	}
	return aStep.Execute(ctx, sCtx)
}

func answered(def *graph.Step, input *execution.HumanInput) bool {
	if input == nil {
		return false
	}
	if def.Type == graph.TypeApproval {
		return input.Approved != nil
	}
	return true
}

func autoAnswer(def *graph.Step, input map[string]interface{}) *execution.HumanInput {
	ret := &execution.HumanInput{ProvidedAt: clock.Now(), Reason: "answered by policy"}
	if def.Type == graph.TypeApproval {
		approved := true
		ret.Approved = &approved
		return ret
	}
	ret.Value = input["default"]
	return ret
}

// requestInput raises an approval request unless one is already pending.
func (s *service) requestInput(ctx context.Context, anExecution *execution.Execution, instance *execution.Instance, def *graph.Step, aStep step.Step, input map[string]interface{}) error {
	if s.approvals == nil {
		return errors.New("no approval service configured for human steps")
	}
	pending, err := s.approvals.ListPending(ctx, approval.ForStep(instance.ID, def.ID))
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return nil
	}
	kind := approval.KindInput
	if def.Type == graph.TypeApproval {
		kind = approval.KindApproval
	}
	request := &approval.Request{
		InstanceID:  instance.ID,
		StepID:      def.ID,
		StepName:    def.Name,
		ExecutionID: anExecution.ID,
		Kind:        kind,
		Prompt:      aStep.HumanInputPrompt(),
		Default:     input["default"],
	}
	if err = s.approvals.Request(ctx, request); err != nil {
		return err
	}
	s.logger.Info(ctx, "waiting for human input",
		zap.String("instance", instance.ID),
		zap.String("step", def.Name),
		zap.String("request", request.ID))
	return nil
}

func stepNames(instance *execution.Instance) map[string]string {
	ret := make(map[string]string, len(instance.Workflow.Steps))
	for _, candidate := range instance.Workflow.Steps {
		ret[candidate.ID] = candidate.Name
	}
	return ret
}

// IsPermanent reports errors that retrying cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPolicyDenied) || errors.Is(err, ErrInvalidStep) ||
		errors.Is(err, step.ErrInvalidInput) || errors.Is(err, ErrStepNotFound)
}

// New creates a new executor service instance.
func New(actions *extension.Actions, opts ...Option) Service {
	s := &service{actions: actions}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	return s
}
