package raco

import (
	"github.com/avrabe/raco/extension"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/mcp/client"
	"github.com/avrabe/raco/model/types"
	"github.com/avrabe/raco/policy"
	"github.com/avrabe/raco/progress"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/action/fs"
	mcpaction "github.com/avrabe/raco/service/action/mcp"
	"github.com/avrabe/raco/service/action/nop"
	"github.com/avrabe/raco/service/action/printer"
	paction "github.com/avrabe/raco/service/action/process"
	"github.com/avrabe/raco/service/allocator"
	amemory "github.com/avrabe/raco/service/approval/memory"
	ememory "github.com/avrabe/raco/service/dao/execution/memory"
	imemory "github.com/avrabe/raco/service/dao/instance/memory"
	"github.com/avrabe/raco/service/dao/workflow"
	"github.com/avrabe/raco/service/event"
	"github.com/avrabe/raco/service/executor"
	"github.com/avrabe/raco/service/messaging"
	mmemory "github.com/avrabe/raco/service/messaging/memory"
	"github.com/avrabe/raco/service/meta"
	"github.com/avrabe/raco/service/processor"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
)

// Service assembles the engine: stores, queue, executor, processor,
// allocator and approval service around one Runtime.
type Service struct {
	runtime           *Runtime
	config            *Config
	logger            *logging.Logger
	metaService       *meta.Service
	metaBaseURL       string
	metaFsOptions     []storage.Option
	actions           *extension.Actions
	extensionServices []types.Service
	executorOptions   []executor.Option
	queue             messaging.Queue[execution.Execution]
	events            *event.Service
	sinks             []event.Sink
	policy            *policy.Policy
	onProgress        func(progress.Progress)
	hub               *client.Hub
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()
	if err := s.config.Validate(); err != nil {
		return err
	}
	r := s.runtime
	r.logger = s.logger
	r.events = s.events
	r.queue = s.queue
	r.progress = progress.NewRegistry(s.onProgress)

	s.actions = extension.NewActions(nop.New(), printer.New(nil))
	if s.hub != nil {
		s.actions.Register(mcpaction.New(s.hub))
		s.actions.Register(fs.New(s.hub))
		s.actions.Register(paction.New(s.hub))
	}
	for _, service := range s.extensionServices {
		s.actions.Register(service)
	}
	r.approvals = amemory.New(
		amemory.WithOnDecision(r.applyDecision),
		amemory.WithLogger(s.logger),
	)
	s.events.AddSink(event.SinkFunc(r.closeRequests))
	executorOptions := append([]executor.Option{
		executor.WithApproval(r.approvals),
		executor.WithEvents(s.events),
		executor.WithPolicy(s.policy),
		executor.WithLogger(s.logger),
	}, s.executorOptions...)
	anExecutor := executor.New(s.actions, executorOptions...)

	var err error
	r.processor, err = processor.New(
		processor.WithExecutor(anExecutor),
		processor.WithMessageQueue(s.queue),
		processor.WithInstanceDAO(r.instanceDAO),
		processor.WithExecutionDAO(r.executionDAO),
		processor.WithConfig(processor.Config{
			WorkerCount:    s.config.Processor.WorkerCount,
			MaxTaskRetries: s.config.Processor.MaxTaskRetries,
			RetryDelay:     s.config.Processor.RetryDelay,
		}),
		processor.WithEvents(s.events),
		processor.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}
	r.allocator = allocator.New(r.instanceDAO, r.executionDAO, s.queue,
		allocator.Config{PollingInterval: s.config.Allocator.PollingInterval},
		allocator.WithEvents(s.events),
		allocator.WithProgress(r.progress),
		allocator.WithLogger(s.logger),
	)
	return nil
}

func (s *Service) ensureBaseSetup() {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.policy == nil {
		s.policy = policy.New(policy.ModeAsk)
	}
	if s.events == nil {
		s.events = event.New(event.WithLogger(s.logger))
	}
	for _, sink := range s.sinks {
		s.events.AddSink(sink)
	}
	if s.metaService == nil {
		s.metaService = meta.New(afs.New(), s.metaBaseURL, s.metaFsOptions...)
	}
	if s.runtime.workflowDAO == nil {
		s.runtime.workflowDAO = workflow.New(workflow.WithMetaService(s.metaService), workflow.WithLogger(s.logger))
	}
	if s.queue == nil {
		s.queue = mmemory.NewQueue[execution.Execution](mmemory.DefaultConfig())
	}
	if s.runtime.instanceDAO == nil {
		s.runtime.instanceDAO = imemory.New()
	}
	if s.runtime.executionDAO == nil {
		s.runtime.executionDAO = ememory.New()
	}
}

// RegisterExtensionServices adds action services after construction.
func (s *Service) RegisterExtensionServices(services ...types.Service) {
	for i := range services {
		s.actions.Register(services[i])
	}
}

// Actions returns the action registry.
func (s *Service) Actions() *extension.Actions {
	return s.actions
}

// Events returns the event service.
func (s *Service) Events() *event.Service {
	return s.events
}

// Hub returns the MCP client hub backing the mcp, fs and process actions.
func (s *Service) Hub() *client.Hub {
	return s.hub
}

func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// New builds the engine. It fails on an invalid configuration.
func New(options ...Option) (*Service, error) {
	ret := &Service{runtime: &Runtime{}}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}
