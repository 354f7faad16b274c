// Package workflow loads workflow definitions from YAML or JSON documents
// and caches them by location.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/internal/yml"
	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/service/meta"
	"github.com/viant/afs"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Service struct {
	metaService   *meta.Service
	stepsNodeName string
	logger        *logging.Logger

	mu    sync.RWMutex
	cache map[string]*model.Workflow
}

// DecodeYAML decodes a workflow from YAML (or JSON) text.
func (s *Service) DecodeYAML(encoded []byte) (*model.Workflow, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(encoded, &node); err != nil {
		return nil, err
	}
	return s.ParseWorkflow("", &node)
}

// Load returns the workflow at location, from cache when already loaded.
// A location without extension is looked up as <location>.yaml.
func (s *Service) Load(ctx context.Context, location string) (*model.Workflow, error) {
	URL := s.url(location)
	s.mu.RLock()
	cached, ok := s.cache[URL]
	s.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}
	return s.Refresh(ctx, location)
}

// Refresh reloads the workflow at location and replaces the cached copy.
func (s *Service) Refresh(ctx context.Context, location string) (*model.Workflow, error) {
	URL := s.url(location)
	var node yaml.Node
	if err := s.metaService.Load(ctx, URL, &node); err != nil {
		return nil, fmt.Errorf("failed to load workflow from %s: %w", URL, err)
	}
	workflow, err := s.ParseWorkflow(URL, &node)
	if err != nil {
		return nil, err
	}
	s.Upsert(URL, workflow)
	s.logger.Debug(ctx, "workflow loaded", zap.String("url", URL), zap.String("workflow", workflow.Name))
	return workflow.Clone(), nil
}

// Upsert caches workflow under location.
func (s *Service) Upsert(location string, workflow *model.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[s.url(location)] = workflow.Clone()
}

// Remove evicts location from the cache.
func (s *Service) Remove(location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, s.url(location))
}

// Cached returns the cached locations, sorted.
func (s *Service) Cached() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]string, 0, len(s.cache))
	for URL := range s.cache {
		ret = append(ret, URL)
	}
	sort.Strings(ret)
	return ret
}

// List loads every definition file directly under dir. Invalid documents are
// logged and skipped.
func (s *Service) List(ctx context.Context, dir string) ([]*model.Workflow, error) {
	URLs, err := s.metaService.List(ctx, dir, ".yaml", ".yml", ".json")
	if err != nil {
		return nil, err
	}
	sort.Strings(URLs)
	var ret []*model.Workflow
	for _, URL := range URLs {
		workflow, err := s.Load(ctx, URL)
		if err != nil {
			s.logger.Warn(ctx, "skipping invalid workflow", zap.String("url", URL), zap.Error(err))
			continue
		}
		ret = append(ret, workflow)
	}
	return ret, nil
}

func (s *Service) url(location string) string {
	if path.Ext(location) == "" {
		location += ".yaml"
	}
	return s.metaService.URL(location)
}

// ParseWorkflow converts a YAML document into a validated workflow. Step ids
// default to the step name so that definitions stay stable across loads.
func (s *Service) ParseWorkflow(URL string, node *yaml.Node) (*model.Workflow, error) {
	workflow := &model.Workflow{Name: nameFromURL(URL)}
	if URL != "" {
		workflow.Source = &model.Source{URL: URL}
	}
	root := (*yml.Node)(node).Root()
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse workflow %s: document should be a mapping", URL)
	}
	if err := s.parseWorkflow(root, workflow); err != nil {
		return nil, fmt.Errorf("failed to parse workflow %s: %w", URL, err)
	}
	if workflow.Name == "" {
		workflow.Name = generateAnonymousName()
	}
	workflow.Init()
	if err := workflow.Validate(); err != nil {
		return nil, err
	}
	return workflow, nil
}

func (s *Service) parseWorkflow(node *yml.Node, workflow *model.Workflow) error {
	stepsNodeName := strings.ToLower(s.stepsNodeName)
	return node.Pairs(func(key string, valueNode *yml.Node) error {
		switch lowerKey := strings.ToLower(key); lowerKey {
		case "id":
			workflow.ID = valueNode.Value
		case "name":
			workflow.Name = valueNode.Value
		case "description":
			workflow.Description = valueNode.Value
		case "version":
			workflow.Version = valueNode.Value
		case "global":
			global, ok := valueNode.Interface().(map[string]interface{})
			if !ok {
				return errors.New("global should be a mapping")
			}
			workflow.Global = global
		case stepsNodeName:
			steps, err := s.parseSteps(valueNode)
			if err != nil {
				return err
			}
			workflow.Steps = steps
		case "dependencies":
			deps, err := parseDependencies(valueNode)
			if err != nil {
				return err
			}
			workflow.Dependencies = deps
		}
		return nil
	})
}

// parseSteps accepts either a sequence of steps or a mapping keyed by step name.
func (s *Service) parseSteps(node *yml.Node) ([]*graph.Step, error) {
	var steps []*graph.Step
	switch node.Kind {
	case yaml.SequenceNode:
		err := node.Items(func(index int, item *yml.Node) error {
			step, err := parseStep("", item)
			if err != nil {
				return fmt.Errorf("step #%d: %w", index, err)
			}
			steps = append(steps, step)
			return nil
		})
		return steps, err
	case yaml.MappingNode:
		err := node.Pairs(func(key string, item *yml.Node) error {
			step, err := parseStep(key, item)
			if err != nil {
				return fmt.Errorf("step %s: %w", key, err)
			}
			steps = append(steps, step)
			return nil
		})
		return steps, err
	}
	return nil, fmt.Errorf("%s should be a sequence or a mapping", s.stepsNodeName)
}

func parseStep(key string, node *yml.Node) (*graph.Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("step node should be a mapping")
	}
	step := &graph.Step{Name: key}
	var service, method string
	err := node.Pairs(func(key string, valueNode *yml.Node) error {
		switch strings.ToLower(key) {
		case "id":
			step.ID = valueNode.Value
		case "name":
			step.Name = valueNode.Value
		case "description":
			step.Description = valueNode.Value
		case "type":
			step.Type = graph.StepType(strings.ToLower(valueNode.Value))
		case "prompt":
			step.Prompt = valueNode.Value
		case "template":
			step.Template = valueNode.Value
		case "service":
			service = valueNode.Value
		case "method":
			method = valueNode.Value
		case "action":
			action, err := parseAction(valueNode)
			if err != nil {
				return err
			}
			step.Action = action
		case "input", "with":
			input, ok := valueNode.Interface().(map[string]interface{})
			if !ok {
				return fmt.Errorf("%s should be a mapping", key)
			}
			step.Input = input
		case "inputschema":
			schema, ok := valueNode.Interface().(map[string]interface{})
			if !ok {
				return errors.New("inputSchema should be a mapping")
			}
			step.InputSchema = schema
		case "outputschema":
			schema, ok := valueNode.Interface().(map[string]interface{})
			if !ok {
				return errors.New("outputSchema should be a mapping")
			}
			step.OutputSchema = schema
		case "dependson":
			refs, err := valueNode.Strings()
			if err != nil {
				return fmt.Errorf("dependsOn: %w", err)
			}
			step.DependsOn = refs
		case "retry":
			retry := &graph.Retry{}
			if err := valueNode.Decode(retry); err != nil {
				return fmt.Errorf("retry: %w", err)
			}
			step.Retry = retry
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if service != "" {
		if step.Action == nil {
			step.Action = &graph.Action{}
		}
		step.Action.Service = service
		if step.Action.Method == "" {
			step.Action.Method = method
		}
	}
	if step.Action != nil && step.Type == "" {
		step.Type = graph.TypeAction
	}
	if step.ID == "" {
		step.ID = step.Name
	}
	return step, nil
}

// parseAction accepts "service.method", "service:method" or a mapping.
// Together with a step level service key a scalar names the method only.
func parseAction(node *yml.Node) (*graph.Action, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		value := node.Value
		if idx := strings.LastIndexAny(value, ":."); idx > 0 {
			return &graph.Action{Service: value[:idx], Method: value[idx+1:]}, nil
		}
		return &graph.Action{Method: value}, nil
	case yaml.MappingNode:
		action := &graph.Action{}
		err := node.Pairs(func(key string, valueNode *yml.Node) error {
			switch strings.ToLower(key) {
			case "service":
				action.Service = valueNode.Value
			case "method":
				action.Method = valueNode.Value
			}
			return nil
		})
		return action, err
	}
	return nil, errors.New("action should be a string or a mapping")
}

// parseDependencies accepts a sequence of {from, to} pairs or a mapping of
// step to the steps it depends on.
func parseDependencies(node *yml.Node) ([]*graph.Dependency, error) {
	var deps []*graph.Dependency
	switch node.Kind {
	case yaml.SequenceNode:
		err := node.Items(func(index int, item *yml.Node) error {
			from, to := item.Lookup("from"), item.Lookup("to")
			if from == nil || to == nil {
				return fmt.Errorf("dependency #%d should define from and to", index)
			}
			deps = append(deps, &graph.Dependency{From: from.Value, To: to.Value})
			return nil
		})
		return deps, err
	case yaml.MappingNode:
		err := node.Pairs(func(to string, valueNode *yml.Node) error {
			refs, err := valueNode.Strings()
			if err != nil {
				return fmt.Errorf("dependencies of %s: %w", to, err)
			}
			for _, from := range refs {
				deps = append(deps, &graph.Dependency{From: from, To: to})
			}
			return nil
		})
		return deps, err
	}
	return nil, errors.New("dependencies should be a sequence or a mapping")
}

// New creates a new workflow service instance
func New(opts ...Option) *Service {
	ret := &Service{
		stepsNodeName: "steps",
		cache:         map[string]*model.Workflow{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.metaService == nil {
		ret.metaService = meta.New(afs.New(), "")
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	return ret
}
