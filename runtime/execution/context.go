package execution

import (
	"context"
	"reflect"

	"github.com/avrabe/raco/extension"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/service/event"
)

// Context represents the execution context for a step
type Context struct {
	instance  *Instance
	execution *Execution
	actions   *extension.Actions
	events    *event.Service
	step      *graph.Step
	context.Context
}

var InstanceKey = KeyOf[*Instance]()
var ExecutionKey = KeyOf[*Execution]()
var actionsKey = KeyOf[*extension.Actions]()
var EventKey = KeyOf[*event.Service]()
var ContextKey = KeyOf[*Context]()
var StepKey = KeyOf[*graph.Step]()

// ExecutionContext returns context with provided instance, execution and step
func (c *Context) ExecutionContext(instance *Instance, execution *Execution, step *graph.Step) *Context {
	clone := *c
	clone.instance = instance
	clone.execution = execution
	clone.step = step
	return &clone
}

// WithContext returns a copy bound to ctx.
func (c *Context) WithContext(ctx context.Context) *Context {
	clone := *c
	clone.Context = ctx
	return &clone
}

func (c *Context) Value(key any) any {
	switch key {
	case InstanceKey:
		if c.instance != nil {
			return c.instance
		}
	case ExecutionKey:
		if c.execution != nil {
			return c.execution
		}
	case actionsKey:
		if c.actions != nil {
			return c.actions
		}
	case EventKey:
		if c.events != nil {
			return c.events
		}
	case ContextKey:
		return c
	case StepKey:
		if c.step != nil {
			return c.step
		}
	}
	return c.Context.Value(key)
}

// ContextValue returns the value of the provided type from the context
func ContextValue[T any](ctx context.Context) T {
	key := KeyOf[T]()
	if value := ctx.Value(key); value != nil {
		if ret, ok := value.(T); ok {
			return ret
		}
	}
	var t T
	return t
}

// KeyOf returns the reflect.Type of the provided type
func KeyOf[T any]() reflect.Type {
	var a T
	return reflect.TypeOf(a)
}

func NewContext(ctx context.Context, actions *extension.Actions, service *event.Service) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		Context: ctx,
		actions: actions,
		events:  service,
	}
}
