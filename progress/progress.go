package progress

import (
	"context"
	"sync"
	"time"

	"github.com/avrabe/raco/internal/clock"
)

// Delta represents an incremental counter change.  The fields are signed and
// therefore can be either positive (increment) or negative (decrement).
type Delta struct {
	Total     int
	Completed int
	Skipped   int
	Failed    int
	Running   int
	Waiting   int
	Pending   int
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Counters is a plain counter snapshot.
type Counters struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
	Waiting   int `json:"waiting"`
	Pending   int `json:"pending"`
}

// Sub returns c - o as a Delta.
func (c Counters) Sub(o Counters) Delta {
	return Delta{
		Total:     c.Total - o.Total,
		Completed: c.Completed - o.Completed,
		Skipped:   c.Skipped - o.Skipped,
		Failed:    c.Failed - o.Failed,
		Running:   c.Running - o.Running,
		Waiting:   c.Waiting - o.Waiting,
		Pending:   c.Pending - o.Pending,
	}
}

// Percent returns the share of finished (completed or skipped) steps.
func (c Counters) Percent() int {
	if c.Total == 0 {
		return 0
	}
	return (c.Completed + c.Skipped) * 100 / c.Total
}

// Progress keeps step counters for one workflow instance.  It is safe for
// concurrent use.
type Progress struct {
	InstanceID string    `json:"instanceId"`
	Workflow   string    `json:"workflow"`
	StartedAt  time.Time `json:"startedAt"`
	Counters

	mu       sync.Mutex
	onChange func(Progress)
}

// New creates a tracker for an instance.
func New(instanceID, workflow string, onChange func(Progress)) *Progress {
	return &Progress{
		InstanceID: instanceID,
		Workflow:   workflow,
		StartedAt:  clock.Now(),
		onChange:   onChange,
	}
}

// Update applies the supplied delta.  The onChange callback, when set, runs
// with a copy of the tracker outside the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil || d.IsZero() {
		return
	}
	p.mu.Lock()
	p.Total += d.Total
	p.Completed += d.Completed
	p.Skipped += d.Skipped
	p.Failed += d.Failed
	p.Running += d.Running
	p.Waiting += d.Waiting
	p.Pending += d.Pending
	snapshot := p.snapshot()
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Sync moves the tracker to the supplied counters, emitting the difference.
func (p *Progress) Sync(c Counters) {
	if p == nil {
		return
	}
	p.mu.Lock()
	d := c.Sub(p.Counters)
	p.mu.Unlock()
	p.Update(d)
}

// Snapshot returns a copy of the tracker suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Progress) snapshot() Progress {
	return Progress{
		InstanceID: p.InstanceID,
		Workflow:   p.Workflow,
		StartedAt:  p.StartedAt,
		Counters:   p.Counters,
	}
}

// OnChange registers a callback that is invoked after every Update.  Passing
// nil disables the callback.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = cb
	p.mu.Unlock()
}

// Registry holds a tracker per instance.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*Progress
	onChange func(Progress)
}

// NewRegistry returns a registry whose trackers share the onChange callback.
func NewRegistry(onChange func(Progress)) *Registry {
	return &Registry{trackers: map[string]*Progress{}, onChange: onChange}
}

// Track returns the tracker of an instance, creating it when missing.
func (r *Registry) Track(instanceID, workflow string) *Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tracker, ok := r.trackers[instanceID]; ok {
		return tracker
	}
	tracker := New(instanceID, workflow, r.onChange)
	r.trackers[instanceID] = tracker
	return tracker
}

// Get returns the tracker of an instance.
func (r *Registry) Get(instanceID string) (*Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tracker, ok := r.trackers[instanceID]
	return tracker, ok
}

// Remove forgets an instance.
func (r *Registry) Remove(instanceID string) {
	r.mu.Lock()
	delete(r.trackers, instanceID)
	r.mu.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithTracker embeds tracker in a derived context.
func WithTracker(ctx context.Context, tracker *Progress) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, trackerKey, tracker)
}

// FromContext extracts the Progress tracker from ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// UpdateCtx applies d to the tracker carried by ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
