package policy

import (
	"context"
	"fmt"
	"strings"
)

// Execution modes recognised by the engine.
const (
	ModeAsk  = "ask"  // wait for a human decision (default)
	ModeAuto = "auto" // answer with the step default / approve
	ModeDeny = "deny" // refuse human steps
)

// Policy represents the approval settings for the current workflow run.
//
// A nil *Policy behaves like ModeAsk with no action filtering.
type Policy struct {
	Mode      string
	AllowList []string
	BlockList []string
}

// Config is the serialisable form of a Policy stored with an instance.
type Config struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// New returns a policy for mode with no action filtering.
func New(mode string) *Policy {
	return &Policy{Mode: mode}
}

// Validate checks the mode name.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Mode {
	case "", ModeAsk, ModeAuto, ModeDeny:
		return nil
	}
	return fmt.Errorf("unsupported policy mode: %q", c.Mode)
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:      p.Mode,
		AllowList: append([]string(nil), p.AllowList...),
		BlockList: append([]string(nil), p.BlockList...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy.
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// EffectiveMode returns the mode with the ask default applied.
func (p *Policy) EffectiveMode() string {
	if p == nil || p.Mode == "" {
		return ModeAsk
	}
	return strings.ToLower(p.Mode)
}

// IsAllowed evaluates AllowList / BlockList.  Both lists match by exact string
// comparison (case-insensitive) of the fully-qualified action name
// "service.method".
func (p *Policy) IsAllowed(action string) bool {
	if p == nil {
		return true
	}

	normalized := strings.ToLower(action)

	// BlockList has priority.
	for _, b := range p.BlockList {
		if normalized == strings.ToLower(b) {
			return false
		}
	}

	if len(p.AllowList) == 0 {
		return true
	}

	for _, a := range p.AllowList {
		if normalized == strings.ToLower(a) {
			return true
		}
	}

	return false
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy stored by WithPolicy or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
