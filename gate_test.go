package raco_test

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avrabe/raco/model/types"
)

// gate is an action service whose single method "wait" counts its calls,
// blocks until released and fails the first failFirst calls.
type gate struct {
	name      string
	failFirst int32
	calls     atomic.Int32
	started   chan struct{}
	release   chan struct{}
}

type gateInput struct{}

type gateOutput struct {
	Calls int `json:"calls"`
}

func newGate(name string, blocking bool) *gate {
	g := &gate{name: name, started: make(chan struct{}, 16)}
	if blocking {
		g.release = make(chan struct{})
	}
	return g
}

func (g *gate) Name() string { return g.name }

func (g *gate) Methods() types.Signatures {
	return []types.Signature{{
		Name:   "wait",
		Input:  reflect.TypeOf(&gateInput{}),
		Output: reflect.TypeOf(&gateOutput{}),
	}}
}

func (g *gate) Method(name string) (types.Executable, error) {
	if name != "wait" {
		return nil, types.NewMethodNotFoundError(name)
	}
	return g.wait, nil
}

func (g *gate) wait(ctx context.Context, _, out interface{}) error {
	n := g.calls.Add(1)
	select {
	case g.started <- struct{}{}:
	default:
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= g.failFirst {
		return errors.New("gate closed")
	}
	out.(*gateOutput).Calls = int(n)
	return nil
}

func (g *gate) awaitStart(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s.wait was not called", g.name)
	}
}
