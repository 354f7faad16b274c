package approval

import (
	"context"
	"fmt"
	"time"
)

// DecisionFunc decides what to do with a pending request.
type DecisionFunc func(r *Request) (approved bool, input interface{}, reason string)

// AutoDecider starts a goroutine that polls ListPending and applies fn to
// every request.  It returns stop() – call it (or cancel ctx) to exit.
func AutoDecider(ctx context.Context, svc Service, fn DecisionFunc, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				requests, _ := svc.ListPending(ctx)
				for _, r := range requests {
					approved, input, reason := fn(r)
					_, _ = svc.Respond(ctx, r.ID, approved, input, reason)
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove approves every approval request and answers input requests
// with their default value.
func AutoApprove(ctx context.Context, svc Service, interval time.Duration) func() {
	return AutoDecider(ctx, svc, func(r *Request) (bool, interface{}, string) {
		return true, r.Default, "auto approved"
	}, interval)
}

// AutoRespond answers every input request with input and approves approvals.
func AutoRespond(ctx context.Context, svc Service, input interface{}, interval time.Duration) func() {
	return AutoDecider(ctx, svc, func(r *Request) (bool, interface{}, string) {
		if r.Kind == KindApproval {
			return true, nil, ""
		}
		return true, input, ""
	}, interval)
}

// AutoReject rejects every pending request with the given reason.
func AutoReject(ctx context.Context, svc Service, reason string, interval time.Duration) func() {
	return AutoDecider(ctx, svc, func(*Request) (bool, interface{}, string) {
		return false, nil, reason
	}, interval)
}

// WaitForDecision polls until the request is decided or timeout elapses.
func WaitForDecision(ctx context.Context, svc Service, id string, timeout time.Duration) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		decision, err := svc.Decision(ctx, id)
		if err != nil {
			return nil, err
		}
		if decision != nil {
			return decision, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for decision %v: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}
