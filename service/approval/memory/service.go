package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/avrabe/raco/internal/clock"
	"github.com/avrabe/raco/internal/idgen"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/service/approval"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/dao/store"
	"github.com/avrabe/raco/service/messaging"
	qmem "github.com/avrabe/raco/service/messaging/memory"
	"go.uber.org/zap"
)

type service struct {
	reqDAO dao.Service[string, approval.Request]
	decDAO dao.Service[string, approval.Decision]

	// fan-out queue; events are dropped when nobody drains it
	events *qmem.Queue[approval.Event]

	onDecision DecisionHook
	logger     *logging.Logger
	mux        sync.Mutex
}

func reqKey(r *approval.Request) string  { return r.ID }
func decKey(d *approval.Decision) string { return d.ID }

func cloneRequest(r *approval.Request) *approval.Request {
	ret := *r
	return &ret
}

func cloneDecision(d *approval.Decision) *approval.Decision {
	ret := *d
	return &ret
}

// New creates an in-memory approval service.
func New(options ...Option) approval.Service {
	ret := &service{
		reqDAO: store.NewMemoryStore[string, approval.Request](reqKey, store.WithClone(cloneRequest)),
		decDAO: store.NewMemoryStore[string, approval.Decision](decKey, store.WithClone(cloneDecision)),
		events: qmem.NewQueue[approval.Event](qmem.DefaultConfig()),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	return ret
}

func (s *service) Request(ctx context.Context, r *approval.Request) error {
	if r == nil {
		return errors.New("invalid request")
	}
	if r.ID == "" {
		r.ID = idgen.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = clock.Now()
	}
	if err := s.reqDAO.Save(ctx, r); err != nil {
		return err
	}
	s.publish(ctx, approval.TopicRequestCreated, r)
	return nil
}

func (s *service) ListPending(ctx context.Context, filters ...approval.Filter) ([]*approval.Request, error) {
	all, err := s.reqDAO.List(ctx)
	if err != nil {
		return nil, err
	}
	now := clock.Now()
	pending := make([]*approval.Request, 0, len(all))
outer:
	for _, r := range all {
		if d, _ := s.decDAO.Load(ctx, r.ID); d != nil {
			continue
		}
		if r.Expired(now) {
			continue
		}
		for _, filter := range filters {
			if !filter(r) {
				continue outer
			}
		}
		pending = append(pending, r)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

func (s *service) Respond(ctx context.Context, id string, approved bool, input interface{}, reason string) (*approval.Decision, error) {
	if id == "" {
		return nil, errors.New("empty id")
	}
	s.mux.Lock()
	defer s.mux.Unlock()

	request, err := s.reqDAO.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, fmt.Errorf("%w: %s", approval.ErrRequestNotFound, id)
	}
	if d, _ := s.decDAO.Load(ctx, id); d != nil {
		return nil, fmt.Errorf("%w: %s", approval.ErrAlreadyDecided, id)
	}
	if request.Expired(clock.Now()) {
		s.publish(ctx, approval.TopicRequestExpired, request)
		return nil, fmt.Errorf("%w: %s", approval.ErrExpired, id)
	}
	d := &approval.Decision{
		ID:        id,
		Approved:  approved,
		Input:     input,
		Reason:    reason,
		DecidedAt: clock.Now(),
	}
	if s.onDecision != nil {
		if err := s.onDecision(ctx, request, d); err != nil {
			return nil, err
		}
	}
	if err := s.decDAO.Save(ctx, d); err != nil {
		return nil, err
	}
	s.publish(ctx, approval.TopicDecisionCreated, d)
	return d, nil
}

func (s *service) Decision(ctx context.Context, id string) (*approval.Decision, error) {
	return s.decDAO.Load(ctx, id)
}

func (s *service) Expire(ctx context.Context, filters ...approval.Filter) ([]*approval.Request, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	pending, err := s.ListPending(ctx, filters...)
	if err != nil {
		return nil, err
	}
	now := clock.Now()
	for _, r := range pending {
		r.ExpiresAt = &now
		if err = s.reqDAO.Save(ctx, r); err != nil {
			return nil, err
		}
		s.publish(ctx, approval.TopicRequestExpired, r)
	}
	return pending, nil
}

func (s *service) Queue() messaging.Queue[approval.Event] { return s.events }

func (s *service) publish(ctx context.Context, topic string, data interface{}) {
	if !s.events.TryPublish(&approval.Event{Topic: topic, Data: data}) {
		s.logger.Debug(ctx, "approval event dropped", zap.String("topic", topic))
	}
}

var _ approval.Service = (*service)(nil)
