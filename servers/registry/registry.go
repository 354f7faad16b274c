// Package registry tracks MCP servers known to raco. Entries live in a
// dao.Service so the registry can be kept in memory or persisted with the
// file store.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avrabe/raco/internal/clock"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/servers"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/dao/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServerInfo describes a registered server.
type ServerInfo struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      string            `json:"server_type"`
	URI       string            `json:"uri"`
	Active    bool              `json:"active"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Clone returns a deep copy.
func (s *ServerInfo) Clone() *ServerInfo {
	if s == nil {
		return nil
	}
	ret := *s
	if s.Metadata != nil {
		ret.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			ret.Metadata[k] = v
		}
	}
	return &ret
}

// TypeParameter filters List by server type.
const TypeParameter = "Type"

// Registry is safe for concurrent use.
type Registry struct {
	dao    dao.Service[string, ServerInfo]
	logger *logging.Logger
	mu     sync.Mutex
}

// Option configures a Registry.
type Option func(r *Registry)

// WithDAO sets the backing store.
func WithDAO(service dao.Service[string, ServerInfo]) Option {
	return func(r *Registry) {
		r.dao = service
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates a registry, in memory unless WithDAO is given.
func New(opts ...Option) *Registry {
	ret := &Registry{}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	ret.logger = ret.logger.Named("registry")
	if ret.dao == nil {
		ret.dao = NewMemoryDAO()
	}
	return ret
}

// NewMemoryDAO returns an in-memory server store.
func NewMemoryDAO() dao.Service[string, ServerInfo] {
	return store.NewMemoryStore[string, ServerInfo](
		func(s *ServerInfo) string { return s.ID },
		store.WithClone((*ServerInfo).Clone),
		store.WithFilter(filter),
	)
}

// NewFileDAO returns a server store persisted as JSON files under basePath.
func NewFileDAO(basePath string, logger *logging.Logger) (dao.Service[string, ServerInfo], error) {
	return store.NewFileStore[ServerInfo](basePath,
		func(s *ServerInfo) string { return s.ID },
		store.WithFilter(filter),
		store.WithLogger[ServerInfo](logger),
	)
}

func filter(s *ServerInfo, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != TypeParameter {
			continue
		}
		if value, ok := parameter.Value.(string); ok && value != s.Type {
			return false
		}
	}
	return true
}

// Register stores info, assigning an id when empty. An entry with the same
// id is replaced.
func (r *Registry) Register(ctx context.Context, info *ServerInfo) error {
	if info == nil {
		return dao.ErrNilEntity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = clock.Now()
	}
	r.logger.Info(ctx, "registering server", zap.String("name", info.Name), zap.String("id", info.ID))
	existing, err := r.dao.Load(ctx, info.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		r.logger.Warn(ctx, "server already registered, replacing", zap.String("id", info.ID))
	}
	return r.dao.Save(ctx, info)
}

// Unregister removes a server; unknown ids are logged and ignored.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Info(ctx, "unregistering server", zap.String("id", id))
	existing, err := r.dao.Load(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		r.logger.Warn(ctx, "server not found", zap.String("id", id))
		return nil
	}
	return r.dao.Delete(ctx, id)
}

// Get returns (nil, nil) for unknown ids.
func (r *Registry) Get(ctx context.Context, id string) (*ServerInfo, error) {
	if id == "" {
		return nil, nil
	}
	return r.dao.Load(ctx, id)
}

// List returns every server ordered by creation time then name.
func (r *Registry) List(ctx context.Context) ([]*ServerInfo, error) {
	return r.list(ctx)
}

// ListByType returns the servers of one type.
func (r *Registry) ListByType(ctx context.Context, serverType string) ([]*ServerInfo, error) {
	return r.list(ctx, dao.NewParameter(TypeParameter, serverType))
}

// FindByName returns the first server called name, or nil.
func (r *Registry) FindByName(ctx context.Context, name string) (*ServerInfo, error) {
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, candidate := range all {
		if candidate.Name == name {
			return candidate, nil
		}
	}
	return nil, nil
}

func (r *Registry) Activate(ctx context.Context, id string) error {
	return r.setActive(ctx, id, true)
}

func (r *Registry) Deactivate(ctx context.Context, id string) error {
	return r.setActive(ctx, id, false)
}

func (r *Registry) setActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, err := r.dao.Load(ctx, id)
	if err != nil {
		return err
	}
	if info == nil {
		r.logger.Warn(ctx, "server not found", zap.String("id", id))
		return fmt.Errorf("%w: %s", servers.ErrServerNotFound, id)
	}
	info.Active = active
	r.logger.Info(ctx, "server state changed", zap.String("id", id), zap.Bool("active", active))
	return r.dao.Save(ctx, info)
}

func (r *Registry) list(ctx context.Context, parameters ...*dao.Parameter) ([]*ServerInfo, error) {
	ret, err := r.dao.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ret, func(i, j int) bool {
		if !ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].CreatedAt.Before(ret[j].CreatedAt)
		}
		return ret[i].Name < ret[j].Name
	})
	return ret, nil
}
