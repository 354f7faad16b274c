package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/service/dao"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"go.uber.org/zap"
)

// FileStore persists entities as <basePath>/<key>.json through afs, so the
// base path may be a local directory or any afs supported URL.
type FileStore[T any] struct {
	basePath    string
	fs          afs.Service
	keySelector func(*T) string
	options     options[T]
	mu          sync.RWMutex
}

// NewFileStore creates the base directory when missing.
func NewFileStore[T any](basePath string, keySelector func(*T) string, opts ...Option[T]) (*FileStore[T], error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	fs := afs.New()
	ctx := context.Background()
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	ret := &FileStore[T]{
		basePath:    url.Normalize(basePath, file.Scheme),
		fs:          fs,
		keySelector: keySelector,
	}
	for _, opt := range opts {
		opt(&ret.options)
	}
	if ret.options.logger == nil {
		ret.options.logger = logging.NewNop()
	}
	return ret, nil
}

// Save persists an entity to the filesystem
func (s *FileStore[T]) Save(ctx context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	if key == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.path(key)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves an entity; a missing file yields (nil, nil).
func (s *FileStore[T]) Load(ctx context.Context, key string) (*T, error) {
	if key == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	filePath := s.path(key)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if %s exists: %w", filePath, err)
	}
	if !exists {
		return nil, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	var ret T
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}
	return &ret, nil
}

// Delete removes an entity file if present.
func (s *FileStore[T]) Delete(ctx context.Context, key string) error {
	if key == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.path(key)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil || !exists {
		return err
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete %s: %w", filePath, err)
	}
	return nil
}

// List returns every readable entity accepted by the filter.
func (s *FileStore[T]) List(ctx context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.basePath, err)
	}
	var ret []*T
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			s.options.logger.Warn(ctx, "skipping unreadable record", zap.String("url", object.URL()), zap.Error(err))
			continue
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			s.options.logger.Warn(ctx, "skipping malformed record", zap.String("url", object.URL()), zap.Error(err))
			continue
		}
		if !s.options.accept(&v, parameters) {
			continue
		}
		ret = append(ret, &v)
	}
	return ret, nil
}

func (s *FileStore[T]) path(key string) string {
	return url.Join(s.basePath, key+".json")
}

var _ dao.Service[string, struct{}] = (*FileStore[struct{}])(nil)
