package workflow

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/avrabe/raco/model"
	"github.com/fsnotify/fsnotify"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"go.uber.org/zap"
)

// ChangeFunc receives a reloaded workflow, or nil when the file was removed.
// err reports a definition that failed to reload; the cached copy is kept.
type ChangeFunc func(location string, workflow *model.Workflow, err error)

// Watch reloads definitions under a local dir whenever they change until ctx
// is done. It returns once the watcher is registered.
func (s *Service) Watch(ctx context.Context, dir string, fn ChangeFunc) error {
	URL := s.metaService.URL(dir)
	if url.Scheme(URL, file.Scheme) != file.Scheme {
		return fmt.Errorf("watch is supported for local directories only: %s", URL)
	}
	localDir := filepath.Clean(url.Path(URL))
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err = watcher.Add(localDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", localDir, err)
	}
	go s.processEvents(ctx, watcher, fn)
	return nil
}

func (s *Service) processEvents(ctx context.Context, watcher *fsnotify.Watcher, fn ChangeFunc) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handle(ctx, event, fn)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn(ctx, "workflow watcher error", zap.Error(err))
		}
	}
}

func (s *Service) handle(ctx context.Context, event fsnotify.Event, fn ChangeFunc) {
	if !isDefinition(event.Name) {
		return
	}
	location := filepath.ToSlash(event.Name)
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		s.Remove(location)
		s.logger.Info(ctx, "workflow removed", zap.String("path", location))
		if fn != nil {
			fn(location, nil, nil)
		}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		workflow, err := s.Refresh(ctx, location)
		if err != nil {
			s.logger.Warn(ctx, "workflow reload failed", zap.String("path", location), zap.Error(err))
		} else {
			s.logger.Info(ctx, "workflow reloaded", zap.String("path", location), zap.String("workflow", workflow.Name))
		}
		if fn != nil {
			fn(location, workflow, err)
		}
	}
}
