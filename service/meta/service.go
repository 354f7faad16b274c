// Package meta loads definition documents (YAML or JSON) from any afs
// supported location, expanding ${env.KEY} references before decoding.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// Service resolves locations against a base URL and decodes documents.
type Service struct {
	fs      afs.Service
	baseURL string
	options []storage.Option
}

// URL resolves location against the base URL. Absolute paths and URLs are
// returned normalized.
func (s *Service) URL(location string) string {
	if s.baseURL == "" || strings.Contains(location, "://") || path.IsAbs(location) {
		return url.Normalize(location, file.Scheme)
	}
	return url.Join(s.baseURL, location)
}

// Exists reports whether location exists.
func (s *Service) Exists(ctx context.Context, location string) (bool, error) {
	return s.fs.Exists(ctx, s.URL(location), s.options...)
}

// Download returns the raw document with environment references expanded.
func (s *Service) Download(ctx context.Context, location string) ([]byte, error) {
	URL := s.URL(location)
	data, err := s.fs.DownloadWithURL(ctx, URL, s.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", URL, err)
	}
	return []byte(expandEnv(string(data))), nil
}

// Load decodes the document at location into dest. JSON is used for .json
// files, YAML otherwise; dest may be a *yaml.Node.
func (s *Service) Load(ctx context.Context, location string, dest interface{}) error {
	data, err := s.Download(ctx, location)
	if err != nil {
		return err
	}
	if strings.EqualFold(path.Ext(location), ".json") {
		if node, ok := dest.(*yaml.Node); ok {
			// JSON is a YAML subset
			return yaml.Unmarshal(data, node)
		}
		return json.Unmarshal(data, dest)
	}
	return yaml.Unmarshal(data, dest)
}

// List returns URLs of the files directly under location whose extension
// is one of exts (case-insensitive, including the dot).
func (s *Service) List(ctx context.Context, location string, exts ...string) ([]string, error) {
	URL := s.URL(location)
	objects, err := s.fs.List(ctx, URL, s.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", URL, err)
	}
	var ret []string
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(object.Name()))
		for _, candidate := range exts {
			if ext == strings.ToLower(candidate) {
				ret = append(ret, object.URL())
				break
			}
		}
	}
	return ret, nil
}

// New creates a service; options are passed to every afs call.
func New(fs afs.Service, baseURL string, options ...storage.Option) *Service {
	if fs == nil {
		fs = afs.New()
	}
	if baseURL != "" {
		baseURL = url.Normalize(baseURL, file.Scheme)
	}
	return &Service{fs: fs, baseURL: baseURL, options: options}
}
