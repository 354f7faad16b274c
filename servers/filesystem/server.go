// Package filesystem implements the filesystem MCP server: list, read,
// write, delete, diff and patch under a root directory. File access goes
// through afs.
package filesystem

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/mcp/protocol"
	"github.com/avrabe/raco/servers"
	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"go.uber.org/zap"
)

// ErrOutsideRoot is returned for paths escaping the server root.
var ErrOutsideRoot = errors.New("path escapes server root")

// Server handles filesystem commands.
type Server struct {
	id     string
	root   string
	fs     afs.Service
	logger *logging.Logger
}

// Option configures a Server.
type Option func(s *Server)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithFs sets the afs service.
func WithFs(fs afs.Service) Option {
	return func(s *Server) {
		s.fs = fs
	}
}

// New creates a server rooted at root.
func New(root string, opts ...Option) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %s: %w", root, err)
	}
	ret := &Server{id: uuid.NewString(), root: abs}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	ret.logger = ret.logger.Named(servers.TypeFilesystem)
	ret.logger.Info(context.Background(), "creating filesystem server", zap.String("root", abs))
	return ret, nil
}

func (s *Server) ID() string {
	return s.id
}

// Root returns the absolute root directory.
func (s *Server) Root() string {
	return s.root
}

// HandleRequest runs the command; failures are reported in the response
// status with code 1.
func (s *Server) HandleRequest(ctx context.Context, request *protocol.Request[Command]) *protocol.Response[Result] {
	s.logger.Debug(ctx, "handling filesystem request",
		zap.String("type", request.Payload.Type),
		zap.String("path", request.Payload.Path),
		zap.String("request_id", request.RequestID))
	result, err := s.handle(ctx, &request.Payload)
	if err != nil {
		s.logger.Error(ctx, "filesystem request failed", zap.String("type", request.Payload.Type), zap.Error(err))
		return protocol.NewErrorResponse(request, Result{Type: request.Payload.Type}, 1, err.Error())
	}
	result.Type = request.Payload.Type
	return protocol.NewResponse(request, *result)
}

func (s *Server) handle(ctx context.Context, cmd *Command) (*Result, error) {
	switch cmd.Type {
	case TypeList:
		return s.list(ctx, cmd)
	case TypeRead:
		return s.read(ctx, cmd)
	case TypeWrite:
		return s.write(ctx, cmd)
	case TypeDelete:
		return s.delete(ctx, cmd)
	case TypeDiff:
		return s.diff(ctx, cmd)
	case TypePatch:
		return s.patch(ctx, cmd)
	}
	return nil, fmt.Errorf("%w: filesystem command %q", servers.ErrNotSupported, cmd.Type)
}

// resolve maps a request path onto an absolute path under root. Symbolic
// links are followed: the resolved target must stay under the resolved root.
func (s *Server) resolve(location string) (string, error) {
	target := filepath.Clean(location)
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.root, target)
	}
	if !within(s.root, target) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, location)
	}
	root, err := evalExisting(s.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %s: %w", s.root, err)
	}
	resolved, err := evalExisting(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", location, err)
	}
	if !within(root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, location)
	}
	return target, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalExisting resolves the symbolic links of the deepest existing ancestor
// of target and appends the part that does not exist yet.
func evalExisting(target string) (string, error) {
	existing, missing := target, ""
	for {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}
		if !errors.Is(err, iofs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return target, nil
		}
		missing = filepath.Join(filepath.Base(existing), missing)
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, missing), nil
}

func (s *Server) relative(target string) string {
	rel, err := filepath.Rel(s.root, target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

func fileURL(target string) string {
	return url.Normalize(target, file.Scheme)
}

func (s *Server) list(ctx context.Context, cmd *Command) (*Result, error) {
	location := cmd.Path
	if location == "" {
		location = "."
	}
	target, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	object, err := s.fs.Object(ctx, fileURL(target))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", location, err)
	}
	if !object.IsDir() {
		return &Result{Files: []protocol.FileInfo{s.fileInfo(target, object.Name(), uint64(object.Size()), false, object.ModTime().UTC().Format(time.RFC3339))}}, nil
	}
	var files []protocol.FileInfo
	if err = s.walk(ctx, target, cmd.Recursive, &files); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return &Result{Files: files}, nil
}

func (s *Server) walk(ctx context.Context, dir string, recursive bool, files *[]protocol.FileInfo) error {
	objects, err := s.fs.List(ctx, fileURL(dir))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", s.relative(dir), err)
	}
	for _, object := range objects {
		target := filepath.Clean(url.Path(object.URL()))
		if target == dir {
			continue
		}
		size := uint64(0)
		if !object.IsDir() {
			size = uint64(object.Size())
		}
		*files = append(*files, s.fileInfo(target, object.Name(), size, object.IsDir(), object.ModTime().UTC().Format(time.RFC3339)))
		if recursive && object.IsDir() {
			if _, err = s.resolve(target); err != nil {
				// linked directory leaving the root
				continue
			}
			if err = s.walk(ctx, target, recursive, files); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) fileInfo(target, name string, size uint64, isDir bool, modified string) protocol.FileInfo {
	return protocol.FileInfo{
		Name:        name,
		Path:        s.relative(target),
		Size:        size,
		IsDirectory: isDir,
		Metadata:    map[string]string{"modified": modified},
	}
}

func (s *Server) read(ctx context.Context, cmd *Command) (*Result, error) {
	target, data, err := s.download(ctx, cmd.Path, false)
	if err != nil {
		return nil, err
	}
	encoding := normalizeEncoding(cmd.Encoding)
	switch encoding {
	case EncodingUTF8:
		return &Result{Content: string(data), Encoding: encoding}, nil
	case EncodingBase64:
		return &Result{Content: base64.StdEncoding.EncodeToString(data), Encoding: encoding}, nil
	}
	return nil, fmt.Errorf("unsupported encoding %q for %s", cmd.Encoding, s.relative(target))
}

// download reads the file at location; a missing file is an error unless
// allowMissing is set.
func (s *Server) download(ctx context.Context, location string, allowMissing bool) (string, []byte, error) {
	if location == "" {
		return "", nil, errors.New("path is required")
	}
	target, err := s.resolve(location)
	if err != nil {
		return "", nil, err
	}
	URL := fileURL(target)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return "", nil, err
	}
	if !exists {
		if allowMissing {
			return target, nil, nil
		}
		return "", nil, fmt.Errorf("file not found: %s", location)
	}
	object, err := s.fs.Object(ctx, URL)
	if err != nil {
		return "", nil, err
	}
	if object.IsDir() {
		return "", nil, fmt.Errorf("%s is a directory", location)
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return target, data, nil
}

func (s *Server) write(ctx context.Context, cmd *Command) (*Result, error) {
	var data []byte
	switch normalizeEncoding(cmd.Encoding) {
	case EncodingUTF8:
		data = []byte(cmd.Content)
	case EncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(cmd.Content)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 content: %w", err)
		}
		data = decoded
	default:
		return nil, fmt.Errorf("unsupported encoding %q", cmd.Encoding)
	}
	target, existing, err := s.download(ctx, cmd.Path, true)
	if err != nil {
		return nil, err
	}
	written := len(data)
	if cmd.Append {
		data = append(existing, data...)
	}
	if err = s.upload(ctx, target, data); err != nil {
		return nil, err
	}
	return &Result{BytesWritten: uint64(written)}, nil
}

func (s *Server) upload(ctx context.Context, target string, data []byte) error {
	parent := fileURL(filepath.Dir(target))
	if exists, _ := s.fs.Exists(ctx, parent); !exists {
		if err := s.fs.Create(ctx, parent, file.DefaultDirOsMode, true); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.relative(filepath.Dir(target)), err)
		}
	}
	if err := s.fs.Upload(ctx, fileURL(target), file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.relative(target), err)
	}
	return nil
}

func (s *Server) delete(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd.Path == "" {
		return nil, errors.New("path is required")
	}
	target, err := s.resolve(cmd.Path)
	if err != nil {
		return nil, err
	}
	if target == s.root {
		return nil, errors.New("cannot delete the server root")
	}
	URL := fileURL(target)
	object, err := s.fs.Object(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", cmd.Path)
	}
	if object.IsDir() && !cmd.Recursive {
		children, err := s.fs.List(ctx, URL)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if filepath.Clean(url.Path(child.URL())) != target {
				return nil, fmt.Errorf("directory %s is not empty", cmd.Path)
			}
		}
	}
	if err = s.fs.Delete(ctx, URL); err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", cmd.Path, err)
	}
	return &Result{Success: true}, nil
}

func (s *Server) diff(ctx context.Context, cmd *Command) (*Result, error) {
	target, existing, err := s.download(ctx, cmd.Path, true)
	if err != nil {
		return nil, err
	}
	patch, added, removed, err := unifiedDiff(string(existing), cmd.Content, s.relative(target))
	if err != nil {
		return nil, err
	}
	return &Result{Diff: patch, Added: added, Removed: removed}, nil
}

func (s *Server) patch(ctx context.Context, cmd *Command) (*Result, error) {
	fileDiff, err := parsePatch(cmd.Patch)
	if err != nil {
		return nil, err
	}
	target, existing, err := s.download(ctx, cmd.Path, fileDiff.OrigName == "/dev/null")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err = applyHunks(string(existing), fileDiff.Hunks, &buf); err != nil {
		return nil, err
	}
	if err = s.upload(ctx, target, buf.Bytes()); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "patch applied", zap.String("path", s.relative(target)), zap.Int("hunks", len(fileDiff.Hunks)))
	return &Result{BytesWritten: uint64(buf.Len())}, nil
}

func normalizeEncoding(encoding string) string {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return EncodingUTF8
	}
	return strings.ToLower(encoding)
}
