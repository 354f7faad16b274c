// Package git implements the git MCP server: worktree status, commit log
// and branch information of a repository, read with go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/mcp/protocol"
	"github.com/avrabe/raco/servers"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server handles git commands for repositories under root.
type Server struct {
	id     string
	root   string
	logger *logging.Logger
}

// Option configures a Server.
type Option func(s *Server)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(root string, opts ...Option) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %s: %w", root, err)
	}
	ret := &Server{id: uuid.NewString(), root: abs}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	ret.logger = ret.logger.Named(servers.TypeGit)
	return ret, nil
}

func (s *Server) ID() string {
	return s.id
}

// HandleRequest runs the command; failures are reported in the response
// status with code 1.
func (s *Server) HandleRequest(ctx context.Context, request *protocol.Request[Command]) *protocol.Response[Result] {
	s.logger.Debug(ctx, "handling git request", zap.String("type", request.Payload.Type))
	result, err := s.handle(ctx, &request.Payload)
	if err != nil {
		s.logger.Error(ctx, "git request failed", zap.String("type", request.Payload.Type), zap.Error(err))
		return protocol.NewErrorResponse(request, Result{Type: request.Payload.Type}, 1, err.Error())
	}
	result.Type = request.Payload.Type
	return protocol.NewResponse(request, *result)
}

func (s *Server) handle(ctx context.Context, cmd *Command) (*Result, error) {
	switch cmd.Type {
	case TypeStatus, TypeLog, TypeBranch:
	default:
		return nil, fmt.Errorf("%w: git command %q", servers.ErrNotSupported, cmd.Type)
	}
	repo, err := s.open(cmd.Path)
	if err != nil {
		return nil, err
	}
	switch cmd.Type {
	case TypeStatus:
		return status(repo)
	case TypeLog:
		return log(ctx, repo, cmd.Limit)
	}
	return branch(repo)
}

func (s *Server) open(location string) (*gogit.Repository, error) {
	target := filepath.Join(s.root, filepath.Clean("/"+location))
	repo, err := gogit.PlainOpenWithOptions(target, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", location, err)
	}
	return repo, nil
}

func status(repo *gogit.Repository) (*Result, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	st, err := worktree.Status()
	if err != nil {
		return nil, err
	}
	ret := &Result{Clean: st.IsClean()}
	for path, fileStatus := range st {
		if fileStatus.Staging == gogit.Unmodified && fileStatus.Worktree == gogit.Unmodified {
			continue
		}
		ret.Files = append(ret.Files, FileStatus{
			Path:     path,
			Staging:  string(fileStatus.Staging),
			Worktree: string(fileStatus.Worktree),
		})
	}
	sort.Slice(ret.Files, func(i, j int) bool { return ret.Files[i].Path < ret.Files[j].Path })
	return ret, nil
}

func log(ctx context.Context, repo *gogit.Repository, limit int) (*Result, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return &Result{}, nil
	}
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	ret := &Result{}
	err = iter.ForEach(func(c *object.Commit) error {
		if len(ret.Commits) >= limit {
			return storer.ErrStop
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		ret.Commits = append(ret.Commits, Commit{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			Message: strings.TrimSpace(c.Message),
			When:    c.Author.When.UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func branch(repo *gogit.Repository) (*Result, error) {
	ret := &Result{}
	head, err := repo.Head()
	switch {
	case err == nil:
		ret.Head = head.Hash().String()
		if head.Name().IsBranch() {
			ret.Branch = head.Name().Short()
		}
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// unborn branch: HEAD points to a ref without commits
		if ref, refErr := repo.Reference(plumbing.HEAD, false); refErr == nil {
			ret.Branch = ref.Target().Short()
		}
	default:
		return nil, err
	}
	iter, err := repo.Branches()
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		ret.Branches = append(ret.Branches, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ret.Branches)
	return ret, nil
}
