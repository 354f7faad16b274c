package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avrabe/raco/mcp/protocol"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitFile(t *testing.T, repo *gogit.Repository, dir, name, content, message string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add(name)
	require.NoError(t, err)
	_, err = worktree.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Ada", Email: "ada@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func handle(t *testing.T, srv *Server, cmd Command) *protocol.Response[Result] {
	t.Helper()
	response := srv.HandleRequest(context.Background(), protocol.NewRequest(protocol.CommandQuery, cmd))
	require.NotNil(t, response)
	assert.Equal(t, cmd.Type, response.Payload.Type)
	return response
}

func TestServer(t *testing.T) {
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	srv, err := New(dir)
	require.NoError(t, err)

	empty := handle(t, srv, Log(5))
	require.True(t, empty.Status.IsSuccess(), empty.Status.Message)
	assert.Empty(t, empty.Payload.Commits)

	commitFile(t, repo, dir, "a.txt", "one\n", "first commit")
	commitFile(t, repo, dir, "b.txt", "two\n", "second commit")

	response := handle(t, srv, Log(0))
	require.True(t, response.Status.IsSuccess(), response.Status.Message)
	require.Len(t, response.Payload.Commits, 2)
	assert.Equal(t, "second commit", response.Payload.Commits[0].Message)
	assert.Equal(t, "Ada", response.Payload.Commits[0].Author)
	assert.Len(t, response.Payload.Commits[0].Hash, 40)

	response = handle(t, srv, Log(1))
	require.Len(t, response.Payload.Commits, 1)

	response = handle(t, srv, Status())
	require.True(t, response.Status.IsSuccess())
	assert.True(t, response.Payload.Clean)
	assert.Empty(t, response.Payload.Files)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("new\n"), 0o644))
	response = handle(t, srv, Status())
	require.True(t, response.Status.IsSuccess())
	assert.False(t, response.Payload.Clean)
	assert.Equal(t, []FileStatus{
		{Path: "a.txt", Staging: " ", Worktree: "M"},
		{Path: "new.txt", Staging: "?", Worktree: "?"},
	}, response.Payload.Files)

	response = handle(t, srv, Branch())
	require.True(t, response.Status.IsSuccess())
	assert.Equal(t, "master", response.Payload.Branch)
	assert.Equal(t, []string{"master"}, response.Payload.Branches)
	assert.Len(t, response.Payload.Head, 40)
}

func TestServer_Errors(t *testing.T) {
	srv, err := New(t.TempDir())
	require.NoError(t, err)

	response := handle(t, srv, Status())
	assert.False(t, response.Status.IsSuccess())
	assert.Contains(t, response.Status.Message, "failed to open repository")

	response = handle(t, srv, Command{Type: "push"})
	assert.False(t, response.Status.IsSuccess())
	assert.Contains(t, response.Status.Message, "not supported")
}
