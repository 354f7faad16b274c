package git

import "time"

// Command types.
const (
	TypeStatus = "status"
	TypeLog    = "log"
	TypeBranch = "branch"
)

const defaultLogLimit = 10

// Command is a git command tagged by Type. Path selects a repository below
// the server root.
type Command struct {
	Type  string `json:"type"`
	Path  string `json:"path,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// FileStatus holds the single letter staging and worktree codes of a file
// ("M" modified, "A" added, "D" deleted, "?" untracked, " " unmodified).
type FileStatus struct {
	Path     string `json:"path"`
	Staging  string `json:"staging"`
	Worktree string `json:"worktree"`
}

type Commit struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	Email   string    `json:"email,omitempty"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
}

// Result answers a Command; Type echoes the command type.
type Result struct {
	Type     string       `json:"type"`
	Files    []FileStatus `json:"files,omitempty"`
	Clean    bool         `json:"clean,omitempty"`
	Commits  []Commit     `json:"commits,omitempty"`
	Branch   string       `json:"branch,omitempty"`
	Head     string       `json:"head,omitempty"`
	Branches []string     `json:"branches,omitempty"`
}

func Status() Command {
	return Command{Type: TypeStatus}
}

func Log(limit int) Command {
	return Command{Type: TypeLog, Limit: limit}
}

func Branch() Command {
	return Command{Type: TypeBranch}
}
