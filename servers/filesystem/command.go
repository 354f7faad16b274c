package filesystem

import "github.com/avrabe/raco/mcp/protocol"

// Command types.
const (
	TypeList   = "list"
	TypeRead   = "read"
	TypeWrite  = "write"
	TypeDelete = "delete"
	TypeDiff   = "diff"
	TypePatch  = "patch"
)

// Content encodings accepted by read and write.
const (
	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
)

// Command is a filesystem command tagged by Type.
type Command struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
	Content   string `json:"content,omitempty"`
	Append    bool   `json:"append,omitempty"`
	Patch     string `json:"patch,omitempty"`
}

// Result is the payload answering a Command; Type echoes the command type.
type Result struct {
	Type         string              `json:"type"`
	Files        []protocol.FileInfo `json:"files,omitempty"`
	Content      string              `json:"content,omitempty"`
	Encoding     string              `json:"encoding,omitempty"`
	BytesWritten uint64              `json:"bytes_written,omitempty"`
	Success      bool                `json:"success,omitempty"`
	Diff         string              `json:"diff,omitempty"`
	Added        int                 `json:"added,omitempty"`
	Removed      int                 `json:"removed,omitempty"`
}

func List(path string, recursive bool) Command {
	return Command{Type: TypeList, Path: path, Recursive: recursive}
}

func Read(path string) Command {
	return Command{Type: TypeRead, Path: path}
}

func Write(path, content string, append bool) Command {
	return Command{Type: TypeWrite, Path: path, Content: content, Append: append}
}

func Delete(path string, recursive bool) Command {
	return Command{Type: TypeDelete, Path: path, Recursive: recursive}
}

// Diff compares the file at path with content.
func Diff(path, content string) Command {
	return Command{Type: TypeDiff, Path: path, Content: content}
}

// Patch applies a unified diff to the file at path.
func Patch(path, patch string) Command {
	return Command{Type: TypePatch, Path: path, Patch: patch}
}
