// Package fsutil holds small filesystem helpers used at startup.
package fsutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/avrabe/raco/internal/errs"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

var fs = afs.New()

// EnsureDir creates path (and parents) when missing. It fails when path
// exists but is not a directory.
func EnsureDir(ctx context.Context, path string) error {
	exists, err := fs.Exists(ctx, path)
	if err != nil {
		return errs.Wrap(errs.KindIO, err, "stat "+path)
	}
	if !exists {
		if err = fs.Create(ctx, path, file.DefaultDirOsMode, true); err != nil {
			return errs.Wrap(errs.KindIO, err, "create "+path)
		}
		return nil
	}
	object, err := fs.Object(ctx, path)
	if err != nil {
		return errs.Wrap(errs.KindIO, err, "stat "+path)
	}
	if !object.IsDir() {
		return errs.New(errs.KindIO, "path exists but is not a directory: %s", path)
	}
	return nil
}

// TempDir returns the raco scratch directory under the OS temp dir.
func TempDir() string {
	return filepath.Join(os.TempDir(), "raco")
}

// IsValidJSON reports whether the file at path holds a valid JSON document.
func IsValidJSON(ctx context.Context, path string) (bool, error) {
	data, err := fs.DownloadWithURL(ctx, path)
	if err != nil {
		return false, errs.Wrap(errs.KindIO, err, "read "+path)
	}
	return json.Valid(data), nil
}
