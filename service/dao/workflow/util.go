package workflow

import (
	"fmt"
	"path"
	"strings"
	"sync/atomic"
)

var counter int32

func generateAnonymousName() string {
	return fmt.Sprintf("anonymous-%d", atomic.AddInt32(&counter, 1))
}

// nameFromURL returns the file name without extension.
func nameFromURL(URL string) string {
	if URL == "" {
		return ""
	}
	base := path.Base(URL)
	return strings.TrimSuffix(base, path.Ext(base))
}

func isDefinition(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
