package filesystem

import (
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	sgdiff "github.com/sourcegraph/go-diff/diff"
)

const contextLines = 3

// unifiedDiff returns the unified diff of oldContent and newContent with
// added and removed line counts; identical inputs give an empty diff.
func unifiedDiff(oldContent, newContent, path string) (string, int, int, error) {
	if oldContent == newContent {
		return "", 0, 0, nil
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  contextLines,
	}
	patch, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", 0, 0, fmt.Errorf("diff generation: %w", err)
	}
	var added, removed int
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			added++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			removed++
		}
	}
	return patch, added, removed, nil
}

// parsePatch accepts a single file unified diff.
func parsePatch(text string) (*sgdiff.FileDiff, error) {
	fileDiffs, err := sgdiff.ParseMultiFileDiff([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}
	switch len(fileDiffs) {
	case 0:
		return nil, fmt.Errorf("parse patch: no file diff found")
	case 1:
		return fileDiffs[0], nil
	}
	return nil, fmt.Errorf("parse patch: expected one file, got %d", len(fileDiffs))
}

// applyHunks writes oldData with hunks applied to w. Context and deleted
// lines must match the original.
func applyHunks(oldData string, hunks []*sgdiff.Hunk, w io.Writer) error {
	oldLines := strings.SplitAfter(oldData, "\n")
	origIdx := 0
	linesEqual := func(a, b string) bool {
		return a == b || (a == "" && b == "\n") || (a == "\n" && b == "")
	}
	for _, h := range hunks {
		targetIdx := int(h.OrigStartLine) - 1
		for origIdx < targetIdx && origIdx < len(oldLines) {
			if _, err := io.WriteString(w, oldLines[origIdx]); err != nil {
				return err
			}
			origIdx++
		}
		for _, hl := range strings.SplitAfter(string(h.Body), "\n") {
			if hl == "" {
				continue
			}
			tag, line := hl[0], hl[1:]
			switch tag {
			case ' ':
				if origIdx >= len(oldLines) || !linesEqual(oldLines[origIdx], line) {
					return fmt.Errorf("patch failed: context mismatch at line %d", origIdx+1)
				}
				// the trailing newline of the file was already written
				if !(oldLines[origIdx] == "" && line == "\n") {
					if _, err := io.WriteString(w, line); err != nil {
						return err
					}
				}
				origIdx++
			case '-':
				if origIdx >= len(oldLines) || !linesEqual(oldLines[origIdx], line) {
					return fmt.Errorf("patch failed: delete mismatch at line %d", origIdx+1)
				}
				origIdx++
			case '+':
				if _, err := io.WriteString(w, line); err != nil {
					return err
				}
			case '\\':
			default:
				return fmt.Errorf("patch failed: unexpected hunk tag %q", tag)
			}
		}
	}
	for ; origIdx < len(oldLines); origIdx++ {
		if _, err := io.WriteString(w, oldLines[origIdx]); err != nil {
			return err
		}
	}
	return nil
}
