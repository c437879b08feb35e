// Package security keeps diagnostic output files inside their configured
// directory.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxFilenameLen bounds SanitizeFilename output.
const maxFilenameLen = 96

// SanitizeFilename turns an arbitrary label into a file name component:
// runs of anything outside [A-Za-z0-9._-] become one underscore, leading and
// trailing dots and underscores are dropped, and an empty result is
// "unnamed".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			pendingSep = true
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
		if b.Len() >= maxFilenameLen {
			break
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unnamed"
	}
	return out
}

// canonical resolves symlinks in the longest existing prefix of path, so a
// file that does not exist yet is judged by where its parent really is.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rest := ""
	for dir := abs; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

// ValidateWithinDir returns an error unless path resolves to a location
// inside dir, following symlinks on both sides.
func ValidateWithinDir(path, dir string) error {
	p, err := canonical(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	d, err := canonical(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	rel, err := filepath.Rel(d, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", path, dir)
	}
	return nil
}
