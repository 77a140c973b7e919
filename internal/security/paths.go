// Package security guards the file paths the arena writes to.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path resolves outside every allowed
// root.
var ErrOutsideRoot = errors.New("path escapes allowed directories")

// canonical resolves symlinks in p, or in its nearest existing ancestor when
// p itself does not exist yet.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	rest := ""
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

// Within reports an error unless path resolves inside root. Symlinks in
// either are followed, so a link pointing out of root is rejected.
func Within(path, root string) error {
	p, err := canonical(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	r, err := canonical(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	rel, err := filepath.Rel(r, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s not under %s: %w", path, root, ErrOutsideRoot)
	}
	return nil
}

// WithinAny accepts path if it lies inside one of roots.
func WithinAny(path string, roots ...string) error {
	if len(roots) == 0 {
		return errors.New("no allowed directories given")
	}
	for _, r := range roots {
		if Within(path, r) == nil {
			return nil
		}
	}
	return fmt.Errorf("%s not under any of %v: %w", path, roots, ErrOutsideRoot)
}

// ValidateOutputPath accepts files under the working directory or the
// system temp directory. Recordings and exported files go through it.
func ValidateOutputPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	return WithinAny(path, cwd, os.TempDir())
}

const maxFilenameLen = 128

// SanitizeFilename maps s to [A-Za-z0-9._-], collapsing runs of other
// characters into one underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		switch {
		case ok:
			b.WriteRune(r)
			underscore = false
		case !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}
	if out := strings.Trim(b.String(), "._"); out != "" {
		return out
	}
	return "unknown"
}
