// Package projectid derives a stable identifier for a workspace from its
// repository root path, so ledger and coordination state stay addressed
// by the same key regardless of which working directory a hook process
// was invoked from.
package projectid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// FromRoot returns the project_id for root: the SHA-256 hex digest of its
// canonical path — symlinks resolved, and on Windows, case-folded, since
// NTFS paths are case-insensitive and two differently-cased references to
// the same repo must resolve to the same id. Grounded on spec.md's open
// question 3 (project identity), resolved here in favor of a
// filesystem-derived hash over a config-declared name: the hook has no
// reliable place to read an operator-declared id from until the workspace
// layout it would live in has itself been located.
func FromRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("projectid: resolve absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("projectid: resolve symlinks: %w", err)
	}
	canonical := filepath.Clean(resolved)
	if runtime.GOOS == "windows" {
		canonical = strings.ToLower(canonical)
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
