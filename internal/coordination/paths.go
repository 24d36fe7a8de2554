package coordination

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectDir resolves the per-user Coordination Store directory for a
// project: ~/.edda/projects/<project_id>. Every worktree or clone of the
// same repository shares one project_id (a hash of the canonical repo
// root), so sessions running out of different checkouts still land in the
// same coordination tree and can discover each other as peers — the
// Coordination Store is keyed by project identity, not by checkout path.
// Grounded on the teacher's memory.DefaultConfig, which resolves its own
// per-user data directory the same way (os.UserHomeDir + a dotfile dir).
func ProjectDir(projectID string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("coordination: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".edda", "projects", projectID), nil
}

// heartbeatsDir is the subdirectory of a project's coordination store
// holding one file per live session, per spec.md §6.2's on-disk layout.
func heartbeatsDir(stateDir string) string {
	return filepath.Join(stateDir, "heartbeats")
}
