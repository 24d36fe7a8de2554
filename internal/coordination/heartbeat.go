package coordination

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// StaleAfter is how long a session may go without a heartbeat before
// discover_active_peers treats it as dead (spec.md's staleness window).
const StaleAfter = 120 * time.Second

func heartbeatPath(stateDir, sessionID string) string {
	return filepath.Join(heartbeatsDir(stateDir), sessionID+".json")
}

// ReadHeartbeat loads a single session's heartbeat file, returning
// (Heartbeat{}, false, nil) if it doesn't exist.
func ReadHeartbeat(stateDir, sessionID string) (Heartbeat, bool, error) {
	raw, err := os.ReadFile(heartbeatPath(stateDir, sessionID))
	if os.IsNotExist(err) {
		return Heartbeat{}, false, nil
	}
	if err != nil {
		return Heartbeat{}, false, fmt.Errorf("coordination: read heartbeat: %w", err)
	}
	var hb Heartbeat
	if err := json.Unmarshal(raw, &hb); err != nil {
		return Heartbeat{}, false, fmt.Errorf("coordination: parse heartbeat: %w", err)
	}
	return hb, true, nil
}

// WriteHeartbeat persists hb via write-to-temp-then-rename so a reader
// never observes a half-written file. started_at is preserved from any
// existing heartbeat for the session; callers pass the full desired state
// otherwise.
func WriteHeartbeat(stateDir string, hb Heartbeat) error {
	if err := os.MkdirAll(heartbeatsDir(stateDir), 0o755); err != nil {
		return fmt.Errorf("coordination: create heartbeats dir: %w", err)
	}
	if existing, ok, err := ReadHeartbeat(stateDir, hb.SessionID); err == nil && ok {
		hb.StartedAt = existing.StartedAt
	}
	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return fmt.Errorf("coordination: marshal heartbeat: %w", err)
	}
	path := heartbeatPath(stateDir, hb.SessionID)
	tmp := filepath.Join(heartbeatsDir(stateDir), fmt.Sprintf(".session.%s.tmp-%s", hb.SessionID, uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("coordination: write heartbeat temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("coordination: rename heartbeat: %w", err)
	}
	return nil
}

// TouchHeartbeat updates only last_heartbeat on an existing heartbeat
// file, doing nothing if none exists yet — a full WriteHeartbeat call is
// expected to have created it first.
func TouchHeartbeat(stateDir, sessionID string, now time.Time) error {
	hb, ok, err := ReadHeartbeat(stateDir, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	hb.LastHeartbeat = now.UTC().Format(time.RFC3339)
	return WriteHeartbeat(stateDir, hb)
}

// RemoveHeartbeat deletes a session's heartbeat file on SessionEnd.
func RemoveHeartbeat(stateDir, sessionID string) error {
	err := os.Remove(heartbeatPath(stateDir, sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("coordination: remove heartbeat: %w", err)
	}
	return nil
}

// DiscoverActivePeers lists every other session's heartbeat in stateDir
// that is not stale, joined with the effective claims from board.
func DiscoverActivePeers(stateDir, currentSessionID string, board BoardState, now time.Time) ([]PeerSummary, error) {
	entries, err := os.ReadDir(heartbeatsDir(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("coordination: list heartbeats dir: %w", err)
	}

	claimsBySession := make(map[string]ClaimEntry, len(board.Claims))
	for _, c := range board.Claims {
		claimsBySession[c.SessionID] = c
	}

	var peers []PeerSummary
	for _, entry := range entries {
		name := entry.Name()
		sid, ok := sessionIDFromHeartbeatName(name)
		if !ok || sid == currentSessionID {
			continue
		}
		hb, ok, err := ReadHeartbeat(stateDir, sid)
		if err != nil || !ok {
			continue
		}
		last, err := time.Parse(time.RFC3339, hb.LastHeartbeat)
		if err != nil {
			continue
		}
		age := now.Sub(last)
		if age > StaleAfter {
			continue
		}
		subjects := make([]string, 0, len(hb.ActiveTasks))
		for _, t := range hb.ActiveTasks {
			subjects = append(subjects, t.Subject)
		}
		peer := PeerSummary{
			SessionID:          sid,
			Label:              hb.Label,
			Age:                age,
			FocusFiles:         hb.FocusFiles,
			TaskSubjects:       subjects,
			FilesModifiedCount: hb.FilesModifiedCount,
			RecentCommits:      hb.RecentCommits,
			Branch:             hb.Branch,
			CurrentPhase:       hb.CurrentPhase,
		}
		if c, ok := claimsBySession[sid]; ok {
			peer.ClaimedPaths = c.Paths
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

func sessionIDFromHeartbeatName(name string) (string, bool) {
	const suffix = ".json"
	if len(name) <= len(suffix) || name[0] == '.' {
		return "", false
	}
	if name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	sid := name[:len(name)-len(suffix)]
	if sid == "" {
		return "", false
	}
	return sid, true
}
