package hook

import (
	"path/filepath"
	"strings"

	"github.com/fagemx/edda/internal/coordination"
	"github.com/fagemx/edda/internal/wsconfig"
)

// pathsFromToolInput extracts the file path(s) a tool invocation targets,
// covering the common shapes across editor tools (a single "file_path",
// or a "path" field, or a "command" string for shell tools where paths
// are heuristically pulled from the trailing arguments).
func pathsFromToolInput(toolInput map[string]any) []string {
	var paths []string
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if v, ok := toolInput[key].(string); ok && v != "" {
			paths = append(paths, v)
		}
	}
	return paths
}

// ScopeViolation describes a PreToolUse write that would touch a path
// another active session has claimed.
type ScopeViolation struct {
	Path         string
	ClaimedBy    string
	ClaimedLabel string
}

// CheckClaims returns every claim violation among paths given the current
// board, excluding claims held by selfSessionID. It walks board.Peers
// rather than the raw BoardState.Claims fold: a claim is only effective
// when no unclaim for it exists AND the claiming session's heartbeat is
// still fresh, and board.Peers (built by DiscoverActivePeers) is already
// filtered to exactly that set — a crashed session's stale claim must not
// block everyone else forever. A path is considered claimed if it
// matches, or is nested under, any of a peer's glob-free path prefixes or
// exact glob patterns.
//
// policy layers two workspace-config rules on top of that peer check:
// ProtectedPaths are always off-limits regardless of any session's claim,
// and RequireClaimBeforeWrite additionally flags a path with no claim from
// any session at all, including the caller's own.
func CheckClaims(board coordination.Board, selfSessionID string, paths []string, policy wsconfig.Policy) []ScopeViolation {
	var violations []ScopeViolation
	for _, peer := range board.Peers {
		if peer.SessionID == selfSessionID {
			continue
		}
		for _, p := range paths {
			for _, claimed := range peer.ClaimedPaths {
				if pathMatches(claimed, p) {
					violations = append(violations, ScopeViolation{
						Path: p, ClaimedBy: peer.SessionID, ClaimedLabel: peer.Label,
					})
				}
			}
		}
	}
	for _, p := range paths {
		for _, protected := range policy.ProtectedPaths {
			if pathMatches(protected, p) {
				violations = append(violations, ScopeViolation{
					Path: p, ClaimedBy: "", ClaimedLabel: "protected",
				})
			}
		}
	}
	if policy.RequireClaimBeforeWrite {
		for _, p := range paths {
			if anyClaimCovers(board, p) {
				continue
			}
			violations = append(violations, ScopeViolation{
				Path: p, ClaimedBy: "", ClaimedLabel: "unclaimed",
			})
		}
	}
	return violations
}

// anyClaimCovers reports whether p falls under some session's claim,
// including the caller's own — used only by RequireClaimBeforeWrite, which
// cares whether a claim exists at all, not who holds it.
func anyClaimCovers(board coordination.Board, p string) bool {
	for _, c := range board.State.Claims {
		for _, claimed := range c.Paths {
			if pathMatches(claimed, p) {
				return true
			}
		}
	}
	return false
}

// pathMatches reports whether target falls under pattern, which may be a
// glob (matched against the target's base and full form) or a plain
// directory/file prefix.
func pathMatches(pattern, target string) bool {
	if ok, err := filepath.Match(pattern, target); err == nil && ok {
		return true
	}
	cleanPattern := strings.TrimSuffix(pattern, "/")
	cleanTarget := filepath.Clean(target)
	if cleanTarget == cleanPattern {
		return true
	}
	return strings.HasPrefix(cleanTarget, cleanPattern+string(filepath.Separator))
}
