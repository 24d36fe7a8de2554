package hook

import (
	"os"
	"strings"
)

// labelFallbackLen bounds the truncated-session-id fallback label so it
// stays readable next to a real human label in rendered peer summaries.
const labelFallbackLen = 8

// ResolveLabel picks the human-readable label a session is known by for
// peer display and Request/RequestsForMe addressing. Priority, ported
// from the original bridge's peers::env_label/write_heartbeat: an
// explicit EDDA_SESSION_LABEL env var set by whatever launched the agent
// host, then the label already persisted on a previous heartbeat for this
// session (so the label doesn't flap across hook calls within one
// session), then a truncated session id as a last resort.
func ResolveLabel(existingLabel, sessionID string) string {
	if v := strings.TrimSpace(os.Getenv("EDDA_SESSION_LABEL")); v != "" {
		return v
	}
	if existingLabel != "" {
		return existingLabel
	}
	if len(sessionID) > labelFallbackLen {
		return sessionID[:labelFallbackLen]
	}
	return sessionID
}
