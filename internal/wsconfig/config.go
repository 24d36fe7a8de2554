// Package wsconfig owns the on-disk layout of a workspace's .edda
// directory: config.json (JSON-with-comments), actors.yaml, policy.yaml,
// and patterns/*.yaml. Generalized from the teacher's internal/config
// FileStore/SDDPath/ConfigPath helpers to Edda's own directory shape.
package wsconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
)

// Config is the parsed contents of .edda/config.json.
type Config struct {
	ProjectName      string            `json:"project_name"`
	DefaultBranch    string            `json:"default_branch"`
	ContextBudget    int               `json:"context_budget"`
	HookTimeoutMS    int               `json:"hook_timeout_ms"`
	PeerStaleSeconds int               `json:"peer_stale_seconds"`
	ExtraEventTypes  []string          `json:"extra_event_types,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
}

// Defaults returns a Config with spec.md's stated defaults, used when
// config.json is absent so a workspace works without any setup step.
func Defaults() Config {
	return Config{
		DefaultBranch:    "main",
		ContextBudget:    8000,
		HookTimeoutMS:    10000,
		PeerStaleSeconds: 120,
	}
}

// EddaDir returns root's .edda directory path.
func EddaDir(root string) string { return filepath.Join(root, ".edda") }

// ConfigPath returns root's .edda/config.json path.
func ConfigPath(root string) string { return filepath.Join(EddaDir(root), "config.json") }

// LoadConfig reads and parses .edda/config.json under root, tolerating
// `//` and `/* */` comments via jsonc before handing the stripped bytes
// to encoding/json. A missing file yields Defaults(), not an error — a
// fresh workspace has no config yet and that's expected, not exceptional.
func LoadConfig(root string) (Config, error) {
	raw, err := os.ReadFile(ConfigPath(root))
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("wsconfig: read config.json: %w", err)
	}

	cfg := Defaults()
	if err := json.Unmarshal(jsonc.ToJSON(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("wsconfig: parse config.json: %w", err)
	}
	return cfg, nil
}

// EnsureLayout creates the directories LoadConfig/LoadActors/LoadPolicy
// expect to find, if they don't already exist.
func EnsureLayout(root string) error {
	dirs := []string{
		EddaDir(root),
		filepath.Join(EddaDir(root), "state"),
		filepath.Join(EddaDir(root), "patterns"),
		filepath.Join(EddaDir(root), "blobs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("wsconfig: create %s: %w", d, err)
		}
	}
	return nil
}

// HookTimeout returns the configured hook timeout as a time.Duration.
func (c Config) HookTimeout() time.Duration {
	return time.Duration(c.HookTimeoutMS) * time.Millisecond
}

// PeerStaleness returns the configured peer staleness window.
func (c Config) PeerStaleness() time.Duration {
	return time.Duration(c.PeerStaleSeconds) * time.Second
}
