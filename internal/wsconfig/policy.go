package wsconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Actor is one entry in actors.yaml: a named agent identity a session may
// present as, used to label heartbeats and coordination log entries.
type Actor struct {
	Label       string   `yaml:"label"`
	Description string   `yaml:"description,omitempty"`
	Scopes      []string `yaml:"scopes,omitempty"`
}

// LoadActors reads .edda/actors.yaml, returning an empty slice (not an
// error) if the file is absent — actor labels are an opt-in convenience,
// not required for the ledger or coordination store to function.
func LoadActors(root string) ([]Actor, error) {
	raw, err := os.ReadFile(filepath.Join(EddaDir(root), "actors.yaml"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wsconfig: read actors.yaml: %w", err)
	}
	var doc struct {
		Actors []Actor `yaml:"actors"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("wsconfig: parse actors.yaml: %w", err)
	}
	return doc.Actors, nil
}

// Policy is the parsed contents of .edda/policy.yaml: workspace-level
// rules governing claim scope conflicts and redaction strictness.
type Policy struct {
	RequireClaimBeforeWrite bool     `yaml:"require_claim_before_write"`
	ProtectedPaths          []string `yaml:"protected_paths,omitempty"`
	RedactionExtraPatterns  []string `yaml:"redaction_extra_patterns,omitempty"`
}

// LoadPolicy reads .edda/policy.yaml, returning a zero-value Policy (all
// rules off) if the file is absent.
func LoadPolicy(root string) (Policy, error) {
	raw, err := os.ReadFile(filepath.Join(EddaDir(root), "policy.yaml"))
	if os.IsNotExist(err) {
		return Policy{}, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("wsconfig: read policy.yaml: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("wsconfig: parse policy.yaml: %w", err)
	}
	return p, nil
}

// PatternSet is one named entry under patterns/*.yaml: a reusable glob
// group referenced from claims or protected_paths (e.g. "frontend" ->
// ["src/ui/**", "*.tsx"]).
type PatternSet struct {
	Name  string   `yaml:"name"`
	Globs []string `yaml:"globs"`
}

// LoadPatterns reads every .yaml file under .edda/patterns/ and returns
// their PatternSet entries combined. A missing patterns directory yields
// an empty slice.
func LoadPatterns(root string) ([]PatternSet, error) {
	dir := filepath.Join(EddaDir(root), "patterns")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wsconfig: list patterns dir: %w", err)
	}

	var out []PatternSet
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("wsconfig: read %s: %w", entry.Name(), err)
		}
		var doc struct {
			Patterns []PatternSet `yaml:"patterns"`
		}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("wsconfig: parse %s: %w", entry.Name(), err)
		}
		out = append(out, doc.Patterns...)
	}
	return out, nil
}
