package hook

import (
	"testing"

	"github.com/fagemx/edda/internal/coordination"
	"github.com/fagemx/edda/internal/wsconfig"
)

func TestCheckClaims_DetectsViolation(t *testing.T) {
	board := coordination.Board{Peers: []coordination.PeerSummary{
		{SessionID: "s2", Label: "bob", ClaimedPaths: []string{"src/api"}},
	}}
	violations := CheckClaims(board, "s1", []string{"src/api/handler.go"}, wsconfig.Policy{})
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %+v", len(violations), violations)
	}
}

func TestCheckClaims_ExcludesSelf(t *testing.T) {
	board := coordination.Board{Peers: []coordination.PeerSummary{
		{SessionID: "s1", Label: "alice", ClaimedPaths: []string{"src/api"}},
	}}
	violations := CheckClaims(board, "s1", []string{"src/api/handler.go"}, wsconfig.Policy{})
	if len(violations) != 0 {
		t.Errorf("expected no violations for own claims, got %+v", violations)
	}
}

func TestCheckClaims_NoOverlapNoViolation(t *testing.T) {
	board := coordination.Board{Peers: []coordination.PeerSummary{
		{SessionID: "s2", Label: "bob", ClaimedPaths: []string{"src/api"}},
	}}
	violations := CheckClaims(board, "s1", []string{"src/web/index.html"}, wsconfig.Policy{})
	if len(violations) != 0 {
		t.Errorf("expected no violations for disjoint paths, got %+v", violations)
	}
}

func TestPathsFromToolInput(t *testing.T) {
	paths := pathsFromToolInput(map[string]any{"file_path": "a.go", "unrelated": 1.0})
	if len(paths) != 1 || paths[0] != "a.go" {
		t.Errorf("got %v, want [a.go]", paths)
	}
}