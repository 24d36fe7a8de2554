// edda-hook is the entrypoint invoked by an agent host's hook system
// (SessionStart, UserPromptSubmit, PreToolUse, PostToolUse,
// PostToolUseFailure, SessionEnd, PreCompact). It reads one JSON event
// object from stdin and writes one JSON response object to stdout,
// wrapped in a Resilience Shell so a panic or a slow call inside the
// dispatcher never blocks or crashes the host process.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fagemx/edda/internal/coordination"
	"github.com/fagemx/edda/internal/hook"
	"github.com/fagemx/edda/internal/ledger"
	"github.com/fagemx/edda/internal/projectid"
	"github.com/fagemx/edda/internal/resilience"
	"github.com/fagemx/edda/internal/wsconfig"
)

func main() {
	os.Exit(run())
}

func run() int {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		// spec.md §4.5: a stdin read failure must never crash the host —
		// render an empty response and exit cleanly.
		hook.Debugf("read stdin: %v", err)
		emit(hook.Output{})
		return 0
	}

	var in hook.Input
	if err := json.Unmarshal(raw, &in); err != nil {
		hook.Debugf("parse stdin: %v", err)
		emit(hook.Output{})
		return 0
	}

	timeout := hookTimeout()
	outcome := resilience.Run(context.Background(), timeout, func(ctx context.Context) ([]byte, error) {
		out, err := dispatch(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	})

	if outcome.TimedOut {
		hook.Debugf("hook timed out after %s", timeout)
		emit(hook.Output{})
		return outcome.ExitCode()
	}
	if outcome.Panicked {
		hook.Debugf("hook panicked: %s", outcome.PanicInfo)
		emit(hook.Output{})
		return outcome.ExitCode()
	}
	if outcome.Err != nil {
		hook.Debugf("dispatch error: %v", outcome.Err)
		out := hook.Output{Stderr: outcome.Err.Error()}
		emit(out)
		return exitCodeFor(out)
	}

	var out hook.Output
	if err := json.Unmarshal(outcome.Result, &out); err != nil {
		hook.Debugf("unmarshal dispatch result: %v", err)
		emit(hook.Output{})
		return 0
	}
	emit(out)
	return exitCodeFor(out)
}

// exitCodeFor implements spec.md §6.1's exit code rule: 0 nominal, 1 only
// when the response carries a non-empty stderr.
func exitCodeFor(out hook.Output) int {
	if out.Stderr != "" {
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, in hook.Input) (hook.Output, error) {
	root := in.CWD
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return hook.Output{}, fmt.Errorf("resolve cwd: %w", err)
		}
	}

	if err := wsconfig.EnsureLayout(root); err != nil {
		return hook.Output{}, fmt.Errorf("ensure workspace layout: %w", err)
	}
	cfg, err := wsconfig.LoadConfig(root)
	if err != nil {
		return hook.Output{}, fmt.Errorf("load config: %w", err)
	}
	if v := os.Getenv("CONTEXT_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ContextBudget = n
		}
	}
	pid := in.ProjectID
	if pid == "" {
		var err error
		pid, err = projectid.FromRoot(root)
		if err != nil {
			return hook.Output{}, fmt.Errorf("resolve project id: %w", err)
		}
	}

	lockPath := filepath.Join(wsconfig.EddaDir(root), "LOCK")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout())
	defer cancel()
	lock, err := ledger.AcquireLock(lockCtx, lockPath)
	if err != nil {
		return hook.Output{}, fmt.Errorf("acquire workspace lock: %w", err)
	}
	defer lock.Release()

	store, err := ledger.Open(filepath.Join(wsconfig.EddaDir(root), "ledger"))
	if err != nil {
		return hook.Output{}, fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	// The Coordination Store lives per-user, keyed by project id, not
	// per-checkout — every worktree or clone of this repository shares
	// the same project id and must land in the same coordination tree
	// to discover each other's sessions as peers.
	stateDir, err := coordination.ProjectDir(pid)
	if err != nil {
		return hook.Output{}, fmt.Errorf("resolve coordination store dir: %w", err)
	}

	d := &hook.Dispatcher{
		Root:      root,
		ProjectID: pid,
		Config:    cfg,
		Store:     store,
		StateDir:  stateDir,
	}
	return d.Dispatch(ctx, in)
}

func emit(out hook.Output) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(out); err != nil {
		hook.Debugf("encode output: %v", err)
	}
}

func hookTimeout() time.Duration {
	return envDurationMS("HOOK_TIMEOUT_MS", 10000)
}

func lockTimeout() time.Duration {
	return envDurationMS("BRIDGE_LOCK_TIMEOUT_MS", 2000)
}

func envDurationMS(name string, def int) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return time.Duration(def) * time.Millisecond
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return time.Duration(def) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}
