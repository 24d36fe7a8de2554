package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLock_ExcludesSecondAcquirer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	l1, err := AcquireLock(context.Background(), path)
	if err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = AcquireLock(ctx, path)
	if err == nil {
		t.Error("expected second AcquireLock to fail while first is held")
	}

	if err := l1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	l2, err := AcquireLock(context.Background(), path)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	l2.Release()
}
