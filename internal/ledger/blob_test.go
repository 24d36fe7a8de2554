package ledger

import (
	"bytes"
	"strings"
	"testing"
)

func openTestBlobStore(t *testing.T) *BlobStore {
	t.Helper()
	b, err := OpenBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBlobStore: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBlobStore_PutGetRoundTrip(t *testing.T) {
	b := openTestBlobStore(t)
	content := []byte(strings.Repeat("hello world ", 1000))

	ref, err := b.Put(content, "tool_output")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(string(ref), "blob:sha256:") {
		t.Errorf("ref %q missing blob:sha256: prefix", ref)
	}

	got, err := b.Get(ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("round-tripped content differs from original")
	}
}

func TestBlobStore_PutIdempotent(t *testing.T) {
	b := openTestBlobStore(t)
	content := []byte("same content twice")

	ref1, err := b.Put(content, "")
	if err != nil {
		t.Fatal(err)
	}
	ref2, err := b.Put(content, "")
	if err != nil {
		t.Fatal(err)
	}
	if ref1 != ref2 {
		t.Errorf("identical content produced different refs: %q vs %q", ref1, ref2)
	}
}

func TestBlobStore_PinAndTombstone(t *testing.T) {
	b := openTestBlobStore(t)
	ref, err := b.Put([]byte("pin me"), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Pin(ref); err != nil {
		t.Fatal(err)
	}
	meta, err := b.Meta(ref)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.Pinned {
		t.Error("expected Pinned=true after Pin")
	}

	if err := b.Tombstone(ref); err != nil {
		t.Fatal(err)
	}
	meta, err = b.Meta(ref)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.Tombstone {
		t.Error("expected Tombstone=true after Tombstone")
	}
}

func TestParseBlobRef_RejectsMalformed(t *testing.T) {
	if _, err := parseBlobRef("not-a-ref"); err == nil {
		t.Error("expected error for malformed ref")
	}
}
