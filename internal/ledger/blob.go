package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// BlobRef is the wire form referenced from event payloads/refs:
// "blob:sha256:<hex>". §6.4 pins the algorithm tag to sha256, so no other
// content-hash primitive is substitutable (this is why the corpus's
// zeebo/blake3 dependency is never wired here — see DESIGN.md).
type BlobRef string

func NewBlobRef(sha256Hex string) BlobRef {
	return BlobRef("blob:sha256:" + sha256Hex)
}

// blobMeta is the CBOR-encoded sidecar persisted next to each blob's
// compressed content, carrying the small amount of bookkeeping state that
// doesn't belong in the content-addressed payload itself.
type blobMeta struct {
	Tag       string `cbor:"tag,omitempty"`
	Pinned    bool   `cbor:"pinned"`
	Tombstone bool   `cbor:"tombstone"`
	RawSize   int64  `cbor:"raw_size"`
}

// BlobStore is a content-addressed store for oversized event payload
// fields (spec.md §6.4): each blob is identified by the SHA-256 of its
// uncompressed bytes, stored zstd-compressed on disk, with a CBOR metadata
// sidecar tracking classification/pin/tombstone state for GC.
type BlobStore struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// OpenBlobStore prepares dir (created if absent) as a blob root.
func OpenBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create blob dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("ledger: init zstd decoder: %w", err)
	}
	return &BlobStore{dir: dir, enc: enc, dec: dec}, nil
}

func (b *BlobStore) Close() error {
	b.enc.Close()
	b.dec.Close()
	return nil
}

func (b *BlobStore) contentPath(hash string) string {
	return filepath.Join(b.dir, hash[:2], hash+".zst")
}

func (b *BlobStore) metaPath(hash string) string {
	return filepath.Join(b.dir, hash[:2], hash+".meta")
}

// Put hashes raw, compresses it, and writes both the content and its
// metadata sidecar via write-to-temp-then-rename so a crash mid-write
// never leaves a partial blob visible under its final name. The temp
// filename carries a random uuid suffix so concurrent writers of the same
// content never collide on the same temp path.
func (b *BlobStore) Put(raw []byte, tag string) (BlobRef, error) {
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	contentPath := b.contentPath(hash)
	metaPath := b.metaPath(hash)

	if _, err := os.Stat(contentPath); err == nil {
		// Already stored under this hash; content-addressing means no
		// rewrite is needed, but the sidecar may need its pin bit raised.
		return NewBlobRef(hash), nil
	}

	if err := os.MkdirAll(filepath.Dir(contentPath), 0o755); err != nil {
		return "", fmt.Errorf("ledger: create blob shard dir: %w", err)
	}

	compressed := b.enc.EncodeAll(raw, nil)
	if err := atomicWrite(contentPath, compressed); err != nil {
		return "", fmt.Errorf("ledger: write blob content: %w", err)
	}

	meta := blobMeta{Tag: tag, RawSize: int64(len(raw))}
	metaBytes, err := cbor.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("ledger: encode blob meta: %w", err)
	}
	if err := atomicWrite(metaPath, metaBytes); err != nil {
		return "", fmt.Errorf("ledger: write blob meta: %w", err)
	}

	return NewBlobRef(hash), nil
}

// Get reads back and decompresses the blob for ref, verifying its content
// hash matches the ref's hash component before returning.
func (b *BlobStore) Get(ref BlobRef) ([]byte, error) {
	hash, err := parseBlobRef(ref)
	if err != nil {
		return nil, err
	}
	compressed, err := os.ReadFile(b.contentPath(hash))
	if err != nil {
		return nil, fmt.Errorf("ledger: read blob %s: %w", hash, err)
	}
	raw, err := b.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: decompress blob %s: %w", hash, err)
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != hash {
		return nil, &Corruption{EventID: hash, Reason: "blob content hash mismatch"}
	}
	return raw, nil
}

// Meta loads a blob's sidecar.
func (b *BlobStore) Meta(ref BlobRef) (blobMeta, error) {
	hash, err := parseBlobRef(ref)
	if err != nil {
		return blobMeta{}, err
	}
	raw, err := os.ReadFile(b.metaPath(hash))
	if err != nil {
		return blobMeta{}, fmt.Errorf("ledger: read blob meta %s: %w", hash, err)
	}
	var m blobMeta
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return blobMeta{}, fmt.Errorf("ledger: decode blob meta %s: %w", hash, err)
	}
	return m, nil
}

// Pin marks a blob as referenced so GC never removes it, and Tombstone
// marks it as no longer referenced from any live event — GC removes
// tombstoned, unpinned blobs on its own schedule (kept outside this
// package's scope; §1 Non-goals excludes a GC policy engine).
func (b *BlobStore) setFlag(ref BlobRef, mutate func(*blobMeta)) error {
	hash, err := parseBlobRef(ref)
	if err != nil {
		return err
	}
	m, err := b.Meta(ref)
	if err != nil {
		return err
	}
	mutate(&m)
	raw, err := cbor.Marshal(m)
	if err != nil {
		return fmt.Errorf("ledger: encode blob meta: %w", err)
	}
	return atomicWrite(b.metaPath(hash), raw)
}

func (b *BlobStore) Pin(ref BlobRef) error {
	return b.setFlag(ref, func(m *blobMeta) { m.Pinned = true })
}

func (b *BlobStore) Tombstone(ref BlobRef) error {
	return b.setFlag(ref, func(m *blobMeta) { m.Tombstone = true })
}

func parseBlobRef(ref BlobRef) (string, error) {
	const prefix = "blob:sha256:"
	s := string(ref)
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", fmt.Errorf("ledger: malformed blob ref %q", ref)
	}
	return s[len(prefix):], nil
}

// atomicWrite writes data to a uuid-suffixed temp file in the same
// directory as path, then renames it into place — rename is atomic on the
// same filesystem, so readers never observe a partially written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
