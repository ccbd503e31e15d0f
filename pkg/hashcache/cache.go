// Package hashcache implements a persistent, content-addressed digest
// cache keyed on (VFS instance, path, size, modification time), and the
// worker-pool driver that populates it.
package hashcache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/logging"
	"github.com/corediff/corediff/pkg/stream"
	"github.com/corediff/corediff/pkg/vfs"
)

// key identifies a single cacheable digest computation.
type key struct {
	instanceID string
	path       string
	size       uint64
	mtimeSec   int64
}

// Cache is an in-memory, file-backed map from (instance, path, size,
// mtime-seconds) to a content digest. A digest is only trusted if the
// entry's recorded size and modification time still match the file being
// probed; any mismatch is treated as a cache miss rather than stale data,
// so the cache can never report an incorrect digest for a changed file.
//
// Lookup and Store are called concurrently from the comparison engine's
// and HashMany's worker pools, so the map is guarded by a reader-writer
// lock: readers (the common case, a cache hit) don't block each other,
// and only a miss that goes on to Store takes the exclusive lock.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]diffcore.Digest
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[key]diffcore.Digest)}
}

// keyFor builds a lookup key from a VFS instance ID and an entry's
// metadata.
func keyFor(instanceID, path string, size uint64, modTime time.Time) key {
	return key{instanceID: instanceID, path: path, size: size, mtimeSec: modTime.Unix()}
}

// Lookup returns the cached digest for the given entry, if any, and
// whether it was found.
func (c *Cache) Lookup(instanceID, path string, size uint64, modTime time.Time) (diffcore.Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[keyFor(instanceID, path, size, modTime)]
	return d, ok
}

// Store records a digest for the given entry.
func (c *Cache) Store(instanceID, path string, size uint64, modTime time.Time, digest diffcore.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[keyFor(instanceID, path, size, modTime)] = digest
}

// Len returns the number of entries currently held by the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Digest computes (or retrieves from cache) the content digest for the file
// at path on fs. It always validates the cached entry's size and mtime
// against the current metadata before trusting it.
func (c *Cache) Digest(ctx context.Context, fs vfs.FS, path string, info *vfs.Info, cancelled <-chan struct{}) (diffcore.Digest, error) {
	instanceID := fs.InstanceID()
	if d, ok := c.Lookup(instanceID, path, info.Size, info.ModTime); ok {
		return d, nil
	}

	reader, err := fs.Open(ctx, path)
	if err != nil {
		return diffcore.Digest{}, err
	}
	defer reader.Close()

	digest, err := hashReader(reader, cancelled)
	if err != nil {
		return diffcore.Digest{}, diffcore.NewError(diffcore.ErrorKindIO, path, err)
	}

	c.Store(instanceID, path, info.Size, info.ModTime, digest)
	return digest, nil
}

// hashReader computes the BLAKE3-256 digest of r, checking cancelled
// periodically so long hashes of large files can be aborted promptly.
func hashReader(r io.Reader, cancelled <-chan struct{}) (diffcore.Digest, error) {
	hasher := blake3.New()
	preemptable := stream.NewPreemptableReader(r, cancelled, 64)
	if _, err := io.Copy(hasher, preemptable); err != nil {
		return diffcore.Digest{}, err
	}

	var digest diffcore.Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// logCacheFailure reports a non-fatal cache load/save error through logger,
// per the convention that hash cache persistence failures never abort a
// comparison (they just mean every digest is recomputed this run).
func logCacheFailure(logger *logging.Logger, operation string, err error) {
	logger.Warn(fmt.Errorf("hash cache %s failed: %w", operation, err))
}
