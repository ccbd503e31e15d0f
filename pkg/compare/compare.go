// Package compare implements the comparison engine: joining two
// diffcore.FileEntry trees produced by pkg/scan into a single classified
// diffcore.DiffNode tree, consulting pkg/hashcache to confirm content
// equality where cheap metadata alone cannot decide a pair.
package compare

import (
	"context"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/corediff/corediff/pkg/contextutil"
	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/hashcache"
	"github.com/corediff/corediff/pkg/stream"
	"github.com/corediff/corediff/pkg/vfs"
)

// defaultStreamThreshold is the file size, in bytes, at or above which
// equality is decided by block-wise streaming rather than full-file
// hashing.
const defaultStreamThreshold = 100 * 1024 * 1024

// streamBlockSize is the block size used by the streaming comparator.
const streamBlockSize = 1024 * 1024

// Progress summarizes cumulative progress through a comparison. It is
// reported after every classified pair; the fields are cumulative counts,
// not deltas.
type Progress struct {
	// Paths is the number of paths classified so far.
	Paths uint64
	// BytesCompared is the combined size (both sides) of the file pairs
	// confirmed by hashing or streaming so far. It counts a pair's full
	// sizes even when its digests came from the cache or a streaming
	// comparison stopped at the first differing block.
	BytesCompared uint64
	// CurrentPath is the path most recently classified. Because workers
	// run concurrently, this is not guaranteed to reflect strict
	// completion order.
	CurrentPath string
}

// ProgressFunc is invoked after each classified pair. Implementations must
// be thread-safe, fast, and must not call back into the comparison engine.
type ProgressFunc func(Progress)

// Options controls a comparison run.
type Options struct {
	// VerifyHashes, if false, lets equal-size/equal-truncated-mtime pairs
	// short-circuit to DiffStatusUnchecked instead of being hashed.
	VerifyHashes bool
	// StreamThreshold is the file size at or above which equality is
	// decided by streaming both files instead of hashing them in full.
	// A value <= 0 selects defaultStreamThreshold.
	StreamThreshold int64
	// FollowSymlinks must match the value passed to the scanner that
	// produced the two trees being compared.
	FollowSymlinks bool
	// Workers bounds the number of pairs hashed or streamed concurrently.
	// A value <= 0 selects runtime.NumCPU().
	Workers int
}

func (o Options) streamThreshold() int64 {
	if o.StreamThreshold > 0 {
		return o.StreamThreshold
	}
	return defaultStreamThreshold
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// comparator holds the state shared across goroutines for a single
// Compare call.
type comparator struct {
	leftFS    vfs.FS
	rightFS   vfs.FS
	cache     *hashcache.Cache
	opts      Options
	sem       *semaphore.Weighted
	cancelled <-chan struct{}
	progress  ProgressFunc

	paths         uint64
	bytesCompared uint64
}

// Compare joins the trees rooted at left and right, produced by a prior
// scan of leftFS and rightFS respectively, into a classified DiffNode
// tree. cache supplies (and is populated with) content digests; a nil
// cache is treated as permanently empty (every hash is recomputed).
//
// cancelled, if non-nil, is checked at every join step and before each
// hash/stream operation; a cancelled comparison returns a partial tree
// along with a diffcore.ErrorKindCancelled error.
func Compare(ctx context.Context, leftFS, rightFS vfs.FS, left, right *diffcore.FileEntry, cache *hashcache.Cache, opts Options, cancelled <-chan struct{}, progress ProgressFunc) (*diffcore.DiffNode, error) {
	if cache == nil {
		cache = hashcache.New()
	}
	c := &comparator{
		leftFS:    leftFS,
		rightFS:   rightFS,
		cache:     cache,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.workers())),
		cancelled: cancelled,
		progress:  progress,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	node := c.pair("", left, right)
	classifyErr := c.classify(groupCtx, group, node, left, right)
	if waitErr := group.Wait(); classifyErr == nil {
		classifyErr = waitErr
	}
	return node, classifyErr
}

// pair allocates the DiffNode for a joined path, recording whichever of
// left/right are present. Its Status is filled in by classify.
func (c *comparator) pair(path string, left, right *diffcore.FileEntry) *diffcore.DiffNode {
	return &diffcore.DiffNode{Path: path, Left: left, Right: right}
}

func (c *comparator) isCancelled(ctx context.Context) bool {
	if contextutil.IsCancelled(ctx) {
		return true
	}
	select {
	case <-c.cancelled:
		return true
	default:
		return false
	}
}

// reportProgress increments the path counter and invokes the progress
// callback, if any, with the cumulative counts. bytesCompared is added to
// the running byte total; callers pass the pair's combined size once its
// content was confirmed, and 0 when no content confirmation was needed
// (directories, orphans, size/mtime short-circuits) or it failed.
func (c *comparator) reportProgress(path string, bytesCompared uint64) {
	paths := atomic.AddUint64(&c.paths, 1)
	total := atomic.AddUint64(&c.bytesCompared, bytesCompared)
	if c.progress == nil {
		return
	}
	c.progress(Progress{Paths: paths, BytesCompared: total, CurrentPath: path})
}

// classify fills in node.Status for the pair (left, right) and, for
// directory pairs, recursively joins and schedules their children. It may
// schedule hash/stream work onto group for concurrent execution; those
// goroutines write their classification results directly into the
// corresponding child DiffNode, which is safe because each child is only
// ever touched by the one goroutine classifying it.
func (c *comparator) classify(ctx context.Context, group *errgroup.Group, node *diffcore.DiffNode, left, right *diffcore.FileEntry) error {
	if c.isCancelled(ctx) {
		node.Status = diffcore.DiffStatusError
		return diffcore.NewError(diffcore.ErrorKindCancelled, node.Path, context.Canceled)
	}

	if left != nil && left.Err != nil {
		node.Status = diffcore.DiffStatusError
		c.reportProgress(node.Path, 0)
		return nil
	}
	if right != nil && right.Err != nil {
		node.Status = diffcore.DiffStatusError
		c.reportProgress(node.Path, 0)
		return nil
	}

	switch {
	case left == nil && right == nil:
		// Unreachable: a pair is only created when at least one side
		// has an entry.
		node.Status = diffcore.DiffStatusError
	case left == nil:
		node.Status = diffcore.DiffStatusOrphanRight
	case right == nil:
		node.Status = diffcore.DiffStatusOrphanLeft
	case left.Kind == diffcore.KindDirectory && right.Kind == diffcore.KindDirectory:
		node.Status = diffcore.DiffStatusSame
		err := c.joinChildren(ctx, group, node, left, right)
		c.reportProgress(node.Path, 0)
		return err
	case left.Kind != right.Kind:
		node.Status = diffcore.DiffStatusDifferent
	case left.Kind == diffcore.KindSymlink:
		if left.LinkTarget == right.LinkTarget {
			node.Status = diffcore.DiffStatusSame
		} else {
			node.Status = diffcore.DiffStatusDifferent
		}
	case left.Kind == diffcore.KindFile:
		return c.classifyFiles(ctx, group, node, left, right)
	default:
		node.Status = diffcore.DiffStatusDifferent
	}

	c.reportProgress(node.Path, 0)
	return nil
}

// classifyFiles handles a pair of regular files: size short-circuit,
// then the mtime fast path, then equality confirmation.
func (c *comparator) classifyFiles(ctx context.Context, group *errgroup.Group, node *diffcore.DiffNode, left, right *diffcore.FileEntry) error {
	if left.Size != right.Size {
		node.Status = diffcore.DiffStatusDifferent
		c.reportProgress(node.Path, 0)
		return nil
	}

	if !c.opts.VerifyHashes && truncatedEqual(left.ModTime, right.ModTime) {
		node.Status = diffcore.DiffStatusUnchecked
		c.reportProgress(node.Path, 0)
		return nil
	}

	threshold := c.opts.streamThreshold()
	if int64(left.Size) >= threshold {
		return c.confirmByStreaming(ctx, group, node, left, right)
	}
	return c.confirmByHashing(ctx, group, node, left, right)
}

// truncatedEqual compares two modification times after truncating both to
// whole-second precision, since some filesystems and archive formats
// don't preserve sub-second mtime resolution.
func truncatedEqual(a, b time.Time) bool {
	return a.Unix() == b.Unix()
}

// confirmByHashing schedules digest computation for both sides and
// compares the results once both complete.
func (c *comparator) confirmByHashing(ctx context.Context, group *errgroup.Group, node *diffcore.DiffNode, left, right *diffcore.FileEntry) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		node.Status = diffcore.DiffStatusError
		return diffcore.NewError(diffcore.ErrorKindCancelled, node.Path, err)
	}
	group.Go(func() error {
		defer c.sem.Release(1)

		leftDigest, err := c.digestFor(ctx, c.leftFS, left)
		if err != nil {
			node.Status = diffcore.DiffStatusError
			c.reportProgress(node.Path, 0)
			return nil
		}
		rightDigest, err := c.digestFor(ctx, c.rightFS, right)
		if err != nil {
			node.Status = diffcore.DiffStatusError
			c.reportProgress(node.Path, 0)
			return nil
		}

		left.Digest = &leftDigest
		right.Digest = &rightDigest
		if leftDigest.Equal(rightDigest) {
			node.Status = diffcore.DiffStatusSame
		} else {
			node.Status = diffcore.DiffStatusDifferent
		}
		c.reportProgress(node.Path, left.Size+right.Size)
		return nil
	})
	return nil
}

// digestFor retrieves or computes the digest for entry on backend,
// populating the shared cache.
func (c *comparator) digestFor(ctx context.Context, backend vfs.FS, entry *diffcore.FileEntry) (diffcore.Digest, error) {
	if entry.Digest != nil {
		return *entry.Digest, nil
	}
	info := &vfs.Info{Size: entry.Size, ModTime: entry.ModTime}
	return c.cache.Digest(ctx, backend, entry.Path, info, c.cancelled)
}

// confirmByStreaming schedules a block-wise comparison of both files,
// bypassing the hash cache entirely: large files that are re-encountered
// across runs are expensive to hash just to discard the digest, so the
// comparator never materializes one for them.
func (c *comparator) confirmByStreaming(ctx context.Context, group *errgroup.Group, node *diffcore.DiffNode, left, right *diffcore.FileEntry) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		node.Status = diffcore.DiffStatusError
		return diffcore.NewError(diffcore.ErrorKindCancelled, node.Path, err)
	}
	group.Go(func() error {
		defer c.sem.Release(1)

		equal, err := StreamEqual(ctx, c.leftFS, c.rightFS, left.Path, right.Path, c.cancelled)
		if err != nil {
			node.Status = diffcore.DiffStatusError
			c.reportProgress(node.Path, 0)
			return nil
		}
		if equal {
			node.Status = diffcore.DiffStatusSame
		} else {
			node.Status = diffcore.DiffStatusDifferent
		}
		c.reportProgress(node.Path, left.Size+right.Size)
		return nil
	})
	return nil
}

// joinChildren merges left's and right's children by path, producing one
// DiffNode per distinct path, and recursively schedules classification
// for each. It stops at the first child whose classification fails
// (cancellation) and returns that error.
func (c *comparator) joinChildren(ctx context.Context, group *errgroup.Group, node *diffcore.DiffNode, left, right *diffcore.FileEntry) error {
	li, ri := 0, 0
	for li < len(left.Children) || ri < len(right.Children) {
		var lc, rc *diffcore.FileEntry
		var path string
		switch {
		case li >= len(left.Children):
			rc = right.Children[ri]
			path = rc.Path
			ri++
		case ri >= len(right.Children):
			lc = left.Children[li]
			path = lc.Path
			li++
		case left.Children[li].Path == right.Children[ri].Path:
			lc, rc = left.Children[li], right.Children[ri]
			path = lc.Path
			li++
			ri++
		case left.Children[li].Path < right.Children[ri].Path:
			lc = left.Children[li]
			path = lc.Path
			li++
		default:
			rc = right.Children[ri]
			path = rc.Path
			ri++
		}

		child := c.pair(path, lc, rc)
		node.Children = append(node.Children, child)
		if err := c.classify(ctx, group, child, lc, rc); err != nil {
			// Returned up through classify to Compare; the partial tree
			// already holds whatever was classified.
			return err
		}
	}
	return nil
}

// StreamEqual compares the files at leftPath/rightPath on the two
// backends block-by-block, short-circuiting on the first differing block
// or on a length mismatch, using O(block size) memory regardless of file
// size.
//
// A reader goroutine per side feeds a bounded channel of blocks, and the
// calling goroutine acts as the comparator, so a slow side naturally
// applies backpressure to the fast one.
func StreamEqual(ctx context.Context, leftFS, rightFS vfs.FS, leftPath, rightPath string, cancelled <-chan struct{}) (bool, error) {
	leftReader, err := leftFS.Open(ctx, leftPath)
	if err != nil {
		return false, err
	}
	defer leftReader.Close()
	rightReader, err := rightFS.Open(ctx, rightPath)
	if err != nil {
		return false, err
	}
	defer rightReader.Close()

	leftBlocks := streamBlocks(leftReader, cancelled)
	rightBlocks := streamBlocks(rightReader, cancelled)

	for {
		lb, lok := <-leftBlocks
		rb, rok := <-rightBlocks

		if lb.err != nil {
			return false, lb.err
		}
		if rb.err != nil {
			return false, rb.err
		}

		if !lok && !rok {
			return true, nil
		}
		if lok != rok {
			// One side ran out of data before the other.
			return false, nil
		}
		if len(lb.data) != len(rb.data) {
			return false, nil
		}
		for i := range lb.data {
			if lb.data[i] != rb.data[i] {
				return false, nil
			}
		}
	}
}

// block is a single chunk read from a streamed file, or a terminal error
// (a zero-value block with ok=false from the channel just means EOF).
type block struct {
	data []byte
	err  error
}

// streamBlocks launches a goroutine that reads r in streamBlockSize
// chunks, sending each onto the returned channel (depth 4), until EOF or
// an error. Each chunk is filled with io.ReadFull rather than a single
// Read call: a short read from one side's backend (SFTP and compressed
// readers routinely return less than a full streamBlockSize) would
// otherwise desynchronize the two sides' block boundaries and make
// byte-identical files compare as Different.
func streamBlocks(r io.Reader, cancelled <-chan struct{}) <-chan block {
	out := make(chan block, 4)
	reader := r
	if cancelled != nil {
		reader = stream.NewPreemptableReader(r, cancelled, 0)
	}
	go func() {
		defer close(out)
		buf := make([]byte, streamBlockSize)
		for {
			n, err := io.ReadFull(reader, buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				out <- block{data: chunk}
			}
			switch err {
			case nil:
				continue
			case io.EOF, io.ErrUnexpectedEOF:
				return
			default:
				out <- block{err: err}
				return
			}
		}
	}()
	return out
}
