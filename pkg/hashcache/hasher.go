package hashcache

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/vfs"
)

// Job is a single digest request submitted to HashMany.
type Job struct {
	// Path is the root-relative path of the file to hash.
	Path string
	// Info is the file's metadata as reported by the scanner.
	Info *vfs.Info
}

// Result is the outcome of hashing a single Job.
type Result struct {
	Path   string
	Digest diffcore.Digest
	Err    error
}

// HashMany computes digests for every job concurrently, populating c as it
// goes, and returns one Result per job, in the same order as jobs. It stops
// launching new work once ctx is cancelled, but still drains in-flight
// jobs so that every job produces exactly one Result.
//
// workers bounds the number of files hashed at once; a value <= 0 selects
// runtime.NumCPU(). cancelled is threaded through to each hash so that a
// single oversized file can be aborted mid-read without waiting for the
// whole batch.
func (c *Cache) HashMany(ctx context.Context, fs vfs.FS, jobs []Job, workers int, cancelled <-chan struct{}) []Result {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]Result, len(jobs))
	sem := semaphore.NewWeighted(int64(workers))
	group, groupCtx := errgroup.WithContext(ctx)

	for i, job := range jobs {
		i, job := i, job
		if err := sem.Acquire(groupCtx, 1); err != nil {
			results[i] = Result{Path: job.Path, Err: diffcore.NewError(diffcore.ErrorKindCancelled, job.Path, err)}
			continue
		}
		group.Go(func() error {
			defer sem.Release(1)
			digest, err := c.Digest(groupCtx, fs, job.Path, job.Info, cancelled)
			results[i] = Result{Path: job.Path, Digest: digest, Err: err}
			return nil
		})
	}

	// The errgroup's Go functions never return a non-nil error (failures
	// are recorded per-result instead), so the wait only propagates
	// context cancellation plumbing; its error is intentionally ignored.
	_ = group.Wait()

	return results
}
