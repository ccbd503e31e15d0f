// Package scan implements the parallel directory walk that turns a vfs.FS
// root into a diffcore.FileEntry tree, applying ignore-pattern exclusion
// along the way.
package scan

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/corediff/corediff/pkg/contextutil"
	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/ignore"
	"github.com/corediff/corediff/pkg/vfs"
)

// Options controls a scan.
type Options struct {
	// Ignore is the matcher applied to every path beneath the root. A nil
	// matcher excludes nothing.
	Ignore *ignore.Matcher
	// LoadGitignore causes the scanner to load any ".gitignore" file found
	// in each directory and merge it into that subtree's matcher (with
	// the loaded file's patterns taking precedence). A nested file's
	// patterns are matched against root-relative paths, so a rooted
	// pattern or one containing a slash is anchored at the scan root, not
	// at the directory holding the .gitignore file.
	LoadGitignore bool
	// FollowSymlinks records whether fs was constructed to resolve
	// symlinks to their targets (e.g. vfs/local's WithFollowSymlinks).
	// The scanner does not itself dereference links; this field exists so
	// scan results can be paired with a comparison engine run with a
	// matching pkg/compare.Options.FollowSymlinks value.
	FollowSymlinks bool
	// MaxDepth bounds how many directory levels beneath the root are
	// descended into. A value <= 0 means unlimited. The root's immediate
	// children are at depth 1.
	MaxDepth int
	// Workers bounds the number of directories processed concurrently. A
	// value <= 0 selects runtime.NumCPU().
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// scanner holds the state shared by every goroutine participating in a
// single scan.
type scanner struct {
	fs            vfs.FS
	sem           *semaphore.Weighted
	cancelled     <-chan struct{}
	loadGitignore bool
	maxDepth      int
}

// Scan walks fs starting at its root, producing a diffcore.FileEntry tree.
// Ignore patterns are evaluated against every path beneath the root; the
// root itself is never excluded.
//
// cancelled, if non-nil, is checked at directory boundaries, allowing a
// scan to be aborted promptly without waiting for unrelated subtrees to
// finish walking.
func Scan(ctx context.Context, fs vfs.FS, opts Options, cancelled <-chan struct{}) (*diffcore.FileEntry, error) {
	info, err := fs.Stat(ctx, "")
	if err != nil {
		return nil, err
	}

	s := &scanner{
		fs:            fs,
		sem:           semaphore.NewWeighted(int64(opts.workers())),
		cancelled:     cancelled,
		loadGitignore: opts.LoadGitignore,
		maxDepth:      opts.MaxDepth,
	}

	matcher := opts.Ignore
	if s.loadGitignore {
		matcher = s.mergeGitignore(ctx, "", matcher)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	root := s.entryFromInfo("", info)
	if root.Kind == diffcore.KindDirectory {
		group.Go(func() error {
			if err := s.sem.Acquire(groupCtx, 1); err != nil {
				return diffcore.NewError(diffcore.ErrorKindCancelled, "", err)
			}
			defer s.sem.Release(1)
			return s.scanDirectory(groupCtx, group, root, matcher, 0)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sortChildrenRecursive(root)
	return root, nil
}

// entryFromInfo converts a vfs.Info, as reported for path, into a bare
// diffcore.FileEntry with no children populated yet.
func (s *scanner) entryFromInfo(path string, info *vfs.Info) *diffcore.FileEntry {
	var kind diffcore.Kind
	switch info.Kind {
	case vfs.KindDirectory:
		kind = diffcore.KindDirectory
	case vfs.KindSymlink:
		kind = diffcore.KindSymlink
	default:
		kind = diffcore.KindFile
	}
	return &diffcore.FileEntry{
		Path:       path,
		Kind:       kind,
		Size:       info.Size,
		ModTime:    info.ModTime,
		Mode:       info.Mode,
		LinkTarget: info.LinkTarget,
	}
}

// mergeGitignore loads a ".gitignore" file directly beneath path, if one
// exists, and merges it on top of parent so the loaded file's patterns
// take precedence over the parent directory's.
func (s *scanner) mergeGitignore(ctx context.Context, path string, parent *ignore.Matcher) *ignore.Matcher {
	gitignorePath := ".gitignore"
	if path != "" {
		gitignorePath = diffcore.PathJoin(path, ".gitignore")
	}

	reader, err := s.fs.Open(ctx, gitignorePath)
	if err != nil {
		return parent
	}
	defer reader.Close()

	loaded, err := ignore.NewFromGitignore(reader)
	if err != nil {
		return parent
	}
	return parent.Merge(loaded)
}

// scanDirectory lists dir's contents, applies ignore filtering, records
// files and symlinks directly into dir.Children, and recursively schedules
// subdirectories on group.
func (s *scanner) scanDirectory(ctx context.Context, group *errgroup.Group, dir *diffcore.FileEntry, matcher *ignore.Matcher, depth int) error {
	if contextutil.IsCancelled(ctx) {
		return diffcore.NewError(diffcore.ErrorKindCancelled, dir.Path, context.Canceled)
	}
	select {
	case <-s.cancelled:
		return diffcore.NewError(diffcore.ErrorKindCancelled, dir.Path, context.Canceled)
	default:
	}

	infos, err := s.fs.ReadDir(ctx, dir.Path)
	if err != nil {
		dir.Err = asDiffError(err, dir.Path)
		return nil
	}

	var mu sync.Mutex
	children := make([]*diffcore.FileEntry, 0, len(infos))

	for _, info := range infos {
		info := info
		childPath := diffcore.PathJoin(dir.Path, info.Name)
		isDir := info.Kind == vfs.KindDirectory

		status, continueTraversal := matcher.Match(childPath, isDir)
		if status == ignore.StatusIgnored && !continueTraversal {
			continue
		}

		child := s.entryFromInfo(childPath, info)

		mu.Lock()
		children = append(children, child)
		mu.Unlock()

		if !isDir {
			continue
		}
		if s.maxDepth > 0 && depth+1 >= s.maxDepth {
			continue
		}

		childMatcher := matcher
		if s.loadGitignore {
			childMatcher = s.mergeGitignore(ctx, childPath, matcher)
		}

		// The semaphore is acquired inside the spawned goroutine, not
		// here: this goroutine is itself holding a slot while scheduling
		// children, so acquiring another slot synchronously before
		// group.Go would let every worker block waiting for a free slot
		// while all slots are held by blocked workers, deadlocking the
		// scan once enough directories fan out concurrently.
		group.Go(func() error {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				child.Err = diffcore.NewError(diffcore.ErrorKindCancelled, childPath, err)
				return nil
			}
			defer s.sem.Release(1)
			return s.scanDirectory(ctx, group, child, childMatcher, depth+1)
		})
	}

	dir.Children = children
	return nil
}

func asDiffError(err error, path string) *diffcore.Error {
	if de, ok := err.(*diffcore.Error); ok {
		return de
	}
	return diffcore.NewError(diffcore.ErrorKindIO, path, err)
}

// sortChildrenRecursive orders entry's Children by path (depth-first, per
// diffcore's traversal convention) and recurses into each subdirectory.
// Since children at a single level share a parent path, a plain
// lexicographic comparison of the full path is equivalent to comparing
// base names here.
func sortChildrenRecursive(entry *diffcore.FileEntry) {
	if entry == nil {
		return
	}
	sort.Slice(entry.Children, func(i, j int) bool {
		return entry.Children[i].Path < entry.Children[j].Path
	})
	for _, child := range entry.Children {
		sortChildrenRecursive(child)
	}
}
