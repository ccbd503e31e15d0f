// Command corediff drives a scan-then-compare run between two roots
// (local directories or archive files) and prints a summary of the
// resulting diff tree.
//
// Exit status is three-way: 0 means the roots are identical, 1 means
// differences were found, and 2 means an operational error prevented the
// comparison from completing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corediff/corediff/pkg/compare"
	"github.com/corediff/corediff/pkg/config"
	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/hashcache"
	"github.com/corediff/corediff/pkg/ignore"
	"github.com/corediff/corediff/pkg/logging"
	"github.com/corediff/corediff/pkg/scan"
	"github.com/corediff/corediff/pkg/vfs"
	"github.com/corediff/corediff/pkg/vfs/archive"
	"github.com/corediff/corediff/pkg/vfs/local"
)

const (
	exitIdentical   = 0
	exitDifferences = 1
	exitError       = 2
)

var logger = logging.RootLogger.Sublogger("corediff")

var flags struct {
	configPath      string
	ignore          []string
	loadGitignore   bool
	followSymlinks  bool
	verifyHashes    bool
	streamThreshold string
	workers         int
	cachePath       string
	quiet           bool
}

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:           "corediff <left> <right>",
		Short:         "Compare two directories or archives",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Flags().StringVar(&flags.configPath, "config", "", "path to a YAML configuration file")
	root.Flags().StringArrayVar(&flags.ignore, "ignore", nil, "gitignore-syntax exclusion pattern (repeatable)")
	root.Flags().BoolVar(&flags.loadGitignore, "load-gitignore", false, "honor .gitignore files discovered on the left root")
	root.Flags().BoolVar(&flags.followSymlinks, "follow-symlinks", false, "resolve symlinks to their targets before comparing")
	root.Flags().BoolVar(&flags.verifyHashes, "verify-hashes", false, "always confirm equal-size/equal-mtime pairs by hashing")
	root.Flags().StringVar(&flags.streamThreshold, "stream-threshold", "", "size at or above which files are compared by streaming (e.g. 100MB)")
	root.Flags().IntVar(&flags.workers, "workers", 0, "worker count for scanning, hashing, and comparing (0 = CPU count)")
	root.Flags().StringVar(&flags.cachePath, "cache", "", "path to the persistent hash cache file")
	root.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress per-path output; print only the summary")

	exitCode := exitIdentical
	root.RunE = func(cmd *cobra.Command, args []string) error {
		code, err := diffCommandCode(args[0], args[1])
		exitCode = code
		return err
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == exitIdentical {
			exitCode = exitError
		}
	}
	return exitCode
}

func diffCommandCode(leftPath, rightPath string) (int, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return exitError, err
		}
		cfg = loaded
	}
	applyFlagOverrides(&cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	leftFS, err := openVFS(leftPath, cfg.FollowSymlinks)
	if err != nil {
		return exitError, fmt.Errorf("unable to open left root: %w", err)
	}
	defer leftFS.Close()

	rightFS, err := openVFS(rightPath, cfg.FollowSymlinks)
	if err != nil {
		return exitError, fmt.Errorf("unable to open right root: %w", err)
	}
	defer rightFS.Close()

	matcher, err := ignore.New(cfg.Ignore)
	if err != nil {
		return exitError, fmt.Errorf("invalid ignore pattern: %w", err)
	}

	scanOpts := scan.Options{
		Ignore:         matcher,
		LoadGitignore:  cfg.LoadGitignore,
		FollowSymlinks: cfg.FollowSymlinks,
		MaxDepth:       cfg.MaxDepth,
		Workers:        cfg.Workers,
	}

	leftTree, err := scan.Scan(ctx, leftFS, scanOpts, ctx.Done())
	if err != nil {
		return exitError, fmt.Errorf("unable to scan left root: %w", err)
	}
	rightTree, err := scan.Scan(ctx, rightFS, scanOpts, ctx.Done())
	if err != nil {
		return exitError, fmt.Errorf("unable to scan right root: %w", err)
	}

	cache := hashcache.New()
	if cfg.CachePath != "" {
		cache = hashcache.LoadOrEmpty(cfg.CachePath, logger)
	}

	compareOpts := compare.Options{
		VerifyHashes:    cfg.VerifyHashes,
		StreamThreshold: int64(cfg.StreamThreshold),
		FollowSymlinks:  cfg.FollowSymlinks,
		Workers:         cfg.Workers,
	}

	var progress compare.ProgressFunc
	if !flags.quiet {
		progress = func(p compare.Progress) {}
	}

	tree, err := compare.Compare(ctx, leftFS, rightFS, leftTree, rightTree, cache, compareOpts, ctx.Done(), progress)
	if err != nil {
		return exitError, fmt.Errorf("comparison failed: %w", err)
	}

	if cfg.CachePath != "" {
		if err := cache.Save(cfg.CachePath, logger); err != nil {
			logger.Warn(fmt.Errorf("unable to save hash cache: %w", err))
		}
	}

	if !flags.quiet {
		printTree(tree)
	}
	printSummary(tree)

	if tree.HasDifferences() {
		return exitDifferences, nil
	}
	return exitIdentical, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if len(flags.ignore) > 0 {
		cfg.Ignore = append(append([]string{}, cfg.Ignore...), flags.ignore...)
	}
	if flags.loadGitignore {
		cfg.LoadGitignore = true
	}
	if flags.followSymlinks {
		cfg.FollowSymlinks = true
	}
	if flags.verifyHashes {
		cfg.VerifyHashes = true
	}
	if flags.streamThreshold != "" {
		if parsed, err := config.ParseByteSize(flags.streamThreshold); err == nil {
			cfg.StreamThreshold = parsed
		}
	}
	if flags.workers != 0 {
		cfg.Workers = flags.workers
	}
	if flags.cachePath != "" {
		cfg.CachePath = flags.cachePath
	}
}

// openVFS mounts path as a local directory or, if it looks like a
// supported archive file, an archive.FS.
func openVFS(path string, followSymlinks bool) (vfs.FS, error) {
	if isArchivePath(path) {
		return archive.Open(path)
	}
	var opts []local.Option
	if followSymlinks {
		opts = append(opts, local.WithFollowSymlinks(true))
	}
	return local.New(path, opts...)
}

func isArchivePath(path string) bool {
	lower := strings.ToLower(path)
	for _, suffix := range []string{".zip", ".tar", ".tar.gz", ".tgz"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func printTree(node *diffcore.DiffNode) {
	node.Walk(func(n *diffcore.DiffNode) bool {
		if n.Path == "" {
			return true
		}
		fmt.Printf("%-12s %s\n", n.Status, n.Path)
		return true
	})
}

func printSummary(node *diffcore.DiffNode) {
	counts := node.Counts()
	fmt.Printf(
		"same=%d different=%d orphan-left=%d orphan-right=%d unchecked=%d error=%d\n",
		counts[diffcore.DiffStatusSame],
		counts[diffcore.DiffStatusDifferent],
		counts[diffcore.DiffStatusOrphanLeft],
		counts[diffcore.DiffStatusOrphanRight],
		counts[diffcore.DiffStatusUnchecked],
		counts[diffcore.DiffStatusError],
	)
}
