package diffcore

// DiffStatus classifies the relationship between a pair of entries found at
// the same path on the two sides of a comparison.
type DiffStatus uint8

const (
	// DiffStatusSame indicates that both sides have an entry at this path
	// and they were found to be equivalent.
	DiffStatusSame DiffStatus = iota
	// DiffStatusDifferent indicates that both sides have an entry at this
	// path but they differ (in kind, size, or content).
	DiffStatusDifferent
	// DiffStatusOrphanLeft indicates that only the left side has an entry
	// at this path.
	DiffStatusOrphanLeft
	// DiffStatusOrphanRight indicates that only the right side has an
	// entry at this path.
	DiffStatusOrphanRight
	// DiffStatusUnchecked indicates that both sides have a regular file at
	// this path with equal sizes and equal whole-second modification
	// times, and content comparison was skipped because hash verification
	// was not requested.
	DiffStatusUnchecked
	// DiffStatusError indicates that at least one side reported an error
	// while probing this path, preventing classification.
	DiffStatusError
)

// String returns a human-readable name for the diff status.
func (s DiffStatus) String() string {
	switch s {
	case DiffStatusSame:
		return "same"
	case DiffStatusDifferent:
		return "different"
	case DiffStatusOrphanLeft:
		return "orphan-left"
	case DiffStatusOrphanRight:
		return "orphan-right"
	case DiffStatusUnchecked:
		return "unchecked"
	case DiffStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// DiffNode is a single node in a DiffTree: the comparison result for one
// path, paired with its classified children (for paths that are
// directories on both sides).
type DiffNode struct {
	// Path is the node's path relative to the two comparison roots.
	Path string
	// Left is the left-side entry at this path, or nil if it does not
	// exist there.
	Left *FileEntry
	// Right is the right-side entry at this path, or nil if it does not
	// exist there.
	Right *FileEntry
	// Status is the classification for this path.
	Status DiffStatus
	// Children holds the classified children of this node, sorted by Path
	// in depth-first traversal order. It is non-empty only when both sides
	// report this path as a directory; an orphan directory, or a directory
	// paired with a non-directory, has no child nodes.
	Children []*DiffNode
}

// Name returns the node's base name, or the empty string for the root.
func (n *DiffNode) Name() string {
	return PathBase(n.Path)
}

// Walk invokes visit for n and, recursively, every descendant, in
// depth-first order. If visit returns false, Walk stops descending into
// that node's children but continues with its siblings.
func (n *DiffNode) Walk(visit func(*DiffNode) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(visit)
	}
}

// Counts tallies the number of nodes at the given path and below, grouped
// by status. Every node is counted, directories included (under whatever
// status the engine assigned them).
func (n *DiffNode) Counts() map[DiffStatus]int {
	counts := make(map[DiffStatus]int)
	n.Walk(func(node *DiffNode) bool {
		counts[node.Status]++
		return true
	})
	return counts
}

// HasDifferences reports whether the subtree rooted at n contains any node
// whose status is not DiffStatusSame. This is the predicate the CLI
// collaborator uses to choose between exit status 0 and the "differences
// found" exit status.
func (n *DiffNode) HasDifferences() bool {
	var found bool
	n.Walk(func(node *DiffNode) bool {
		if node.Status != DiffStatusSame {
			found = true
			return false
		}
		return true
	})
	return found
}
