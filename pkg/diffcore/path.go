package diffcore

import (
	"strings"
)

// PathJoin is a fast alternative to path.Join designed specifically for
// root-relative comparison paths. It avoids the unnecessary path cleaning
// overhead incurred by path.Join. The provided leaf name must be non-empty,
// otherwise this function will panic. It's used by the scanner to build
// child paths while walking a VFS tree.
func PathJoin(base, leaf string) string {
	if leaf == "" {
		panic("empty leaf name")
	}

	// When joining a path to the scan root, we don't want to concatenate.
	if base == "" {
		return leaf
	}

	return base + "/" + leaf
}

// PathBase is a fast alternative to path.Base designed specifically for
// root-relative comparison paths. If the provided path is empty (i.e. the
// root path), this function returns an empty string. If the provided path
// contains no slashes, then it is returned directly. If the path ends with a
// slash, this function panics, because that represents an invalid
// root-relative path.
func PathBase(path string) string {
	if path == "" {
		return ""
	}

	lastSlashIndex := strings.LastIndexByte(path, '/')

	if lastSlashIndex == -1 {
		return path
	}

	if lastSlashIndex == len(path)-1 {
		panic("empty base name")
	}

	return path[lastSlashIndex+1:]
}

// pathLess performs a sort comparison between two root-relative comparison
// paths. It returns true if first comes before second in depth-first
// traversal order.
func pathLess(first, second string) bool {
	if first == second {
		return false
	} else if first == "" {
		return true
	} else if second == "" {
		return false
	}

	for {
		firstFirstSlashIndex := strings.IndexByte(first, '/')
		var firstFrontComponent string
		if firstFirstSlashIndex == -1 {
			firstFrontComponent = first
		} else {
			firstFrontComponent = first[:firstFirstSlashIndex]
		}

		secondFirstSlashIndex := strings.IndexByte(second, '/')
		var secondFrontComponent string
		if secondFirstSlashIndex == -1 {
			secondFrontComponent = second
		} else {
			secondFrontComponent = second[:secondFirstSlashIndex]
		}

		if firstFrontComponent < secondFrontComponent {
			return true
		} else if secondFrontComponent < firstFrontComponent {
			return false
		}

		if firstFirstSlashIndex == -1 {
			return true
		} else if secondFirstSlashIndex == -1 {
			return false
		} else {
			first = first[firstFirstSlashIndex+1:]
			second = second[secondFirstSlashIndex+1:]
		}
	}
}
