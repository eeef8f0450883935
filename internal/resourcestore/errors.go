package resourcestore

import "errors"

// Sentinel errors returned by this package, meant to be matched with
// errors.Is rather than string comparison.
var (
	// ErrNotFound is returned by FindResourceDirs when no resource dir
	// could be located from the environment or the program's ancestry.
	ErrNotFound = errors.New("resourcestore: resource dir not found")

	// ErrDepthLimitReached is returned by FindResourceDirs when the
	// ancestor walk passes searchDepthLimit levels without reaching the
	// filesystem root, whether or not brioche-resources.d directories were
	// found along the way.
	ErrDepthLimitReached = errors.New("resourcestore: depth limit reached while searching for resource dir")
)
