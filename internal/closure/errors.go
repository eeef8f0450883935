package closure

import "errors"

// ErrLibraryNotFound is returned by Resolve when a needed library can't be
// located on the search path and SkipUnknownLibraries is false.
var ErrLibraryNotFound = errors.New("closure: library not found")
