package runnable

import (
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/resourcestore"
)

// ErrInvalidProgramPath is returned by Evaluate when stubPath has no
// parent directory, so a RelativePath component cannot be resolved.
var ErrInvalidProgramPath = xerrors.New("runnable: invalid program path")

// ResourceNotFoundError is returned by Evaluate when a Resource component
// cannot be located in any of resourceDirs.
type ResourceNotFoundError struct {
	Subpath string
}

func (e *ResourceNotFoundError) Error() string {
	return xerrors.Errorf("runnable: resource not found: %s", e.Subpath).Error()
}

// Evaluate walks t's components into a single concrete OS string: Literal
// components append as-is, RelativePath components resolve against
// stubPath's parent directory, and Resource components resolve against
// the first matching entry of resourceDirs. Evaluation is pure: it
// performs no mutation, only existence checks via
// resourcestore.FindInResourceDirs.
func (t Template) Evaluate(stubPath string, resourceDirs []string) (string, error) {
	var out string
	for _, c := range t.Components {
		switch c.Kind {
		case ComponentLiteral:
			out += string(c.Value)
		case ComponentRelativePath:
			if stubPath == "" {
				return "", ErrInvalidProgramPath
			}
			parent := filepath.Dir(stubPath)
			out += filepath.Join(parent, string(c.Value))
		case ComponentResource:
			subpath := string(c.Value)
			resolved, ok := resourcestore.FindInResourceDirs(resourceDirs, subpath)
			if !ok {
				return "", &ResourceNotFoundError{Subpath: subpath}
			}
			out += resolved
		}
	}
	return out, nil
}
