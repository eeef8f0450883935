// Package closure implements the library closure resolver: a breadth-first
// search over a dynamic binary or library's DT_NEEDED graph, locating each
// library on a search path (falling back to DT_SONAME matching for
// misnamed files) and ingesting it into the resource store.
package closure

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
	"github.com/brioche-dev/brioche-repack-go/internal/resourcestore"
)

// Config controls how a library closure is resolved: where to search, which
// resolved libraries to skip ingesting, which extra libraries to always
// pull in, and whether an unresolvable library is fatal.
type Config struct {
	LibraryPaths         []string
	SkipLibraries        map[string]bool
	ExtraLibraries       []string
	SkipUnknownLibraries bool
}

// Hooks lets the autopack engine hook into library resolution without
// this package depending on it.
type Hooks struct {
	// TryAutopackDependency is invoked with the on-disk path of each
	// resolved library, so the caller can recursively autopack it in
	// place if it's still awaiting processing. May be nil.
	TryAutopackDependency func(path string) error

	// PackOf returns a previously-produced pack for path, if the file at
	// path already carries a pack trailer of its own: packed dependencies
	// contribute their own library_dirs to the search path. May be nil.
	PackOf func(path string) (p *pack.Pack, ok bool, err error)
}

// Result is the outcome of resolving a closure: the resource-relative
// library directories to record in the emitting Pack, in first-encounter
// order.
type Result struct {
	LibraryDirs []string
}

// Resolve runs the closure BFS. initialLibraries is the starting deque
// (e.g. a binary's own DT_NEEDED plus cfg.ExtraLibraries);
// linkDependencyLibraryPaths are search directories contributed by link
// dependencies; readonlyResourceDirs is used to resolve subpaths
// advertised by already-packed dependencies (Hooks.PackOf).
func Resolve(
	resourceDir string,
	initialLibraries []string,
	cfg Config,
	linkDependencyLibraryPaths []string,
	readonlyResourceDirs []string,
	hooks Hooks,
) (*Result, error) {
	found := map[string]bool{}
	foundDirs := map[string]bool{}
	var resourceLibraryDirs []string

	searchPaths := make([]string, 0, len(cfg.LibraryPaths)+len(linkDependencyLibraryPaths))
	searchPaths = append(searchPaths, cfg.LibraryPaths...)
	searchPaths = append(searchPaths, linkDependencyLibraryPaths...)

	queue := append([]string{}, initialLibraries...)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if found[name] {
			continue
		}

		libPath, ok, err := findLibrary(searchPaths, name)
		if err != nil {
			return nil, xerrors.Errorf("closure: finding library %s: %w", name, err)
		}
		if !ok {
			if cfg.SkipUnknownLibraries {
				continue
			}
			return nil, xerrors.Errorf("%w: %s", ErrLibraryNotFound, name)
		}
		found[name] = true

		if !cfg.SkipLibraries[name] {
			dir, err := ingestLibrary(resourceDir, libPath, name)
			if err != nil {
				return nil, xerrors.Errorf("closure: ingesting library %s: %w", name, err)
			}
			if !foundDirs[dir] {
				foundDirs[dir] = true
				resourceLibraryDirs = append(resourceLibraryDirs, dir)
			}
		}

		if hooks.TryAutopackDependency != nil {
			if err := hooks.TryAutopackDependency(libPath); err != nil {
				return nil, xerrors.Errorf("closure: autopacking dependency %s: %w", libPath, err)
			}
		}

		needed, err := elfImportedLibraries(libPath)
		if err != nil {
			return nil, xerrors.Errorf("closure: reading DT_NEEDED of %s: %w", libPath, err)
		}
		queue = append(queue, needed...)

		if hooks.PackOf != nil {
			p, ok, err := hooks.PackOf(libPath)
			if err != nil {
				return nil, xerrors.Errorf("closure: checking existing pack of %s: %w", libPath, err)
			}
			if ok {
				for _, libDirSubpath := range packLibraryDirs(p) {
					if resolved, ok := resourcestore.FindInResourceDirs(readonlyResourceDirs, string(libDirSubpath)); ok {
						searchPaths = append(searchPaths, resolved)
					}
				}
			}
		}
	}

	return &Result{LibraryDirs: resourceLibraryDirs}, nil
}

// findLibrary does a first pass matching directories and exactly-named
// files, then a second pass falling back to DT_SONAME matching for files
// whose basename doesn't match name.
func findLibrary(searchPaths []string, name string) (string, bool, error) {
	var deferred []string

	for _, p := range searchPaths {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if fi.IsDir() {
			candidate := filepath.Join(p, name)
			if cfi, err := os.Stat(candidate); err == nil && cfi.Mode().IsRegular() {
				return candidate, true, nil
			}
			continue
		}
		if fi.Mode().IsRegular() {
			if filepath.Base(p) == name {
				return p, true, nil
			}
			deferred = append(deferred, p)
		}
	}

	for _, p := range deferred {
		soname, ok, err := elfSoname(p)
		if err != nil {
			return "", false, err
		}
		if ok && soname == name {
			return p, true, nil
		}
	}

	return "", false, nil
}

func ingestLibrary(resourceDir, libPath, name string) (string, error) {
	f, err := os.Open(libPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	executable := fi.Mode().Perm()&0o111 != 0

	subpath, err := resourcestore.AddNamedBlob(resourceDir, f, executable, name)
	if err != nil {
		return "", err
	}
	return filepath.Dir(subpath), nil
}

func packLibraryDirs(p *pack.Pack) [][]byte {
	switch p.Kind {
	case pack.KindLdLinux:
		return p.LdLinux.LibraryDirs
	case pack.KindStatic:
		return p.Static.LibraryDirs
	default:
		return nil
	}
}
