package autopack

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
)

// expand resolves Inputs into an absolute, de-duplicated file list, tagged
// with whether a None classification is tolerated: explicit paths are not
// skippable (a path the caller named that turns out to be opaque is a
// mistake worth failing loudly on), glob matches are.
func (in Inputs) expand() (map[string]bool, error) {
	pending := map[string]bool{}

	for _, p := range in.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, xerrors.Errorf("autopack: resolve input path %s: %w", p, err)
		}
		pending[abs] = false
	}

	if len(in.Patterns) == 0 {
		return pending, nil
	}

	excluded := map[string]bool{}
	for _, pattern := range in.ExcludePatterns {
		matches, err := filepath.Glob(filepath.Join(in.Base, pattern))
		if err != nil {
			return nil, xerrors.Errorf("autopack: exclude pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				return nil, err
			}
			excluded[abs] = true
		}
	}

	for _, pattern := range in.Patterns {
		matches, err := filepath.Glob(filepath.Join(in.Base, pattern))
		if err != nil {
			return nil, xerrors.Errorf("autopack: glob pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				return nil, err
			}
			if excluded[abs] {
				continue
			}
			fi, err := os.Stat(abs)
			if err != nil || fi.IsDir() {
				continue
			}
			if _, explicit := pending[abs]; !explicit {
				pending[abs] = true
			}
		}
	}

	return pending, nil
}

// copyStubAndInject overwrites outputPath with stubPath's contents (a newly
// created outputPath gets the stub's permission bits; an existing one keeps
// its own), then appends p's trailer: the "copy the stub, inject the pack"
// pattern shared by the dynamic-binary and script handlers.
func copyStubAndInject(stubPath, outputPath string, p *pack.Pack) error {
	stub, err := os.ReadFile(stubPath)
	if err != nil {
		return xerrors.Errorf("autopack: read stub %s: %w", stubPath, err)
	}
	fi, err := os.Stat(stubPath)
	if err != nil {
		return xerrors.Errorf("autopack: stat stub %s: %w", stubPath, err)
	}

	if err := os.WriteFile(outputPath, stub, fi.Mode().Perm()); err != nil {
		return xerrors.Errorf("autopack: write stub to %s: %w", outputPath, err)
	}

	f, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return xerrors.Errorf("autopack: reopen %s for append: %w", outputPath, err)
	}
	defer f.Close()

	if err := pack.Inject(f, p); err != nil {
		return xerrors.Errorf("autopack: inject pack into %s: %w", outputPath, err)
	}
	return f.Close()
}

// appendPackInPlace appends p's trailer directly to the file already at
// path, without rewriting its existing contents: used by the shared
// library handler, where the library itself is the pack's host.
func appendPackInPlace(path string, p *pack.Pack) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return xerrors.Errorf("autopack: open %s for append: %w", path, err)
	}
	defer f.Close()
	if err := pack.Inject(f, p); err != nil {
		return xerrors.Errorf("autopack: inject pack into %s: %w", path, err)
	}
	return f.Close()
}

func readFileContents(path string) ([]byte, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("autopack: read %s: %w", path, err)
	}
	return contents, nil
}

// copyBytesAndInject writes contents to outputPath, then appends p's
// trailer, used when a repack's source and output paths differ.
func copyBytesAndInject(contents []byte, outputPath string, p *pack.Pack) error {
	fi, statErr := os.Stat(outputPath)
	mode := os.FileMode(0o644)
	if statErr == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.WriteFile(outputPath, contents, mode); err != nil {
		return xerrors.Errorf("autopack: write %s: %w", outputPath, err)
	}
	return appendPackInPlace(outputPath, p)
}

func fileExistsExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	return fi.Mode().Perm()&0o111 != 0
}
