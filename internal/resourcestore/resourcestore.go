// Package resourcestore implements a content-addressed resource store:
// write-once blobs and directory blobs keyed by a content hash, plus an
// add-only tree of human-readable alias symlinks.
//
// Every write lands first in a uniquely named temporary file or directory,
// then is renamed into place, so a reader never observes a partial write.
// No locks are taken: concurrent builders sharing a resource dir converge
// because they always write byte-identical content for a given final name.
package resourcestore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// searchDepthLimit bounds the ancestor walk performed by FindResourceDirs.
const searchDepthLimit = 64

const (
	blobsSubdir       = "blobs"
	directoriesSubdir = "directories"
	aliasesSubdir     = "aliases"

	resourceDirMarker = "brioche-resources.d"
)

// AddBlob streams r into a freshly named temp file under dir/blobs while
// hashing its content, then renames the temp file to blobs/<hash> (or
// blobs/<hash>.x if executable is set). It returns the subpath relative to
// dir. Concurrent callers writing identical content race harmlessly: the
// target filename is stable and write-once.
func AddBlob(dir string, r io.Reader, executable bool) (string, error) {
	blobsDir := filepath.Join(dir, blobsSubdir)
	if err := os.MkdirAll(blobsDir, 0o755); err != nil {
		return "", xerrors.Errorf("resourcestore: mkdir blobs: %w", err)
	}

	tmpPath := filepath.Join(blobsDir, ".tmp-"+uuid.New().String())
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return "", xerrors.Errorf("resourcestore: create temp blob: %w", err)
	}
	defer os.Remove(tmpPath) // no-op once renamed away

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), r); err != nil {
		tmp.Close()
		return "", xerrors.Errorf("resourcestore: write temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", xerrors.Errorf("resourcestore: close temp blob: %w", err)
	}

	name := hex.EncodeToString(hasher.Sum(nil))
	if executable {
		name += ".x"
	}
	finalPath := filepath.Join(blobsDir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", xerrors.Errorf("resourcestore: rename temp blob into place: %w", err)
	}

	return filepath.Join(blobsSubdir, name), nil
}

// AddNamedBlob is AddBlob plus an alias symlink at
// aliases/<name>/<blob-name>/<name> pointing at the blob.
func AddNamedBlob(dir string, r io.Reader, executable bool, name string) (string, error) {
	blobSubpath, err := AddBlob(dir, r, executable)
	if err != nil {
		return "", err
	}
	return addAlias(dir, blobSubpath, name)
}

// AddResourceDirectory recursively copies source into a freshly named temp
// directory under dir/directories, computes its canonical hash, and renames
// the temp directory to directories/<hash>.d.
func AddResourceDirectory(dir, source string) (string, error) {
	directoriesDir := filepath.Join(dir, directoriesSubdir)
	if err := os.MkdirAll(directoriesDir, 0o755); err != nil {
		return "", xerrors.Errorf("resourcestore: mkdir directories: %w", err)
	}

	tmpPath := filepath.Join(directoriesDir, ".tmp-"+uuid.New().String())
	if err := copyTree(source, tmpPath); err != nil {
		os.RemoveAll(tmpPath)
		return "", xerrors.Errorf("resourcestore: copy resource directory: %w", err)
	}

	hash, err := hashDirectory(tmpPath)
	if err != nil {
		os.RemoveAll(tmpPath)
		return "", xerrors.Errorf("resourcestore: hash resource directory: %w", err)
	}

	name := hash + ".d"
	finalPath := filepath.Join(directoriesDir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		if !os.IsExist(err) {
			if _, statErr := os.Stat(finalPath); statErr != nil {
				os.RemoveAll(tmpPath)
				return "", xerrors.Errorf("resourcestore: rename resource directory into place: %w", err)
			}
		}
		os.RemoveAll(tmpPath)
	}

	return filepath.Join(directoriesSubdir, name), nil
}

// AddNamedResourceDirectory is AddResourceDirectory plus an alias symlink,
// using the same two-phase protocol as AddNamedBlob.
func AddNamedResourceDirectory(dir, source, name string) (string, error) {
	dirSubpath, err := AddResourceDirectory(dir, source)
	if err != nil {
		return "", err
	}
	return addAlias(dir, dirSubpath, name)
}

// addAlias creates aliases/<name>/<base(target)>/<name> -> target (relative
// symlink), tolerating a racing writer that got there first with an
// identical alias.
func addAlias(dir, targetSubpath, name string) (string, error) {
	base := filepath.Base(targetSubpath)
	aliasParent := filepath.Join(dir, aliasesSubdir, name, base)
	aliasPath := filepath.Join(aliasParent, name)

	relTarget, err := filepath.Rel(aliasParent, filepath.Join(dir, targetSubpath))
	if err != nil {
		return "", xerrors.Errorf("resourcestore: compute alias relative target: %w", err)
	}

	tmpParent := filepath.Join(dir, aliasesSubdir, name, ".tmp-"+uuid.New().String())
	if err := os.MkdirAll(tmpParent, 0o755); err != nil {
		return "", xerrors.Errorf("resourcestore: mkdir temp alias dir: %w", err)
	}
	relTargetFromTmp, err := filepath.Rel(tmpParent, filepath.Join(dir, targetSubpath))
	if err != nil {
		os.RemoveAll(tmpParent)
		return "", xerrors.Errorf("resourcestore: compute temp alias relative target: %w", err)
	}
	if err := os.Symlink(relTargetFromTmp, filepath.Join(tmpParent, name)); err != nil {
		os.RemoveAll(tmpParent)
		return "", xerrors.Errorf("resourcestore: create temp alias symlink: %w", err)
	}

	if err := os.Rename(tmpParent, aliasParent); err != nil {
		// Another writer created aliasParent first (or it already existed
		// non-empty). Fall back to adding just the symlink inside it,
		// tolerating AlreadyExists: convergent writers produce identical
		// content.
		os.RemoveAll(tmpParent)
		if mkErr := os.MkdirAll(aliasParent, 0o755); mkErr != nil {
			return "", xerrors.Errorf("resourcestore: mkdir alias dir: %w", mkErr)
		}
		if linkErr := renameio.Symlink(relTarget, aliasPath); linkErr != nil && !os.IsExist(linkErr) {
			if _, statErr := os.Lstat(aliasPath); statErr != nil {
				return "", xerrors.Errorf("resourcestore: create alias symlink: %w", linkErr)
			}
		}
	}

	return filepath.Join(aliasesSubdir, name, base, name), nil
}

// FindResourceDirs resolves the resource-directory search list: the
// writable output dir from BRIOCHE_RESOURCE_DIR, then (if includeReadonly)
// BRIOCHE_INPUT_RESOURCE_DIRS split both byte-wise on ':' and with the
// platform path separator, then every brioche-resources.d directory found
// while walking program's ancestors up to searchDepthLimit levels.
func FindResourceDirs(program string, includeReadonly bool) ([]string, error) {
	var dirs []string

	if v, ok := os.LookupEnv("BRIOCHE_RESOURCE_DIR"); ok && v != "" {
		dirs = append(dirs, v)
	}

	if includeReadonly {
		if v, ok := os.LookupEnv("BRIOCHE_INPUT_RESOURCE_DIRS"); ok && v != "" {
			for _, p := range strings.Split(v, ":") {
				if p != "" {
					dirs = append(dirs, p)
				}
			}
			for _, p := range filepath.SplitList(v) {
				if p != "" {
					dirs = append(dirs, p)
				}
			}
		}
	}

	ancestorDirs, err := ancestorResourceDirs(program)
	if err != nil && !xerrors.Is(err, ErrNotFound) {
		return nil, err
	}
	dirs = append(dirs, ancestorDirs...)

	if len(dirs) == 0 {
		return nil, ErrNotFound
	}
	return dirs, nil
}

// FindOutputResourceDir returns the first (writable) entry of
// FindResourceDirs(program, false).
func FindOutputResourceDir(program string) (string, error) {
	dirs, err := FindResourceDirs(program, false)
	if err != nil {
		return "", err
	}
	return dirs[0], nil
}

// FindInResourceDirs returns the first directory in dirs whose dir/subpath
// exists, and false if none does.
func FindInResourceDirs(dirs []string, subpath string) (string, bool) {
	for _, dir := range dirs {
		p := filepath.Join(dir, subpath)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

func ancestorResourceDirs(program string) ([]string, error) {
	abs, err := filepath.Abs(program)
	if err != nil {
		return nil, xerrors.Errorf("resourcestore: resolve program path: %w", err)
	}

	var found []string
	dir := filepath.Dir(abs)
	for i := 0; i < searchDepthLimit; i++ {
		candidate := filepath.Join(dir, resourceDirMarker)
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			found = append(found, candidate)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the filesystem root.
			if len(found) == 0 {
				return nil, ErrNotFound
			}
			return found, nil
		}
		dir = parent
	}

	return nil, ErrDepthLimitReached
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		case info.IsDir():
			return os.MkdirAll(target, 0o755)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			in, err := os.Open(path)
			if err != nil {
				return err
			}
			defer in.Close()
			mode := info.Mode().Perm()
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return err
			}
			defer out.Close()
			_, err = io.Copy(out, in)
			return err
		}
	})
}
