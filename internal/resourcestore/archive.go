package resourcestore

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cavaliercoder/go-cpio"
	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
	"golang.org/x/xerrors"
)

// ExportCPIO walks a resource directory (the same brioche-resources.d tree
// AddBlob/AddResourceDirectory populate) and writes it out as a single
// gzip-compressed CPIO archive, for shipping a store to a machine that has
// no resource-dir-aware tooling of its own. The archive layout mirrors dir
// exactly: blobs/<hash>, directories/<hash>.d/..., aliases/<name>/....
//
// Grounded on cmd/distri/initrd.go's initrdWriter: newc CPIO headers for
// directories and regular files, written through a pgzip writer, with the
// output file created via renameio so a reader never observes a partial
// archive.
func ExportCPIO(dir, outputPath string) (err error) {
	out, err := renameio.TempFile("", outputPath)
	if err != nil {
		return xerrors.Errorf("resourcestore: create temp archive file: %w", err)
	}
	defer out.Cleanup()

	zw := pgzip.NewWriter(out)
	wr := cpio.NewWriter(zw)

	if err := exportTree(wr, dir); err != nil {
		return xerrors.Errorf("resourcestore: export %s: %w", dir, err)
	}
	if err := wr.Close(); err != nil {
		return xerrors.Errorf("resourcestore: close cpio writer: %w", err)
	}
	if err := zw.Close(); err != nil {
		return xerrors.Errorf("resourcestore: close gzip writer: %w", err)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("resourcestore: finalize %s: %w", outputPath, err)
	}
	return nil
}

// exportTree walks dir depth-first in lexical order (cpio.Writer requires
// monotonically increasing names within a single archive) and writes one
// header+body per entry.
func exportTree(wr *cpio.Writer, dir string) error {
	var names []string
	if err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, rel)
		return nil
	}); err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		if err := writeCPIOEntry(wr, dir, name); err != nil {
			return err
		}
	}
	return nil
}

func writeCPIOEntry(wr *cpio.Writer, dir, name string) error {
	path := filepath.Join(dir, name)
	archiveName := filepath.ToSlash(name)

	fi, err := os.Lstat(path)
	if err != nil {
		return xerrors.Errorf("lstat %s: %w", path, err)
	}

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return xerrors.Errorf("readlink %s: %w", path, err)
		}
		if err := wr.WriteHeader(&cpio.Header{
			Name: archiveName,
			Mode: cpio.ModeSymlink | 0o777,
			Size: int64(len(target)),
		}); err != nil {
			return err
		}
		_, err = wr.Write([]byte(target))
		return err

	case fi.IsDir():
		return wr.WriteHeader(&cpio.Header{
			Name: archiveName + "/",
			Mode: cpio.ModeDir | 0o755,
		})

	default:
		f, err := os.Open(path)
		if err != nil {
			return xerrors.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		if err := wr.WriteHeader(&cpio.Header{
			Name: archiveName,
			Mode: cpio.FileMode(fi.Mode().Perm()),
			Size: fi.Size(),
		}); err != nil {
			return err
		}
		_, err = io.Copy(wr, f)
		return err
	}
}

// ImportCPIO is ExportCPIO's inverse: it reads a gzip-compressed CPIO
// archive produced by ExportCPIO and recreates dir/<name> for every entry,
// creating parent directories as needed. Existing entries at the same path
// are left untouched (the store is content-addressed and write-once, so a
// name collision always means identical content).
func ImportCPIO(archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return xerrors.Errorf("resourcestore: open archive %s: %w", archivePath, err)
	}
	defer f.Close()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return xerrors.Errorf("resourcestore: open gzip stream: %w", err)
	}
	defer zr.Close()

	rd := cpio.NewReader(zr)
	for {
		hdr, err := rd.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("resourcestore: read cpio header: %w", err)
		}

		name := strings.TrimSuffix(hdr.Name, "/")
		target := filepath.Join(dir, filepath.FromSlash(name))

		switch {
		case hdr.Mode&cpio.ModeSymlink != 0:
			linkTarget, err := io.ReadAll(rd)
			if err != nil {
				return xerrors.Errorf("resourcestore: read symlink body %s: %w", name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(string(linkTarget), target); err != nil && !os.IsExist(err) {
				return xerrors.Errorf("resourcestore: create symlink %s: %w", target, err)
			}
		case hdr.Mode&cpio.ModeDir != 0:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return xerrors.Errorf("resourcestore: mkdir %s: %w", target, err)
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			mode := os.FileMode(uint32(hdr.Mode) & 0o7777)
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
			if err != nil {
				if os.IsExist(err) {
					io.Copy(io.Discard, rd)
					continue
				}
				return xerrors.Errorf("resourcestore: create %s: %w", target, err)
			}
			_, err = io.Copy(out, rd)
			out.Close()
			if err != nil {
				return xerrors.Errorf("resourcestore: write %s: %w", target, err)
			}
		}
	}
}
