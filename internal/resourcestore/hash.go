package resourcestore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/tickenc"
)

// hashDirectory computes the canonical content hash of the directory tree
// rooted at root: a sorted walk emitting a line-delimited record per entry
// (file/dir/symlink), tick-encoding each path so the record stream is
// deterministic across platforms regardless of the bytes a path contains.
func hashDirectory(root string) (string, error) {
	h := sha256.New()
	if err := hashDirectoryInto(h, root, ""); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashDirectoryInto(h io.Writer, root, relDir string) error {
	dirPath := filepath.Join(root, relDir)
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return xerrors.Errorf("resourcestore: read dir %s: %w", dirPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		relPath := filepath.Join(relDir, entry.Name())
		fullPath := filepath.Join(root, relPath)
		encodedPath := tickenc.Encode([]byte(filepath.ToSlash(relPath)))

		info, err := os.Lstat(fullPath)
		if err != nil {
			return xerrors.Errorf("resourcestore: lstat %s: %w", fullPath, err)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(fullPath)
			if err != nil {
				return xerrors.Errorf("resourcestore: readlink %s: %w", fullPath, err)
			}
			encodedTarget := tickenc.Encode([]byte(target))
			if _, err := io.WriteString(h, "s:"+encodedPath+":"+strconv.Itoa(len(encodedTarget))+"\n"+encodedTarget); err != nil {
				return err
			}
		case info.IsDir():
			if _, err := io.WriteString(h, "d:"+encodedPath+"\n"); err != nil {
				return err
			}
			if err := hashDirectoryInto(h, root, relPath); err != nil {
				return err
			}
		default:
			executable := info.Mode().Perm()&0o111 != 0
			if _, err := io.WriteString(h, "f:"+encodedPath+":"+strconv.Itoa(int(info.Size()))+":"+boolStr(executable)+"\n"); err != nil {
				return err
			}
			f, err := os.Open(fullPath)
			if err != nil {
				return xerrors.Errorf("resourcestore: open %s: %w", fullPath, err)
			}
			_, err = io.Copy(h, f)
			f.Close()
			if err != nil {
				return xerrors.Errorf("resourcestore: hash file %s: %w", fullPath, err)
			}
		}
	}
	return nil
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
