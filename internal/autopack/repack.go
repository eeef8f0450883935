package autopack

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
	"github.com/brioche-dev/brioche-repack-go/internal/resourcestore"
	"github.com/brioche-dev/brioche-repack-go/internal/runnable"
)

// autopackRepack handles a file that already carries a pack trailer:
// locate the original, unpacked source it was built from and run it back
// through autopackPath, so changes to autopack configuration (e.g. a new
// link dependency) can be re-applied without needing the original build
// inputs on hand.
func (e *Engine) autopackRepack(sourcePath, outputPath string, contents []byte) error {
	extracted, err := pack.ExtractBytes(contents)
	if err != nil {
		return xerrors.Errorf("repack: extract existing pack: %w", err)
	}

	switch extracted.Pack.Kind {
	case pack.KindLdLinux:
		programPath, ok := resourcestore.FindInResourceDirs(e.cfg.AllResourceDirs, string(extracted.Pack.LdLinux.Program))
		if !ok {
			return xerrors.Errorf("repack: program resource %s not found in any resource dir", extracted.Pack.LdLinux.Program)
		}
		return e.autopackPath(programPath, outputPath, false)

	case pack.KindStatic:
		unpacked := contents[:extracted.UnpackedLen]
		mode := os.FileMode(0o755)
		if fi, err := os.Stat(sourcePath); err == nil {
			mode = fi.Mode().Perm()
		}
		if err := os.WriteFile(outputPath, unpacked, mode); err != nil {
			return xerrors.Errorf("repack: write unpacked library to %s: %w", outputPath, err)
		}
		return e.autopackPath(outputPath, outputPath, false)

	case pack.KindMetadata:
		r, err := runnable.FromPack(extracted.Pack)
		if err != nil {
			return xerrors.Errorf("repack: %w", err)
		}
		if r.Source == nil {
			return xerrors.New("repack: metadata pack carries no source to re-autopack from")
		}
		switch r.Source.Path.Kind {
		case runnable.RunnablePathResource:
			srcPath, ok := resourcestore.FindInResourceDirs(e.cfg.AllResourceDirs, string(r.Source.Path.Value))
			if !ok {
				return xerrors.Errorf("repack: source resource %s not found in any resource dir", r.Source.Path.Value)
			}
			return e.autopackPath(srcPath, outputPath, false)
		case runnable.RunnablePathRelative:
			srcPath := filepath.Join(filepath.Dir(outputPath), string(r.Source.Path.Value))
			return e.autopackPath(srcPath, outputPath, false)
		default:
			return xerrors.New("repack: unrecognized runnable source path kind")
		}

	default:
		return xerrors.New("repack: unrecognized pack kind")
	}
}
