package autopack

import (
	"bytes"
	"debug/elf"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/closure"
	"github.com/brioche-dev/brioche-repack-go/internal/pack"
)

// autopackSharedLibrary resolves the library's own DT_NEEDED closure and
// emits a Static pack. A shared library has no entry point to re-exec, so
// unlike the dynamic-binary handler there's no stub to copy: the pack
// trailer is appended directly to the library itself when sourcePath ==
// outputPath.
func (e *Engine) autopackSharedLibrary(sourcePath, outputPath string, contents []byte) error {
	cfg := e.cfg.SharedLibrary

	f, err := elf.NewFile(bytes.NewReader(contents))
	if err != nil {
		return xerrors.Errorf("parse ELF: %w", err)
	}
	defer f.Close()

	needed, err := f.ImportedLibraries()
	if err != nil {
		return xerrors.Errorf("read DT_NEEDED: %w", err)
	}
	needed = append(append([]string{}, needed...), cfg.DynamicLinking.ExtraLibraries...)

	result, err := closure.Resolve(
		e.cfg.ResourceDir,
		needed,
		cfg.DynamicLinking,
		e.link.libraryPaths,
		e.cfg.AllResourceDirs,
		e.dependencyHooks(),
	)
	if err != nil {
		return xerrors.Errorf("resolve library closure: %w", err)
	}

	var libraryDirs [][]byte
	for _, d := range result.LibraryDirs {
		libraryDirs = append(libraryDirs, []byte(d))
	}

	p := &pack.Pack{
		Kind:   pack.KindStatic,
		Static: &pack.Static{LibraryDirs: libraryDirs},
	}

	if !p.ShouldAddToExecutable() && !cfg.AllowEmpty {
		e.cfg.logf("autopack: %s has no library dependencies worth recording, leaving unpacked", sourcePath)
		return nil
	}

	if sourcePath == outputPath {
		return appendPackInPlace(outputPath, p)
	}

	in, err := readFileContents(sourcePath)
	if err != nil {
		return err
	}
	return copyBytesAndInject(in, outputPath, p)
}
