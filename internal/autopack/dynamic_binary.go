package autopack

import (
	"bytes"
	"debug/elf"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/closure"
	"github.com/brioche-dev/brioche-repack-go/internal/pack"
	"github.com/brioche-dev/brioche-repack-go/internal/resourcestore"
)

// autopackDynamicBinary locates the binary's interpreter among the link
// dependencies, resolves its DT_NEEDED closure, ingests the program and
// interpreter as named blobs, and emits an LdLinux pack onto a copy of the
// configured stub.
func (e *Engine) autopackDynamicBinary(sourcePath, outputPath string, contents []byte) error {
	cfg := e.cfg.DynamicBinary

	f, err := elf.NewFile(bytes.NewReader(contents))
	if err != nil {
		return xerrors.Errorf("parse ELF: %w", err)
	}
	defer f.Close()

	interp, err := elfInterpreterPath(f)
	if err != nil {
		return err
	}

	interpPath, ok := e.link.findInterpreter(interp)
	if !ok {
		return xerrors.Errorf("interpreter %s not found under any link dependency", interp)
	}

	if err := e.tryAutopackDependency(interpPath); err != nil {
		return err
	}

	interpSubpath, err := ingestNamedFile(e.cfg.ResourceDir, interpPath)
	if err != nil {
		return xerrors.Errorf("ingest interpreter %s: %w", interpPath, err)
	}

	programSubpath, err := ingestNamedBytes(e.cfg.ResourceDir, filepath.Base(sourcePath), contents, true)
	if err != nil {
		return xerrors.Errorf("ingest program: %w", err)
	}

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

	var runtimeLibraryDirs [][]byte
	for _, extra := range cfg.ExtraRuntimeLibraryPaths {
		rel, err := filepath.Rel(filepath.Dir(outputPath), extra)
		if err != nil {
			return xerrors.Errorf("relativize runtime library path %s: %w", extra, err)
		}
		runtimeLibraryDirs = append(runtimeLibraryDirs, []byte(rel))
	}

	p := &pack.Pack{
		Kind: pack.KindLdLinux,
		LdLinux: &pack.LdLinux{
			Program:            []byte(programSubpath),
			Interpreter:        []byte(interpSubpath),
			LibraryDirs:        libraryDirs,
			RuntimeLibraryDirs: runtimeLibraryDirs,
		},
	}

	return copyStubAndInject(cfg.PackedExecutable, outputPath, p)
}

func elfInterpreterPath(f *elf.File) (string, error) {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_INTERP {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return "", xerrors.Errorf("read PT_INTERP segment: %w", err)
		}
		return string(bytes.TrimRight(data, "\x00")), nil
	}
	return "", xerrors.New("autopack: no PT_INTERP segment")
}

func ingestNamedFile(resourceDir, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	executable := fi.Mode().Perm()&0o111 != 0
	return resourcestore.AddNamedBlob(resourceDir, f, executable, filepath.Base(path))
}

func ingestNamedBytes(resourceDir, name string, contents []byte, executable bool) (string, error) {
	return resourcestore.AddNamedBlob(resourceDir, bytes.NewReader(contents), executable, name)
}
