// Command plain-exec is the default packed-executable runtime stub: it
// locates its own on-disk image, extracts the pack trailer appended to
// it, and dispatches on the pack's kind.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
	"github.com/brioche-dev/brioche-repack-go/internal/resourcestore"
	"github.com/brioche-dev/brioche-repack-go/internal/runtimeexec"
)

// exitCodeStubError is the fixed exit code used for any internal
// runtime-stub error, shared by plain-exec, userland-exec, and the
// metadata runtime stub (see DESIGN.md for why 121 was chosen).
const exitCodeStubError = 121

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeStubError)
	}
}

func run() error {
	selfPath, err := os.Executable()
	if err != nil {
		return xerrors.Errorf("plain-exec: locate own executable: %w", err)
	}

	f, err := os.Open(selfPath)
	if err != nil {
		return xerrors.Errorf("plain-exec: open own executable: %w", err)
	}
	defer f.Close()

	extracted, err := pack.Extract(f)
	if err != nil {
		return xerrors.Errorf("plain-exec: extract pack: %w", err)
	}

	switch extracted.Pack.Kind {
	case pack.KindLdLinux:
		return runLdLinux(selfPath, extracted.Pack.LdLinux)
	case pack.KindStatic:
		return xerrors.New("plain-exec: a Static pack cannot be executed directly")
	case pack.KindMetadata:
		return runtimeexec.Run(selfPath, extracted.Pack, os.Args[1:])
	default:
		return xerrors.New("plain-exec: unrecognized pack kind")
	}
}

// runLdLinux resolves the interpreter and library search path, builds
// the dynamic linker's argv, and execs it in place of this process.
func runLdLinux(selfPath string, ld *pack.LdLinux) error {
	resourceDirs, err := resourcestore.FindResourceDirs(selfPath, true)
	if err != nil {
		return xerrors.Errorf("plain-exec: resolve resource dirs: %w", err)
	}

	interpreter, ok := resourcestore.FindInResourceDirs(resourceDirs, string(ld.Interpreter))
	if !ok {
		return xerrors.Errorf("plain-exec: interpreter resource %s not found", ld.Interpreter)
	}

	program, ok := resourcestore.FindInResourceDirs(resourceDirs, string(ld.Program))
	if !ok {
		return xerrors.Errorf("plain-exec: program resource %s not found", ld.Program)
	}
	program, err = filepath.EvalSymlinks(program)
	if err != nil {
		return xerrors.Errorf("plain-exec: resolve program path: %w", err)
	}

	var libraryDirs []string
	for _, rel := range ld.RuntimeLibraryDirs {
		libraryDirs = append(libraryDirs, filepath.Join(filepath.Dir(selfPath), string(rel)))
	}
	for _, subpath := range ld.LibraryDirs {
		resolved, ok := resourcestore.FindInResourceDirs(resourceDirs, string(subpath))
		if !ok {
			return xerrors.Errorf("plain-exec: library dir resource %s not found", subpath)
		}
		libraryDirs = append(libraryDirs, resolved)
	}

	argv := []string{interpreter}
	if len(libraryDirs) > 0 {
		libraryPath := strings.Join(libraryDirs, ":")
		if ldLibraryPath := os.Getenv("LD_LIBRARY_PATH"); ldLibraryPath != "" {
			libraryPath += ":" + ldLibraryPath
		}
		argv = append(argv, "--library-path", libraryPath)
	}
	if len(os.Args) > 0 {
		argv = append(argv, "--argv0", os.Args[0])
	}
	argv = append(argv, program)
	argv = append(argv, os.Args[1:]...)

	if err := unix.Exec(interpreter, argv, os.Environ()); err != nil {
		return xerrors.Errorf("plain-exec: exec %s: %w", interpreter, err)
	}
	return nil
}
