// Command userland-exec is the userland packed-executable runtime stub:
// like plain-exec it resolves an LdLinux pack's interpreter and library
// path, but performs the re-exec as a direct execve(2) of the current
// process image rather than going through a subprocess — there is no
// fork, no parent process left waiting, and no second PID. Other pack
// kinds are not supported here.
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
)

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
		return xerrors.Errorf("userland-exec: locate own executable: %w", err)
	}

	f, err := os.Open(selfPath)
	if err != nil {
		return xerrors.Errorf("userland-exec: open own executable: %w", err)
	}
	defer f.Close()

	extracted, err := pack.Extract(f)
	if err != nil {
		return xerrors.Errorf("userland-exec: extract pack: %w", err)
	}

	if extracted.Pack.Kind != pack.KindLdLinux {
		panic("userland-exec: unimplemented for non-LdLinux packs")
	}

	return execLdLinux(selfPath, extracted.Pack.LdLinux)
}

// execLdLinux builds the same effective argv as plain-exec's LdLinux
// branch, then reloads the current process image in place: unix.Exec is
// execve(2) directly, with no intervening fork, so the replacement is
// genuinely in-process rather than a subprocess launch.
func execLdLinux(selfPath string, ld *pack.LdLinux) error {
	resourceDirs, err := resourcestore.FindResourceDirs(selfPath, true)
	if err != nil {
		return xerrors.Errorf("userland-exec: resolve resource dirs: %w", err)
	}

	interpreter, ok := resourcestore.FindInResourceDirs(resourceDirs, string(ld.Interpreter))
	if !ok {
		return xerrors.Errorf("userland-exec: interpreter resource %s not found", ld.Interpreter)
	}

	program, ok := resourcestore.FindInResourceDirs(resourceDirs, string(ld.Program))
	if !ok {
		return xerrors.Errorf("userland-exec: program resource %s not found", ld.Program)
	}
	program, err = filepath.EvalSymlinks(program)
	if err != nil {
		return xerrors.Errorf("userland-exec: resolve program path: %w", err)
	}

	var libraryDirs []string
	for _, rel := range ld.RuntimeLibraryDirs {
		libraryDirs = append(libraryDirs, filepath.Join(filepath.Dir(selfPath), string(rel)))
	}
	for _, subpath := range ld.LibraryDirs {
		resolved, ok := resourcestore.FindInResourceDirs(resourceDirs, string(subpath))
		if !ok {
			return xerrors.Errorf("userland-exec: library dir resource %s not found", subpath)
		}
		libraryDirs = append(libraryDirs, resolved)
	}

	// argv/envp as received at this process's own entry point, not
	// whatever argv[0] a caller might have rewritten since.
	argv0 := os.Args
	envp := os.Environ()

	childArgv := []string{interpreter}
	if len(libraryDirs) > 0 {
		libraryPath := strings.Join(libraryDirs, ":")
		if ldLibraryPath := os.Getenv("LD_LIBRARY_PATH"); ldLibraryPath != "" {
			libraryPath += ":" + ldLibraryPath
		}
		childArgv = append(childArgv, "--library-path", libraryPath)
	}
	if len(argv0) > 0 {
		childArgv = append(childArgv, "--argv0", argv0[0])
	}
	childArgv = append(childArgv, program)
	childArgv = append(childArgv, argv0[1:]...)

	if err := unix.Exec(interpreter, childArgv, envp); err != nil {
		return xerrors.Errorf("userland-exec: exec %s: %w", interpreter, err)
	}
	return nil
}
