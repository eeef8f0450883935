// Command start-runnable is a Metadata-only runtime stub: it resolves and
// execs a Runnable directly, without plain-exec's LdLinux/Static
// dispatch. It's the stub copied in for packed scripts
// (ScriptConfig.PackedExecutable) in deployments that don't want the
// general-purpose plain-exec binary carrying dynamic-linker logic it'll
// never use.
package main

import (
	"fmt"
	"os"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
	"github.com/brioche-dev/brioche-repack-go/internal/runtimeexec"
)

// exitCodeStubError matches plain-exec/userland-exec's fixed stub-error
// exit code; see DESIGN.md for why 121 was chosen over the alternative
// reserved-122 convention.
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
		return xerrors.Errorf("start-runnable: locate own executable: %w", err)
	}

	f, err := os.Open(selfPath)
	if err != nil {
		return xerrors.Errorf("start-runnable: open own executable: %w", err)
	}
	defer f.Close()

	extracted, err := pack.Extract(f)
	if err != nil {
		return xerrors.Errorf("start-runnable: extract pack: %w", err)
	}
	if extracted.Pack.Kind != pack.KindMetadata {
		return xerrors.New("start-runnable: expected a Metadata pack")
	}

	return runtimeexec.Run(selfPath, extracted.Pack, os.Args[1:])
}
