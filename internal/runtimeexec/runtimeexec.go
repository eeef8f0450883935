// Package runtimeexec implements the metadata runtime: given a Runnable
// extracted from a Metadata pack, it resolves the command, args and
// environment described by the runnable, then replaces the current
// process image with the resolved command via execve(2). Both
// cmd/start-runnable and cmd/plain-exec's Metadata dispatch branch share
// this logic.
package runtimeexec

import (
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
	"github.com/brioche-dev/brioche-repack-go/internal/resourcestore"
	"github.com/brioche-dev/brioche-repack-go/internal/runnable"
)

// ErrRepeatedArgs is returned when a Runnable's Args contains the Rest
// marker more than once: there's no sensible way to splice the same
// extraArgs slice into two different positions in argv.
var ErrRepeatedArgs = xerrors.New("tried to pass remaining arguments more than once")

// Run resolves p's runnable payload against selfPath (the running stub's
// own on-disk location) and extraArgs (the stub's argv[1:]), then execs
// the resolved command, replacing the current process. It only returns on
// error: success means the process image is gone.
func Run(selfPath string, p *pack.Pack, extraArgs []string) error {
	r, err := runnable.FromPack(p)
	if err != nil {
		return xerrors.Errorf("runtimeexec: %w", err)
	}

	resourceDirs, err := resourcestore.FindResourceDirs(selfPath, true)
	if err != nil {
		return xerrors.Errorf("runtimeexec: resolve resource dirs: %w", err)
	}

	command, err := r.Command.Evaluate(selfPath, resourceDirs)
	if err != nil {
		return xerrors.Errorf("runtimeexec: evaluate command: %w", err)
	}

	args, err := buildArgs(r.Args, extraArgs, selfPath, resourceDirs)
	if err != nil {
		return xerrors.Errorf("runtimeexec: %w", err)
	}

	env, err := stageEnv(r, selfPath, resourceDirs)
	if err != nil {
		return xerrors.Errorf("runtimeexec: %w", err)
	}

	argv := append([]string{command}, args...)
	if err := unix.Exec(command, argv, env); err != nil {
		return xerrors.Errorf("runtimeexec: exec %s: %w", command, err)
	}
	return nil
}

// buildArgs evaluates a Runnable's Args into a concrete argv tail,
// splicing extraArgs at most once where ArgRest appears.
func buildArgs(values []runnable.ArgValue, extraArgs []string, selfPath string, resourceDirs []string) ([]string, error) {
	var out []string
	usedRest := false
	for _, v := range values {
		switch v.Kind {
		case runnable.ArgLiteral:
			evaluated, err := v.Value.Evaluate(selfPath, resourceDirs)
			if err != nil {
				return nil, err
			}
			out = append(out, evaluated)
		case runnable.ArgRest:
			if usedRest {
				return nil, ErrRepeatedArgs
			}
			usedRest = true
			out = append(out, extraArgs...)
		}
	}
	return out, nil
}
