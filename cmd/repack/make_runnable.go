package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
	"github.com/brioche-dev/brioche-repack-go/internal/runnable"
)

const makeRunnableHelp = `repack make-runnable [-flags]

Hand-assemble a Metadata pack from simple flag values and inject it onto
a stub, for ad-hoc testing of the runnable runtime without going through
the full autopack script pipeline.

-arg values of literally "..." splice the stub's own trailing argv;
-env values of the form NAME=VALUE are set verbatim.
`

func cmdMakeRunnable(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("make-runnable", flag.ExitOnError)

	var (
		command  string
		stub     string
		output   string
		clearEnv bool
		argList  stringList
		envList  stringList
	)

	fset.StringVar(&command, "command", "", "command to run, as a literal OS string")
	fset.StringVar(&stub, "stub", "", "packed-executable stub to copy and inject the pack onto")
	fset.StringVar(&output, "output", "", "path to write the packed result to")
	fset.BoolVar(&clearEnv, "clear-env", false, "start the child's environment empty instead of inheriting")
	fset.Var(&argList, "arg", "literal argument, or \"...\" to splice the stub's own argv (repeatable)")
	fset.Var(&envList, "env", "NAME=VALUE to set in the child's environment (repeatable)")
	fset.Usage = usage(fset, makeRunnableHelp)
	fset.Parse(args)

	if command == "" || stub == "" || output == "" {
		return xerrors.New("-command, -stub, and -output are required")
	}

	r := &runnable.Runnable{
		Command:  runnable.LiteralTemplate([]byte(command)),
		ClearEnv: clearEnv,
	}

	for _, a := range argList {
		if a == "..." {
			r.Args = append(r.Args, runnable.ArgValue{Kind: runnable.ArgRest})
			continue
		}
		r.Args = append(r.Args, runnable.ArgValue{Kind: runnable.ArgLiteral, Value: runnable.LiteralTemplate([]byte(a))})
	}

	for _, e := range envList {
		name, value, ok := strings.Cut(e, "=")
		if !ok {
			return xerrors.Errorf("-env value %q is not in NAME=VALUE form", e)
		}
		r.Env = append(r.Env, runnable.EnvPair{
			Name:  name,
			Value: runnable.EnvValue{Kind: runnable.EnvSet, Value: runnable.LiteralTemplate([]byte(value))},
		})
	}

	p, err := runnable.ToPack(r, nil)
	if err != nil {
		return xerrors.Errorf("build runnable pack: %w", err)
	}

	return copyStubAndInject(stub, output, p)
}

// copyStubAndInject duplicates internal/autopack's helper of the same
// name: this CLI verb needs the identical "copy stub, append trailer"
// write discipline but doesn't otherwise depend on the autopack engine.
func copyStubAndInject(stubPath, outputPath string, p *pack.Pack) error {
	stubContents, err := os.ReadFile(stubPath)
	if err != nil {
		return xerrors.Errorf("read stub %s: %w", stubPath, err)
	}
	fi, err := os.Stat(stubPath)
	if err != nil {
		return xerrors.Errorf("stat stub %s: %w", stubPath, err)
	}
	if err := os.WriteFile(outputPath, stubContents, fi.Mode().Perm()); err != nil {
		return xerrors.Errorf("write stub to %s: %w", outputPath, err)
	}

	f, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return xerrors.Errorf("reopen %s for append: %w", outputPath, err)
	}
	defer f.Close()

	if err := pack.Inject(f, p); err != nil {
		return xerrors.Errorf("inject pack into %s: %w", outputPath, err)
	}
	return f.Close()
}
