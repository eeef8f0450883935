// Command repack is the CLI front-end over this module's packages,
// mirroring cmd/distri's verb-dispatch shape: a top-level flag set for
// profiling/debug flags, then a verb with its own flag set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"golang.org/x/xerrors"
)

var (
	debug      = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")
	cpuprofile = flag.String("cpuprofile", "", "path to store a CPU profile at")
)

// interruptibleContext returns a context canceled on the first
// SIGINT/SIGTERM; that signal does not terminate the process. The context
// is passed to every verb, but none of the current verbs (autopack,
// inspect, make-runnable) checks it, so they run to completion. A second
// signal gets the default handling and kills the process immediately.
func interruptibleContext() (context.Context, context.CancelFunc) {
	ctx, canc := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		signal.Stop(sig)
		canc()
	}()
	return ctx, canc
}

func funcmain() error {
	flag.Parse()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"autopack":      {cmdAutopack},
		"inspect":       {cmdInspect},
		"make-runnable": {cmdMakeRunnable},
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "repack <command> [-flags] [args]\n")
		fmt.Fprintf(os.Stderr, "commands: autopack, inspect, make-runnable\n")
		os.Exit(2)
	}
	verb, args := args[0], args[1:]

	ctx, canc := interruptibleContext()
	defer canc()

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		os.Exit(2)
	}

	if err := v.fn(ctx, args); err != nil {
		if *debug {
			return xerrors.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}

	return nil
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
