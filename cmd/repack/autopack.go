package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/brioche-dev/brioche-repack-go/internal/autopack"
)

const autopackHelp = `repack autopack [-flags]

Make ELF executables, shared libraries, and interpreter scripts found
under the given paths relocatable by packing them against a resource
store.
`

// stringList accumulates repeated occurrences of a flag into a slice, the
// standard pattern for multi-value flags with the stdlib flag package.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func usage(fset *flag.FlagSet, helpText string) func() {
	return func() {
		fmt.Fprintln(os.Stderr, helpText)
		fmt.Fprintf(os.Stderr, "Flags for repack %s:\n", fset.Name())
		fset.PrintDefaults()
	}
}

func cmdAutopack(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("autopack", flag.ExitOnError)

	var (
		resourceDir     string
		inputResDirs    stringList
		paths           stringList
		globBase        string
		globPatterns    stringList
		globExcludes    stringList
		linkDeps        stringList
		dynamicBinary   bool
		dynBinStub      string
		sharedLibrary   bool
		allowEmpty      bool
		scriptEnabled   bool
		scriptStub      string
		scriptBasePath  string
		repackEnabled   bool
		extraLibraries  stringList
		skipLibraries   stringList
		skipUnknownLibs bool
		quiet           bool
	)

	fset.StringVar(&resourceDir, "resource-dir", "", "writable output resource directory")
	fset.Var(&inputResDirs, "input-resource-dir", "readonly input resource directory (repeatable)")
	fset.Var(&paths, "path", "explicit input path to autopack (repeatable)")
	fset.StringVar(&globBase, "glob-base", ".", "base directory glob patterns are resolved against")
	fset.Var(&globPatterns, "glob", "glob pattern (relative to -glob-base) selecting input paths (repeatable)")
	fset.Var(&globExcludes, "glob-exclude", "glob pattern excluded from -glob matches (repeatable)")
	fset.Var(&linkDeps, "link-dependency", "root directory of a link dependency (repeatable)")
	fset.BoolVar(&dynamicBinary, "dynamic-binary", false, "enable packing dynamic ELF executables")
	fset.StringVar(&dynBinStub, "dynamic-binary-stub", "", "packed-executable stub for dynamic binaries")
	fset.BoolVar(&sharedLibrary, "shared-library", false, "enable packing ELF shared libraries")
	fset.BoolVar(&allowEmpty, "allow-empty", false, "pack a shared library even with an empty closure")
	fset.BoolVar(&scriptEnabled, "script", false, "enable packing interpreter scripts")
	fset.StringVar(&scriptStub, "script-stub", "", "packed-executable stub for scripts")
	fset.StringVar(&scriptBasePath, "script-base-path", "", "base path script dependency/env paths are rebased from")
	fset.BoolVar(&repackEnabled, "repack", false, "enable re-packing already-packed files")
	fset.Var(&extraLibraries, "extra-library", "extra library name to add to every closure (repeatable)")
	fset.Var(&skipLibraries, "skip-library", "library name to resolve but not ingest (repeatable)")
	fset.BoolVar(&skipUnknownLibs, "skip-unknown-libraries", false, "ignore libraries that can't be located instead of failing")
	fset.BoolVar(&quiet, "quiet", false, "suppress skip/progress logging")
	fset.Usage = usage(fset, autopackHelp)
	fset.Parse(args)

	dynCfg := autopack.DynamicLinkingConfig{
		ExtraLibraries:       extraLibraries,
		SkipLibraries:        toSet(skipLibraries),
		SkipUnknownLibraries: skipUnknownLibs,
	}

	cfg := autopack.Config{
		ResourceDir:     resourceDir,
		AllResourceDirs: append([]string{resourceDir}, inputResDirs...),
		Inputs: autopack.Inputs{
			Paths:           paths,
			Base:            globBase,
			Patterns:        globPatterns,
			ExcludePatterns: globExcludes,
		},
		LinkDependencies: linkDeps,
		Quiet:            quiet,
		Logger:           autopackLogger(),
	}

	if dynamicBinary {
		cfg.DynamicBinary = &autopack.DynamicBinaryConfig{
			PackedExecutable: dynBinStub,
			DynamicLinking:   dynCfg,
		}
	}
	if sharedLibrary {
		cfg.SharedLibrary = &autopack.SharedLibraryConfig{
			DynamicLinking: dynCfg,
			AllowEmpty:     allowEmpty,
		}
	}
	if scriptEnabled {
		cfg.Script = &autopack.ScriptConfig{
			PackedExecutable: scriptStub,
			BasePath:         scriptBasePath,
		}
	}
	if repackEnabled {
		cfg.Repack = &autopack.RepackConfig{}
	}

	engine, err := autopack.New(cfg)
	if err != nil {
		return err
	}
	return engine.Run()
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
