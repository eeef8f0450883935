// Package autopack implements the autopack engine: it classifies an input
// file, resolves its interpreter and/or library closure, ingests
// dependencies into the resource store, and injects a Pack trailer onto a
// stub to produce a packed executable.
package autopack

import (
	"log"

	"github.com/brioche-dev/brioche-repack-go/internal/closure"
	"github.com/brioche-dev/brioche-repack-go/internal/runnable"
)

// Inputs selects which files an autopack run considers: either an
// explicit path list, or a glob match against base.
type Inputs struct {
	Paths []string

	Base            string
	Patterns        []string
	ExcludePatterns []string
}

// DynamicLinkingConfig controls library-closure resolution shared by the
// dynamic-binary and shared-library handlers.
type DynamicLinkingConfig = closure.Config

// DynamicBinaryConfig configures packing of dynamic ELF executables.
type DynamicBinaryConfig struct {
	PackedExecutable         string
	ExtraRuntimeLibraryPaths []string
	DynamicLinking           DynamicLinkingConfig
}

// SharedLibraryConfig configures packing of ELF shared libraries.
type SharedLibraryConfig struct {
	DynamicLinking DynamicLinkingConfig
	AllowEmpty     bool
}

// MatchOverride names an interpreter to use for scripts whose path matches
// Pattern, bypassing shebang parsing entirely.
type MatchOverride struct {
	Pattern     string
	Interpreter string
}

// ScriptConfig configures packing of interpreter scripts.
type ScriptConfig struct {
	PackedExecutable string
	BasePath         string // if empty, env/dependency paths aren't rebased
	Env              []runnable.EnvPair
	ClearEnv         bool
	Dependencies     []runnable.RunnablePath
	MatchOverrides   []MatchOverride
}

// RepackConfig configures re-packing of already-packed files. It carries
// no fields of its own; its presence in Config is what enables the kind.
type RepackConfig struct{}

// Config is the top-level input to an autopack run: which files to
// consider, where to search for link dependencies, and which per-kind
// handlers are enabled.
type Config struct {
	ResourceDir     string
	AllResourceDirs []string

	Inputs Inputs

	LinkDependencies []string

	DynamicBinary *DynamicBinaryConfig
	SharedLibrary *SharedLibraryConfig
	Script        *ScriptConfig
	Repack        *RepackConfig

	Quiet  bool
	Logger *log.Logger
}

func (c *Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c *Config) logf(format string, args ...any) {
	if c.Quiet {
		return
	}
	c.logger().Printf(format, args...)
}
