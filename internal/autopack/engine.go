package autopack

import (
	"os"
	"sort"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/classify"
	"github.com/brioche-dev/brioche-repack-go/internal/closure"
	"github.com/brioche-dev/brioche-repack-go/internal/pack"
)

// ErrCannotClassify is returned (wrapped with the offending path) when an
// explicitly-named input classifies as classify.None: the caller asked for
// this file by name, so silently leaving it alone would be a surprise.
var ErrCannotClassify = xerrors.New("autopack: cannot classify path")

// Engine runs one autopack invocation over Config.Inputs. Engine is not
// safe for concurrent use; each Run call owns its own pending-path queue.
type Engine struct {
	cfg     Config
	link    *linkContext
	pending map[string]bool // absolute path -> canSkip
}

// New builds an Engine, resolving Config.LinkDependencies' search
// directories once up front.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	link, err := buildLinkContext(cfg.LinkDependencies)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, link: link}, nil
}

// Run drains the pending-path queue seeded from Config.Inputs, processing
// paths in lexicographic order so a run's resource-store writes are
// deterministic regardless of filesystem iteration order.
func (e *Engine) Run() error {
	pending, err := e.cfg.Inputs.expand()
	if err != nil {
		return err
	}
	e.pending = pending

	for len(e.pending) > 0 {
		path := popLexicographicallyLeast(e.pending)
		canSkip := e.pending[path]
		delete(e.pending, path)

		if err := e.autopackPath(path, path, canSkip); err != nil {
			return xerrors.Errorf("autopack: %s: %w", path, err)
		}
	}
	return nil
}

func popLexicographicallyLeast(pending map[string]bool) string {
	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

// tryAutopackDependency is the closure.Hooks.TryAutopackDependency
// implementation: if path is still pending, it's processed immediately
// (recursively) and removed from the queue.
func (e *Engine) tryAutopackDependency(path string) error {
	canSkip, ok := e.pending[path]
	if !ok {
		return nil
	}
	delete(e.pending, path)
	return e.autopackPath(path, path, canSkip)
}

// packOf is the closure.Hooks.PackOf implementation: it reports whether
// path already carries a pack trailer, for library closure resolution to
// extend its search path with a packed dependency's own library_dirs.
func (e *Engine) packOf(path string) (*pack.Pack, bool, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	extracted, err := pack.ExtractBytes(contents)
	if err != nil {
		return nil, false, nil
	}
	return extracted.Pack, true, nil
}

func (e *Engine) dependencyHooks() closure.Hooks {
	return closure.Hooks{
		TryAutopackDependency: e.tryAutopackDependency,
		PackOf:                e.packOf,
	}
}

// autopackPath classifies the file at sourcePath and dispatches to the
// handler matching both its Kind and which per-kind config is present,
// writing the packed result to outputPath. sourcePath and outputPath
// differ only when re-packing an already-packed file whose Repack pack
// names another resource as its true source.
func (e *Engine) autopackPath(sourcePath, outputPath string, canSkip bool) error {
	contents, err := os.ReadFile(sourcePath)
	if err != nil {
		return xerrors.Errorf("read %s: %w", sourcePath, err)
	}

	kind, err := classify.Classify(contents)
	if err != nil {
		return xerrors.Errorf("classify %s: %w", sourcePath, err)
	}

	switch kind {
	case classify.Repack:
		if e.cfg.Repack == nil {
			return e.skipOrFail(sourcePath, canSkip, "already packed, but no repack config provided")
		}
		return e.autopackRepack(sourcePath, outputPath, contents)

	case classify.Script:
		if e.cfg.Script == nil {
			return e.skipOrFail(sourcePath, canSkip, "is a script, but no script config provided")
		}
		return e.autopackScript(sourcePath, outputPath, contents)

	case classify.DynamicBinary:
		if e.cfg.DynamicBinary == nil {
			return e.skipOrFail(sourcePath, canSkip, "is a dynamic binary, but no dynamic_binary config provided")
		}
		return e.autopackDynamicBinary(sourcePath, outputPath, contents)

	case classify.SharedLibrary:
		if e.cfg.SharedLibrary == nil {
			return e.skipOrFail(sourcePath, canSkip, "is a shared library, but no shared_library config provided")
		}
		return e.autopackSharedLibrary(sourcePath, outputPath, contents)

	default: // classify.None
		if canSkip {
			e.cfg.logf("autopack: skipping %s (not packable)", sourcePath)
			return nil
		}
		return xerrors.Errorf("%w: %s", ErrCannotClassify, sourcePath)
	}
}

func (e *Engine) skipOrFail(path string, canSkip bool, reason string) error {
	if canSkip {
		e.cfg.logf("autopack: skipping %s (%s)", path, reason)
		return nil
	}
	return xerrors.Errorf("%s: %s", path, reason)
}
