package autopack

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// linkContext holds the search directories derived once from
// Config.LinkDependencies, shared by every handler invocation during a
// run.
type linkContext struct {
	// roots are the link dependencies themselves, searched directly for an
	// ELF interpreter's absolute path (e.g. "lib64/ld-linux-x86-64.so.2").
	roots []string
	// libraryPaths are every directory linked under each root's
	// brioche-env.d/env/LIBRARY_PATH/.
	libraryPaths []string
	// binPaths are every directory linked under each root's
	// brioche-env.d/env/PATH/, plus each root's own bin/ subdirectory if
	// present, searched for a script's interpreter by basename.
	binPaths []string
}

func buildLinkContext(dependencies []string) (*linkContext, error) {
	ctx := &linkContext{}

	for _, dep := range dependencies {
		abs, err := filepath.Abs(dep)
		if err != nil {
			return nil, xerrors.Errorf("autopack: resolve link dependency %s: %w", dep, err)
		}
		ctx.roots = append(ctx.roots, abs)

		libDirs, err := envLinkTargets(abs, "LIBRARY_PATH")
		if err != nil {
			return nil, err
		}
		ctx.libraryPaths = append(ctx.libraryPaths, libDirs...)

		binDirs, err := envLinkTargets(abs, "PATH")
		if err != nil {
			return nil, err
		}
		ctx.binPaths = append(ctx.binPaths, binDirs...)

		bin := filepath.Join(abs, "bin")
		if fi, err := os.Stat(bin); err == nil && fi.IsDir() {
			ctx.binPaths = append(ctx.binPaths, bin)
		}
	}

	return ctx, nil
}

// envLinkTargets resolves every symlink under root/brioche-env.d/env/<var>
// to its target directory, tolerating the subtree being entirely absent
// (not every link dependency publishes every env var).
func envLinkTargets(root, envVar string) ([]string, error) {
	dir := filepath.Join(root, "brioche-env.d", "env", envVar)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Errorf("autopack: read %s: %w", dir, err)
	}

	var targets []string
	for _, entry := range entries {
		linkPath := filepath.Join(dir, entry.Name())
		resolved, err := filepath.EvalSymlinks(linkPath)
		if err != nil {
			continue
		}
		targets = append(targets, resolved)
	}
	return targets, nil
}

// findInterpreter locates an ELF PT_INTERP path (its contents are an
// absolute path like "/lib64/ld-linux-x86-64.so.2") under one of the link
// dependency roots.
func (c *linkContext) findInterpreter(interp string) (string, bool) {
	rel := interp
	for len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}
	for _, root := range c.roots {
		candidate := filepath.Join(root, rel)
		if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

// findScriptInterpreter locates a script interpreter by basename under the
// link dependencies' bin paths.
func (c *linkContext) findScriptInterpreter(name string) (string, bool) {
	for _, dir := range c.binPaths {
		candidate := filepath.Join(dir, name)
		if fileExistsExecutable(candidate) {
			return candidate, true
		}
	}
	return "", false
}
