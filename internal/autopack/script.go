package autopack

import (
	"bytes"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/resourcestore"
	"github.com/brioche-dev/brioche-repack-go/internal/runnable"
)

// autopackScript parses the shebang (or applies a MatchOverride), locates
// the named interpreter among the configured dependencies or link
// dependencies, and emits a Metadata pack describing how to invoke it.
func (e *Engine) autopackScript(sourcePath, outputPath string, contents []byte) error {
	cfg := e.cfg.Script

	interpreterName, extraArgs, err := scriptInterpreter(cfg, sourcePath, contents)
	if err != nil {
		return err
	}

	command, resourcePaths, err := e.resolveScriptInterpreterCommand(cfg, interpreterName)
	if err != nil {
		return xerrors.Errorf("resolve interpreter %s: %w", interpreterName, err)
	}

	scriptSubpath, err := ingestNamedBytes(e.cfg.ResourceDir, filepath.Base(sourcePath), contents, false)
	if err != nil {
		return xerrors.Errorf("ingest script body: %w", err)
	}
	resourcePaths = append(resourcePaths, []byte(scriptSubpath))

	args := make([]runnable.ArgValue, 0, len(extraArgs)+2)
	for _, a := range extraArgs {
		args = append(args, runnable.ArgValue{Kind: runnable.ArgLiteral, Value: runnable.LiteralTemplate([]byte(a))})
	}
	args = append(args, runnable.ArgValue{Kind: runnable.ArgLiteral, Value: runnable.ResourceTemplate(scriptSubpath)})
	args = append(args, runnable.ArgValue{Kind: runnable.ArgRest})

	dependencies, err := rebaseDependencies(cfg.BasePath, outputPath, cfg.Dependencies)
	if err != nil {
		return err
	}
	env, err := rebaseEnv(cfg.BasePath, outputPath, cfg.Env)
	if err != nil {
		return err
	}

	r := &runnable.Runnable{
		Command:      command,
		Args:         args,
		Env:          env,
		ClearEnv:     cfg.ClearEnv,
		Dependencies: dependencies,
		Source:       &runnable.RunnableSource{Path: runnable.ResourceRunnablePath(scriptSubpath)},
	}

	p, err := runnable.ToPack(r, resourcePaths)
	if err != nil {
		return xerrors.Errorf("build runnable pack: %w", err)
	}

	return copyStubAndInject(cfg.PackedExecutable, outputPath, p)
}

// scriptInterpreter determines the interpreter basename and the single
// leading literal argument (if any) a script should be invoked with,
// either from a MatchOverride (checked first, by glob match against
// sourcePath) or by parsing the shebang line.
//
// The kernel only ever splits a shebang line on its first run of
// whitespace: everything after that is handed to the interpreter as one
// opaque argument, never word-split further. So "#!/usr/bin/env python3
// -u -s" invokes env with the single literal argument "python3 -u -s",
// not three separate words — which env then fails to resolve as a command
// name unless the caller meant exactly that. This mirrors that behavior
// rather than the more forgiving multi-word split a shell would do.
func scriptInterpreter(cfg *ScriptConfig, sourcePath string, contents []byte) (string, []string, error) {
	for _, override := range cfg.MatchOverrides {
		matched, err := filepath.Match(override.Pattern, filepath.Base(sourcePath))
		if err != nil {
			return "", nil, xerrors.Errorf("match_override pattern %s: %w", override.Pattern, err)
		}
		if matched {
			return override.Interpreter, nil, nil
		}
	}

	line := shebangLine(contents)
	commandPath, arg := splitShebangOnce(line)

	commandName := lastPathComponent(commandPath)
	if commandName == "env" {
		if arg == "" {
			return "", nil, xerrors.New("autopack: expected argument for env script")
		}
		return arg, nil, nil
	}

	if arg == "" {
		return commandName, nil, nil
	}
	return commandName, []string{arg}, nil
}

func shebangLine(contents []byte) string {
	nl := bytes.IndexByte(contents, '\n')
	var line []byte
	if nl < 0 {
		line = contents
	} else {
		line = contents[:nl]
	}
	return strings.TrimSpace(strings.TrimPrefix(string(line), "#!"))
}

// splitShebangOnce splits line on its first run of ASCII whitespace,
// returning the trimmed command path and the trimmed (possibly empty)
// remainder as a single opaque string.
func splitShebangOnce(line string) (string, string) {
	i := strings.IndexFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t'
	})
	if i < 0 {
		return line, ""
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
}

// lastPathComponent returns the component after the last '/' or '\', or
// the whole string if neither appears, matching both the rune-level split
// the original shebang parser does and the recorded indirection example
// ("expand a Windows-style interpreter path the same way").
func lastPathComponent(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// resolveScriptInterpreterCommand locates interpreterName, preferring a
// bin/ entry of one of cfg.Dependencies (in which case Command references
// it via that dependency's own path, and Dependencies already names it so
// the runtime ensures it's present), falling back to the link
// dependencies' bin paths (in which case the interpreter is ingested as
// its own named resource).
func (e *Engine) resolveScriptInterpreterCommand(cfg *ScriptConfig, interpreterName string) (runnable.Template, [][]byte, error) {
	for _, dep := range cfg.Dependencies {
		dir, ok := e.resolveRunnablePathDir(dep)
		if !ok {
			continue
		}
		candidate := filepath.Join(dir, "bin", interpreterName)
		if fileExistsExecutable(candidate) {
			component := runnablePathComponent(dep)
			cmd := runnable.Template{
				Components: []runnable.TemplateComponent{
					component,
					{Kind: runnable.ComponentLiteral, Value: []byte("/bin/" + interpreterName)},
				},
			}
			return cmd, nil, nil
		}
	}

	if path, ok := e.link.findScriptInterpreter(interpreterName); ok {
		subpath, err := ingestNamedFile(e.cfg.ResourceDir, path)
		if err != nil {
			return runnable.Template{}, nil, err
		}
		return runnable.ResourceTemplate(subpath), [][]byte{[]byte(subpath)}, nil
	}

	return runnable.Template{}, nil, xerrors.Errorf("interpreter %s not found in any dependency or link dependency", interpreterName)
}

func runnablePathComponent(p runnable.RunnablePath) runnable.TemplateComponent {
	if p.Kind == runnable.RunnablePathResource {
		return runnable.TemplateComponent{Kind: runnable.ComponentResource, Value: p.Value}
	}
	return runnable.TemplateComponent{Kind: runnable.ComponentRelativePath, Value: p.Value}
}

// resolveRunnablePathDir resolves a RunnablePath to a concrete directory on
// disk so resolveScriptInterpreterCommand can probe its bin/ subdirectory.
func (e *Engine) resolveRunnablePathDir(p runnable.RunnablePath) (string, bool) {
	switch p.Kind {
	case runnable.RunnablePathResource:
		return resourcestore.FindInResourceDirs(e.cfg.AllResourceDirs, string(p.Value))
	case runnable.RunnablePathRelative:
		return filepath.Join(e.cfg.Script.BasePath, string(p.Value)), true
	default:
		return "", false
	}
}

// rebaseDependencies rewrites each relative RunnablePath in deps so it
// remains correct once evaluated relative to outputPath's directory
// instead of basePath: script dependency and env paths are expressed
// relative to a configured base directory, which may differ from where
// the packed output actually ends up on disk.
func rebaseDependencies(basePath, outputPath string, deps []runnable.RunnablePath) ([]runnable.RunnablePath, error) {
	if basePath == "" || len(deps) == 0 {
		return deps, nil
	}
	out := make([]runnable.RunnablePath, len(deps))
	for i, d := range deps {
		if d.Kind != runnable.RunnablePathRelative {
			out[i] = d
			continue
		}
		rebased, err := rebaseRelative(basePath, outputPath, d.Value)
		if err != nil {
			return nil, err
		}
		out[i] = runnable.RunnablePath{Kind: runnable.RunnablePathRelative, Value: rebased}
	}
	return out, nil
}

func rebaseEnv(basePath, outputPath string, env []runnable.EnvPair) ([]runnable.EnvPair, error) {
	if basePath == "" || len(env) == 0 {
		return env, nil
	}
	out := make([]runnable.EnvPair, len(env))
	for i, pair := range env {
		template, err := rebaseTemplate(basePath, outputPath, pair.Value.Value)
		if err != nil {
			return nil, err
		}
		value := pair.Value
		value.Value = template
		out[i] = runnable.EnvPair{Name: pair.Name, Value: value}
	}
	return out, nil
}

func rebaseTemplate(basePath, outputPath string, t runnable.Template) (runnable.Template, error) {
	components := make([]runnable.TemplateComponent, len(t.Components))
	for i, c := range t.Components {
		if c.Kind != runnable.ComponentRelativePath {
			components[i] = c
			continue
		}
		rebased, err := rebaseRelative(basePath, outputPath, c.Value)
		if err != nil {
			return runnable.Template{}, err
		}
		components[i] = runnable.TemplateComponent{Kind: runnable.ComponentRelativePath, Value: rebased}
	}
	return runnable.Template{Components: components}, nil
}

func rebaseRelative(basePath, outputPath string, value []byte) ([]byte, error) {
	abs := filepath.Join(basePath, string(value))
	rel, err := filepath.Rel(filepath.Dir(outputPath), abs)
	if err != nil {
		return nil, xerrors.Errorf("rebase relative path %s: %w", value, err)
	}
	return []byte(rel), nil
}
