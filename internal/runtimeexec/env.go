package runtimeexec

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/resourcestore"
	"github.com/brioche-dev/brioche-repack-go/internal/runnable"
)

// envState is one accumulator entry: present distinguishes "remove this
// variable" (touched, present=false) from "set it to value".
type envState struct {
	present bool
	value   string
}

// stageEnv runs a three-phase env staging algorithm: seed from
// runnable.Env's Clear/Fallback/Inherit/Prepend/Append entries, then layer
// in each dependency's brioche-env.d contributions, then apply
// runnable.Env's Set/Prepend/Append entries explicitly. Order is
// load-bearing: re-ordering these phases changes semantics.
func stageEnv(r *runnable.Runnable, selfPath string, resourceDirs []string) ([]string, error) {
	base := environToMap(os.Environ())
	acc := map[string]*envState{}

	lookup := func(name string) (string, bool) {
		if s, ok := acc[name]; ok {
			if !s.present {
				return "", false
			}
			return s.value, true
		}
		v, ok := base[name]
		return v, ok
	}

	// Phase A: seed.
	for _, pair := range r.Env {
		switch pair.Value.Kind {
		case runnable.EnvClear:
			acc[pair.Name] = &envState{present: false}

		case runnable.EnvFallback:
			cur, ok := lookup(pair.Name)
			if ok && cur != "" {
				acc[pair.Name] = &envState{present: true, value: cur}
				continue
			}
			v, err := pair.Value.Value.Evaluate(selfPath, resourceDirs)
			if err != nil {
				return nil, xerrors.Errorf("evaluate fallback for %s: %w", pair.Name, err)
			}
			acc[pair.Name] = &envState{present: true, value: v}

		case runnable.EnvInherit, runnable.EnvPrepend, runnable.EnvAppend:
			if cur, ok := lookup(pair.Name); ok {
				acc[pair.Name] = &envState{present: true, value: cur}
			} else {
				acc[pair.Name] = &envState{present: false}
			}

		case runnable.EnvSet:
			// Applied in phase C; no seed action.
		}
	}

	// Phase B: dependency contributions.
	for _, dep := range r.Dependencies {
		depDir, err := resolveRunnablePath(dep, selfPath, resourceDirs)
		if err != nil {
			return nil, xerrors.Errorf("resolve dependency: %w", err)
		}
		if err := applyDependencyEnv(depDir, acc, lookup); err != nil {
			return nil, err
		}
	}

	// Phase C: explicit Set/Prepend/Append.
	for _, pair := range r.Env {
		switch pair.Value.Kind {
		case runnable.EnvSet:
			v, err := pair.Value.Value.Evaluate(selfPath, resourceDirs)
			if err != nil {
				return nil, xerrors.Errorf("evaluate set for %s: %w", pair.Name, err)
			}
			acc[pair.Name] = &envState{present: true, value: v}

		case runnable.EnvPrepend:
			v, err := pair.Value.Value.Evaluate(selfPath, resourceDirs)
			if err != nil {
				return nil, xerrors.Errorf("evaluate prepend for %s: %w", pair.Name, err)
			}
			sep := string(pair.Value.Separator)
			newVal := v
			if cur, ok := lookup(pair.Name); ok && cur != "" {
				newVal = v + sep + cur
			}
			acc[pair.Name] = &envState{present: true, value: newVal}

		case runnable.EnvAppend:
			v, err := pair.Value.Value.Evaluate(selfPath, resourceDirs)
			if err != nil {
				return nil, xerrors.Errorf("evaluate append for %s: %w", pair.Name, err)
			}
			sep := string(pair.Value.Separator)
			newVal := v
			if cur, ok := lookup(pair.Name); ok && cur != "" {
				newVal = cur + sep + v
			}
			acc[pair.Name] = &envState{present: true, value: newVal}

		case runnable.EnvClear, runnable.EnvInherit, runnable.EnvFallback:
			// No-ops in phase C.
		}
	}

	var result map[string]string
	if r.ClearEnv {
		result = map[string]string{}
	} else {
		result = base
	}
	for name, state := range acc {
		if state.present {
			result[name] = state.value
		} else {
			delete(result, name)
		}
	}

	return mapToEnviron(result), nil
}

// applyDependencyEnv reads dep/brioche-env.d/env/* and folds each entry
// into acc: a directory entry's children (sorted by filename) are
// resolved symlinks joined with ":" and appended; a plain file's trimmed
// contents become a fallback value; a symlink entry's resolved target
// becomes a fallback value.
func applyDependencyEnv(depDir string, acc map[string]*envState, lookup func(string) (string, bool)) error {
	envDir := filepath.Join(depDir, "brioche-env.d", "env")
	entries, err := os.ReadDir(envDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("read %s: %w", envDir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(envDir, name)

		info, err := os.Lstat(path)
		if err != nil {
			return xerrors.Errorf("stat %s: %w", path, err)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				return xerrors.Errorf("resolve symlink %s: %w", path, err)
			}
			applyFallback(acc, lookup, name, target)

		case info.IsDir():
			joined, err := joinedSymlinkTargets(path)
			if err != nil {
				return xerrors.Errorf("read env dir %s: %w", path, err)
			}
			applyAppend(acc, lookup, name, joined, ":")

		default:
			contents, err := os.ReadFile(path)
			if err != nil {
				return xerrors.Errorf("read %s: %w", path, err)
			}
			applyFallback(acc, lookup, name, strings.TrimSpace(string(contents)))
		}
	}
	return nil
}

func joinedSymlinkTargets(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var targets []string
	for _, name := range names {
		target, err := filepath.EvalSymlinks(filepath.Join(dir, name))
		if err != nil {
			return "", xerrors.Errorf("resolve %s/%s: %w", dir, name, err)
		}
		targets = append(targets, target)
	}
	return strings.Join(targets, ":"), nil
}

func applyFallback(acc map[string]*envState, lookup func(string) (string, bool), name, value string) {
	if cur, ok := lookup(name); ok && cur != "" {
		return
	}
	acc[name] = &envState{present: true, value: value}
}

func applyAppend(acc map[string]*envState, lookup func(string) (string, bool), name, value, sep string) {
	newVal := value
	if cur, ok := lookup(name); ok && cur != "" {
		newVal = cur + sep + value
	}
	acc[name] = &envState{present: true, value: newVal}
}

func resolveRunnablePath(p runnable.RunnablePath, selfPath string, resourceDirs []string) (string, error) {
	switch p.Kind {
	case runnable.RunnablePathResource:
		resolved, ok := resourcestore.FindInResourceDirs(resourceDirs, string(p.Value))
		if !ok {
			return "", xerrors.Errorf("resource not found: %s", p.Value)
		}
		return resolved, nil
	case runnable.RunnablePathRelative:
		return filepath.Join(filepath.Dir(selfPath), string(p.Value)), nil
	default:
		return "", xerrors.New("unrecognized runnable path kind")
	}
}

func environToMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func mapToEnviron(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
