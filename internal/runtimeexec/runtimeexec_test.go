package runtimeexec

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/brioche-dev/brioche-repack-go/internal/runnable"
)

func TestBuildArgsSplicesRestOnce(t *testing.T) {
	values := []runnable.ArgValue{
		{Kind: runnable.ArgLiteral, Value: runnable.LiteralTemplate([]byte("-x"))},
		{Kind: runnable.ArgRest},
	}
	args, err := buildArgs(values, []string{"a", "b"}, "/stub", nil)
	if err != nil {
		t.Fatalf("buildArgs: %v", err)
	}
	want := []string{"-x", "a", "b"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestBuildArgsRepeatedRestFails(t *testing.T) {
	values := []runnable.ArgValue{
		{Kind: runnable.ArgRest},
		{Kind: runnable.ArgRest},
	}
	_, err := buildArgs(values, nil, "/stub", nil)
	if err != ErrRepeatedArgs {
		t.Fatalf("err = %v, want ErrRepeatedArgs", err)
	}
}

func withEnv(t *testing.T, name, value string) {
	t.Helper()
	old, had := os.LookupEnv(name)
	os.Setenv(name, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(name, old)
		} else {
			os.Unsetenv(name)
		}
	})
}

func TestStageEnvFallbackOnlyAppliesWhenUnset(t *testing.T) {
	withEnv(t, "RTX_TEST_FALLBACK", "already-set")

	r := &runnable.Runnable{
		Env: []runnable.EnvPair{
			{Name: "RTX_TEST_FALLBACK", Value: runnable.EnvValue{Kind: runnable.EnvFallback, Value: runnable.LiteralTemplate([]byte("fallback-value"))}},
		},
	}

	env, err := stageEnv(r, "/stub", nil)
	if err != nil {
		t.Fatalf("stageEnv: %v", err)
	}
	if got := envLookup(env, "RTX_TEST_FALLBACK"); got != "already-set" {
		t.Errorf("RTX_TEST_FALLBACK = %q, want unchanged %q", got, "already-set")
	}
}

func TestStageEnvSetOverridesInherited(t *testing.T) {
	withEnv(t, "RTX_TEST_SET", "old")

	r := &runnable.Runnable{
		Env: []runnable.EnvPair{
			{Name: "RTX_TEST_SET", Value: runnable.EnvValue{Kind: runnable.EnvSet, Value: runnable.LiteralTemplate([]byte("new"))}},
		},
	}

	env, err := stageEnv(r, "/stub", nil)
	if err != nil {
		t.Fatalf("stageEnv: %v", err)
	}
	if got := envLookup(env, "RTX_TEST_SET"); got != "new" {
		t.Errorf("RTX_TEST_SET = %q, want %q", got, "new")
	}
}

func TestStageEnvClearRemovesVariable(t *testing.T) {
	withEnv(t, "RTX_TEST_CLEAR", "present")

	r := &runnable.Runnable{
		Env: []runnable.EnvPair{
			{Name: "RTX_TEST_CLEAR", Value: runnable.EnvValue{Kind: runnable.EnvClear}},
		},
	}

	env, err := stageEnv(r, "/stub", nil)
	if err != nil {
		t.Fatalf("stageEnv: %v", err)
	}
	if got := envLookup(env, "RTX_TEST_CLEAR"); got != "" {
		t.Errorf("RTX_TEST_CLEAR = %q, want unset", got)
	}
}

func TestStageEnvDependencyPathAppend(t *testing.T) {
	os.Unsetenv("RTX_TEST_PATH")

	depDir := t.TempDir()
	pathDir := filepath.Join(depDir, "brioche-env.d", "env", "RTX_TEST_PATH")
	if err := os.MkdirAll(pathDir, 0o755); err != nil {
		t.Fatal(err)
	}
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")
	if err := os.MkdirAll(a, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(b, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(a, filepath.Join(pathDir, "00-a")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(b, filepath.Join(pathDir, "10-b")); err != nil {
		t.Fatal(err)
	}

	r := &runnable.Runnable{
		Dependencies: []runnable.RunnablePath{
			{Kind: runnable.RunnablePathRelative, Value: []byte(filepath.Base(depDir))},
		},
	}

	selfPath := filepath.Join(filepath.Dir(depDir), "stub")
	env, err := stageEnv(r, selfPath, nil)
	if err != nil {
		t.Fatalf("stageEnv: %v", err)
	}
	want := a + ":" + b
	if got := envLookup(env, "RTX_TEST_PATH"); got != want {
		t.Errorf("RTX_TEST_PATH = %q, want %q", got, want)
	}
}

func envLookup(environ []string, name string) string {
	for _, kv := range environ {
		if len(kv) > len(name) && kv[:len(name)] == name && kv[len(name)] == '=' {
			return kv[len(name)+1:]
		}
	}
	return ""
}

func TestMapToEnvironSorted(t *testing.T) {
	m := map[string]string{"B": "2", "A": "1"}
	out := mapToEnviron(m)
	if !sort.StringsAreSorted(out) {
		t.Errorf("mapToEnviron output not sorted: %v", out)
	}
}
