package closure

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withFakeELF(t *testing.T, needed map[string][]string, sonames map[string]string) {
	t.Helper()
	origNeeded := elfImportedLibraries
	origSoname := elfSoname
	elfImportedLibraries = func(path string) ([]string, error) {
		return needed[filepath.Base(path)], nil
	}
	elfSoname = func(path string) (string, bool, error) {
		name, ok := sonames[filepath.Base(path)]
		return name, ok, nil
	}
	t.Cleanup(func() {
		elfImportedLibraries = origNeeded
		elfSoname = origSoname
	})
}

func writeLib(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("fake-elf-"+name), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestResolveBFSOrderAndDedup(t *testing.T) {
	libDir := t.TempDir()
	resourceDir := t.TempDir()

	writeLib(t, libDir, "liba.so")
	writeLib(t, libDir, "libb.so")
	writeLib(t, libDir, "libc.so")

	withFakeELF(t, map[string][]string{
		"liba.so": {"libb.so", "libc.so"},
		"libb.so": {"libc.so"}, // libc.so discovered twice, must dedup
		"libc.so": nil,
	}, nil)

	result, err := Resolve(resourceDir, []string{"liba.so"}, Config{LibraryPaths: []string{libDir}}, nil, nil, Hooks{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(result.LibraryDirs) != 3 {
		t.Fatalf("got %d library dirs, want 3: %v", len(result.LibraryDirs), result.LibraryDirs)
	}
	for i, name := range []string{"liba.so", "libb.so", "libc.so"} {
		if prefix := filepath.Join("aliases", name) + string(filepath.Separator); !strings.HasPrefix(result.LibraryDirs[i], prefix) {
			t.Errorf("LibraryDirs[%d] = %q, want prefix %q (BFS first-encounter order)", i, result.LibraryDirs[i], prefix)
		}
	}
}

func TestResolveSkipLibraries(t *testing.T) {
	libDir := t.TempDir()
	resourceDir := t.TempDir()
	writeLib(t, libDir, "liba.so")
	writeLib(t, libDir, "libb.so")

	withFakeELF(t, map[string][]string{
		"liba.so": {"libb.so"},
		"libb.so": nil,
	}, nil)

	result, err := Resolve(resourceDir, []string{"liba.so"}, Config{
		LibraryPaths:  []string{libDir},
		SkipLibraries: map[string]bool{"liba.so": true},
	}, nil, nil, Hooks{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.LibraryDirs) != 1 {
		t.Fatalf("got %d library dirs, want 1 (liba.so skipped): %v", len(result.LibraryDirs), result.LibraryDirs)
	}
}

func TestResolveSkipUnknownLibraries(t *testing.T) {
	resourceDir := t.TempDir()
	withFakeELF(t, nil, nil)

	_, err := Resolve(resourceDir, []string{"libmissing.so"}, Config{SkipUnknownLibraries: true}, nil, nil, Hooks{})
	if err != nil {
		t.Fatalf("Resolve with SkipUnknownLibraries: %v", err)
	}
}

func TestResolveUnknownLibraryFails(t *testing.T) {
	resourceDir := t.TempDir()
	withFakeELF(t, nil, nil)

	_, err := Resolve(resourceDir, []string{"libmissing.so"}, Config{}, nil, nil, Hooks{})
	if err == nil {
		t.Fatalf("expected error for unknown library")
	}
}

func TestFindLibrarySonameFallback(t *testing.T) {
	dir := t.TempDir()
	realFile := writeLib(t, dir, "libfoo.so.1.2.3")

	withFakeELF(t, nil, map[string]string{"libfoo.so.1.2.3": "libfoo.so.1"})

	got, ok, err := findLibrary([]string{realFile}, "libfoo.so.1")
	if err != nil {
		t.Fatalf("findLibrary: %v", err)
	}
	if !ok {
		t.Fatalf("expected to find libfoo.so.1 via SONAME")
	}
	if got != realFile {
		t.Errorf("got %q, want %q", got, realFile)
	}
}

func TestFindLibraryDirectoryMatch(t *testing.T) {
	dir := t.TempDir()
	writeLib(t, dir, "libc.so.6")

	got, ok, err := findLibrary([]string{dir}, "libc.so.6")
	if err != nil {
		t.Fatalf("findLibrary: %v", err)
	}
	if !ok || got != filepath.Join(dir, "libc.so.6") {
		t.Errorf("got %q, %v, want %q, true", got, ok, filepath.Join(dir, "libc.so.6"))
	}
}
