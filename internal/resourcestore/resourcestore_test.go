package resourcestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddBlobIsContentAddressedAndIdempotent(t *testing.T) {
	dir := t.TempDir()

	subpath1, err := AddBlob(dir, strings.NewReader("hello"), false)
	if err != nil {
		t.Fatal(err)
	}
	subpath2, err := AddBlob(dir, strings.NewReader("hello"), false)
	if err != nil {
		t.Fatal(err)
	}
	if subpath1 != subpath2 {
		t.Fatalf("identical content produced different subpaths: %q vs %q", subpath1, subpath2)
	}

	contents, err := os.ReadFile(filepath.Join(dir, subpath1))
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "hello" {
		t.Fatalf("blob contents = %q, want %q", contents, "hello")
	}
}

func TestAddBlobExecutableGetsDistinctName(t *testing.T) {
	dir := t.TempDir()

	plain, err := AddBlob(dir, strings.NewReader("same"), false)
	if err != nil {
		t.Fatal(err)
	}
	exec, err := AddBlob(dir, strings.NewReader("same"), true)
	if err != nil {
		t.Fatal(err)
	}
	if plain == exec {
		t.Fatalf("executable and non-executable blobs of identical content collided at %q", plain)
	}
	if !strings.HasSuffix(exec, ".x") {
		t.Fatalf("executable blob subpath %q missing .x suffix", exec)
	}
}

func TestAddNamedBlobCreatesResolvableAlias(t *testing.T) {
	dir := t.TempDir()

	subpath, err := AddNamedBlob(dir, strings.NewReader("contents"), false, "libfoo.so.1")
	if err != nil {
		t.Fatal(err)
	}

	aliasPath := filepath.Join(dir, subpath)
	resolved, err := filepath.EvalSymlinks(aliasPath)
	if err != nil {
		t.Fatal(err)
	}
	contents, err := os.ReadFile(resolved)
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "contents" {
		t.Fatalf("alias resolved to unexpected contents %q", contents)
	}
}

func TestFindInResourceDirsFirstMatchWins(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(b, "only-in-b"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := FindInResourceDirs([]string{a, b}, "only-in-b"); !ok {
		t.Fatal("expected to find only-in-b via second dir")
	}
	if _, ok := FindInResourceDirs([]string{a, b}, "nope"); ok {
		t.Fatal("expected no match for nonexistent subpath")
	}

	for _, d := range []string{a, b} {
		if err := os.WriteFile(filepath.Join(d, "in-both"), []byte(d), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got, ok := FindInResourceDirs([]string{a, b}, "in-both"); !ok || got != filepath.Join(a, "in-both") {
		t.Fatalf("got %q, %v, want %q, true (first dir wins)", got, ok, filepath.Join(a, "in-both"))
	}
}

func TestExportImportCPIORoundTrips(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "blobs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "blobs", "deadbeef"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("deadbeef", filepath.Join(src, "blobs", "alias")); err != nil {
		t.Fatal(err)
	}

	archivePath := filepath.Join(t.TempDir(), "store.cpio.gz")
	if err := ExportCPIO(src, archivePath); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	if err := ImportCPIO(archivePath, dst); err != nil {
		t.Fatal(err)
	}

	contents, err := os.ReadFile(filepath.Join(dst, "blobs", "deadbeef"))
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "payload" {
		t.Fatalf("round-tripped blob contents = %q, want %q", contents, "payload")
	}

	target, err := os.Readlink(filepath.Join(dst, "blobs", "alias"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "deadbeef" {
		t.Fatalf("round-tripped symlink target = %q, want %q", target, "deadbeef")
	}
}
