// Package pack implements the Pack tagged union and its trailer binary
// format: a fixed-layout append-only trailer that can be located and
// extracted from an otherwise-opaque host file without seeking, plus a
// canonical varint-tagged encoding of the Pack payload itself.
package pack

// Kind identifies which variant of the Pack tagged union a value holds.
type Kind int

const (
	KindLdLinux Kind = iota
	KindStatic
	KindMetadata
)

// LdLinux describes a dynamically-linked ELF executable: the glibc-style
// dynamic linker re-execs it with an explicit library path.
type LdLinux struct {
	Program            []byte   // resource subpath
	Interpreter        []byte   // resource subpath
	LibraryDirs        [][]byte // resource subpaths, one library file each
	RuntimeLibraryDirs [][]byte // paths relative to the packed executable's own directory
}

// Static describes a shared library: it carries only the runtime library
// search path, since a library itself has no entry point to re-exec.
type Static struct {
	LibraryDirs [][]byte // resource subpaths
}

// Metadata carries a free-form payload tagged by a format identifier
// string. The only format this repo's runtime understands is the runnable
// metadata format (internal/runnable.Format).
type Metadata struct {
	ResourcePaths [][]byte
	Format        string
	Payload       []byte
}

// Pack is the tagged union appended to a packed file's trailer. Exactly
// one of LdLinux, Static, or Metadata is populated, selected by Kind.
type Pack struct {
	Kind     Kind
	LdLinux  *LdLinux
	Static   *Static
	Metadata *Metadata
}

// ShouldAddToExecutable reports whether p carries information worth
// appending to an executable at all; a Static pack with no library
// directories carries nothing a runtime stub needs.
func (p *Pack) ShouldAddToExecutable() bool {
	if p.Kind == KindStatic && p.Static != nil && len(p.Static.LibraryDirs) == 0 {
		return false
	}
	return true
}
