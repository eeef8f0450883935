// Package classify inspects a file's full contents and decides whether
// autopack should treat it as an already-packed file, an interpreter
// script, a dynamic ELF binary, a shared library, or an opaque file it
// should leave alone.
package classify

import (
	"bytes"
	"debug/elf"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
)

// Kind is the result of classifying a file.
type Kind int

const (
	// None means the file is opaque to autopack: not already packed, not
	// a script, not ELF (or ELF but neither an interpreted binary nor a
	// shared library).
	None Kind = iota
	// Repack means the file already carries a pack trailer.
	Repack
	// Script means the file starts with a shebang line.
	Script
	// DynamicBinary means the file is an ELF object with a PT_INTERP
	// entry.
	DynamicBinary
	// SharedLibrary means the file is an ELF shared object (ET_DYN)
	// without an interpreter.
	SharedLibrary
)

// Classify inspects contents and returns its pack Kind.
func Classify(contents []byte) (Kind, error) {
	if _, err := pack.ExtractBytes(contents); err == nil {
		return Repack, nil
	}

	if len(contents) >= 2 && contents[0] == '#' && contents[1] == '!' {
		return Script, nil
	}

	f, err := elf.NewFile(bytes.NewReader(contents))
	if err != nil {
		// Not ELF either: an opaque file autopack will leave alone.
		return None, nil
	}
	defer f.Close()

	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			return DynamicBinary, nil
		}
	}

	if f.Type == elf.ET_DYN {
		return SharedLibrary, nil
	}

	return None, nil
}
