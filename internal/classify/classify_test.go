package classify

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
)

// buildMinimalELF assembles a minimal, section-header-free ELF64 LE file
// with a single program header, enough for debug/elf.NewFile to parse
// e_type and the program header table.
func buildMinimalELF(t *testing.T, etype elf.Type, interp string) []byte {
	t.Helper()

	const ehsize = 64
	const phentsize = 56

	var interpBytes []byte
	var phdrType elf.ProgType = elf.PT_LOAD
	if interp != "" {
		phdrType = elf.PT_INTERP
		interpBytes = append([]byte(interp), 0)
	}

	phoff := uint64(ehsize)
	dataOff := phoff + phentsize

	var buf bytes.Buffer

	// e_ident
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* ELFDATA2LSB */, 1, 0})
	buf.Write(make([]byte, 8)) // padding

	binary.Write(&buf, binary.LittleEndian, uint16(etype))
	binary.Write(&buf, binary.LittleEndian, uint16(elf.EM_X86_64))
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // e_version
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // e_entry
	binary.Write(&buf, binary.LittleEndian, phoff)     // e_phoff
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint16(phentsize))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shstrndx

	if buf.Len() != ehsize {
		t.Fatalf("ELF header is %d bytes, want %d", buf.Len(), ehsize)
	}

	// Program header.
	binary.Write(&buf, binary.LittleEndian, uint32(phdrType))
	binary.Write(&buf, binary.LittleEndian, uint32(elf.PF_R))
	binary.Write(&buf, binary.LittleEndian, dataOff)         // p_offset
	binary.Write(&buf, binary.LittleEndian, uint64(0))       // p_vaddr
	binary.Write(&buf, binary.LittleEndian, uint64(0))       // p_paddr
	binary.Write(&buf, binary.LittleEndian, uint64(len(interpBytes))) // p_filesz
	binary.Write(&buf, binary.LittleEndian, uint64(len(interpBytes))) // p_memsz
	binary.Write(&buf, binary.LittleEndian, uint64(1))       // p_align

	if buf.Len() != int(dataOff) {
		t.Fatalf("header+phdr is %d bytes, want %d", buf.Len(), dataOff)
	}

	buf.Write(interpBytes)

	return buf.Bytes()
}

func TestClassifyDynamicBinary(t *testing.T) {
	contents := buildMinimalELF(t, elf.ET_EXEC, "/lib64/ld-linux-x86-64.so.2")
	kind, err := Classify(contents)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if kind != DynamicBinary {
		t.Errorf("kind = %v, want DynamicBinary", kind)
	}
}

func TestClassifySharedLibrary(t *testing.T) {
	contents := buildMinimalELF(t, elf.ET_DYN, "")
	kind, err := Classify(contents)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if kind != SharedLibrary {
		t.Errorf("kind = %v, want SharedLibrary", kind)
	}
}

func TestClassifyScript(t *testing.T) {
	kind, err := Classify([]byte("#!/usr/bin/env bash\necho hi\n"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if kind != Script {
		t.Errorf("kind = %v, want Script", kind)
	}
}

func TestClassifyNone(t *testing.T) {
	kind, err := Classify([]byte("just some opaque bytes"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if kind != None {
		t.Errorf("kind = %v, want None", kind)
	}
}

func TestClassifyRepack(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("host bytes")
	p := &pack.Pack{Kind: pack.KindStatic, Static: &pack.Static{}}
	if err := pack.Inject(&buf, p); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	kind, err := Classify(buf.Bytes())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if kind != Repack {
		t.Errorf("kind = %v, want Repack", kind)
	}
}
