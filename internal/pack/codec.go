package pack

import (
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// ErrInvalidPack is returned by Decode when the payload is malformed.
var ErrInvalidPack = xerrors.New("pack: invalid pack payload")

// Encode returns the canonical varint-tagged binary encoding of p. This is
// the payload embedded between the trailer's two length-prefixed markers;
// it is never truncated or reinterpreted, so Decode(Encode(p)) == p for
// every constructible Pack.
func Encode(p *Pack) []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(p.Kind))
	switch p.Kind {
	case KindLdLinux:
		l := p.LdLinux
		writeBytes(&buf, l.Program)
		writeBytes(&buf, l.Interpreter)
		writeBytesSlice(&buf, l.LibraryDirs)
		writeBytesSlice(&buf, l.RuntimeLibraryDirs)
	case KindStatic:
		writeBytesSlice(&buf, p.Static.LibraryDirs)
	case KindMetadata:
		m := p.Metadata
		writeBytesSlice(&buf, m.ResourcePaths)
		writeBytes(&buf, []byte(m.Format))
		writeBytes(&buf, m.Payload)
	}
	return buf.Bytes()
}

// Decode parses the canonical encoding produced by Encode.
func Decode(data []byte) (*Pack, error) {
	r := bytes.NewReader(data)

	kind, err := readUvarint(r)
	if err != nil {
		return nil, xerrors.Errorf("%w: reading kind: %v", ErrInvalidPack, err)
	}

	p := &Pack{Kind: Kind(kind)}
	switch p.Kind {
	case KindLdLinux:
		l := &LdLinux{}
		if l.Program, err = readBytes(r); err != nil {
			return nil, xerrors.Errorf("%w: program: %v", ErrInvalidPack, err)
		}
		if l.Interpreter, err = readBytes(r); err != nil {
			return nil, xerrors.Errorf("%w: interpreter: %v", ErrInvalidPack, err)
		}
		if l.LibraryDirs, err = readBytesSlice(r); err != nil {
			return nil, xerrors.Errorf("%w: library_dirs: %v", ErrInvalidPack, err)
		}
		if l.RuntimeLibraryDirs, err = readBytesSlice(r); err != nil {
			return nil, xerrors.Errorf("%w: runtime_library_dirs: %v", ErrInvalidPack, err)
		}
		p.LdLinux = l
	case KindStatic:
		s := &Static{}
		if s.LibraryDirs, err = readBytesSlice(r); err != nil {
			return nil, xerrors.Errorf("%w: library_dirs: %v", ErrInvalidPack, err)
		}
		p.Static = s
	case KindMetadata:
		m := &Metadata{}
		if m.ResourcePaths, err = readBytesSlice(r); err != nil {
			return nil, xerrors.Errorf("%w: resource_paths: %v", ErrInvalidPack, err)
		}
		format, err := readBytes(r)
		if err != nil {
			return nil, xerrors.Errorf("%w: format: %v", ErrInvalidPack, err)
		}
		m.Format = string(format)
		if m.Payload, err = readBytes(r); err != nil {
			return nil, xerrors.Errorf("%w: metadata: %v", ErrInvalidPack, err)
		}
		p.Metadata = m
	default:
		return nil, xerrors.Errorf("%w: unknown pack kind %d", ErrInvalidPack, kind)
	}

	if r.Len() != 0 {
		return nil, xerrors.Errorf("%w: trailing garbage after pack", ErrInvalidPack)
	}

	return p, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func writeBytesSlice(buf *bytes.Buffer, s [][]byte) {
	writeUvarint(buf, uint64(len(s)))
	for _, b := range s {
		writeBytes(buf, b)
	}
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if uint64(r.Len()) < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readBytesSlice(r *bytes.Reader) ([][]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		b, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
