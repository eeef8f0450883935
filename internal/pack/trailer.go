package pack

import (
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// Marker is the fixed, space-padded 32-byte ASCII string bracketing a pack
// trailer, duplicated at both ends so extraction can self-validate without
// any knowledge of the host file's structure (ELF, a shell stub, or
// another pack).
const Marker = "brioche_pack_v0                 "

var (
	// ErrMarkerNotFound is returned by Extract when the trailing marker is
	// absent.
	ErrMarkerNotFound = xerrors.New("pack: trailer marker not found")
	// ErrMalformedMarker is returned by Extract when the two length fields
	// disagree or the leading marker doesn't match the trailing one.
	ErrMalformedMarker = xerrors.New("pack: malformed trailer marker")
)

// Extracted is the result of extracting a pack trailer from a file.
type Extracted struct {
	Pack        *Pack
	UnpackedLen int64
}

// Inject appends pack's trailer to w, which must already contain the host
// bytes (it is legal for w to be the packed file itself, opened for
// append).
func Inject(w io.Writer, p *Pack) error {
	payload := Encode(p)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := io.WriteString(w, Marker); err != nil {
		return xerrors.Errorf("pack: write leading marker: %w", err)
	}
	if _, err := w.Write(lenBuf[:]); err != nil {
		return xerrors.Errorf("pack: write leading length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return xerrors.Errorf("pack: write payload: %w", err)
	}
	if _, err := w.Write(lenBuf[:]); err != nil {
		return xerrors.Errorf("pack: write trailing length: %w", err)
	}
	if _, err := io.WriteString(w, Marker); err != nil {
		return xerrors.Errorf("pack: write trailing marker: %w", err)
	}
	return nil
}

// Extract reads the entirety of r and extracts the pack trailer appended
// to it, without needing to seek: the trailing marker and length are read
// from the tail, the leading marker and length are then located and
// cross-checked against them.
func Extract(r io.Reader) (*Extracted, error) {
	contents, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Errorf("pack: read contents: %w", err)
	}
	return ExtractBytes(contents)
}

// ExtractBytes is Extract over an in-memory buffer, avoiding a second read
// of the whole file when the caller already has it loaded.
func ExtractBytes(contents []byte) (*Extracted, error) {
	markerLen := len(Marker)
	if len(contents) < markerLen {
		return nil, ErrMarkerNotFound
	}
	if !bytes.HasSuffix(contents, []byte(Marker)) {
		return nil, ErrMarkerNotFound
	}
	rest := contents[:len(contents)-markerLen]

	if len(rest) < 4 {
		return nil, ErrMalformedMarker
	}
	trailingLen := binary.LittleEndian.Uint32(rest[len(rest)-4:])
	rest = rest[:len(rest)-4]

	if uint64(len(rest)) < uint64(trailingLen) {
		return nil, ErrMalformedMarker
	}
	payload := rest[len(rest)-int(trailingLen):]
	beforePayload := rest[:len(rest)-int(trailingLen)]

	if len(beforePayload) < 4+markerLen {
		return nil, ErrMalformedMarker
	}
	leadingLen := binary.LittleEndian.Uint32(beforePayload[len(beforePayload)-4:])
	beforeLen := beforePayload[:len(beforePayload)-4]

	if leadingLen != trailingLen {
		return nil, ErrMalformedMarker
	}

	leadingMarker := beforeLen[len(beforeLen)-markerLen:]
	if !bytes.Equal(leadingMarker, []byte(Marker)) {
		return nil, ErrMalformedMarker
	}
	unpackedLen := int64(len(beforeLen) - markerLen)

	p, err := Decode(payload)
	if err != nil {
		return nil, err
	}

	return &Extracted{Pack: p, UnpackedLen: unpackedLen}, nil
}
