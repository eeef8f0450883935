package pack

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func samplePacks() []*Pack {
	return []*Pack{
		{
			Kind: KindLdLinux,
			LdLinux: &LdLinux{
				Program:            []byte("aliases/hello/abc/hello"),
				Interpreter:        []byte("aliases/ld-linux-x86-64.so.2/def/ld-linux-x86-64.so.2"),
				LibraryDirs:        [][]byte{[]byte("aliases/libc.so.6/ghi")},
				RuntimeLibraryDirs: [][]byte{[]byte("../lib")},
			},
		},
		{
			Kind:   KindStatic,
			Static: &Static{LibraryDirs: nil},
		},
		{
			Kind:   KindStatic,
			Static: &Static{LibraryDirs: [][]byte{[]byte("aliases/libfoo.so.1/xyz")}},
		},
		{
			Kind: KindMetadata,
			Metadata: &Metadata{
				ResourcePaths: [][]byte{[]byte("blobs/aaa")},
				Format:        "application/vnd.brioche.runnable-v0.1.0+json",
				Payload:       []byte(`{"command":{"components":[]}}`),
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, p := range samplePacks() {
		encoded := Encode(p)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if diff := cmp.Diff(p, decoded); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestShouldAddToExecutable(t *testing.T) {
	empty := &Pack{Kind: KindStatic, Static: &Static{}}
	if empty.ShouldAddToExecutable() {
		t.Errorf("expected empty static pack to be skippable")
	}
	nonEmpty := &Pack{Kind: KindStatic, Static: &Static{LibraryDirs: [][]byte{[]byte("x")}}}
	if !nonEmpty.ShouldAddToExecutable() {
		t.Errorf("expected non-empty static pack to be worth adding")
	}
}

func TestInjectExtractRoundTrip(t *testing.T) {
	for _, host := range [][]byte{
		nil,
		[]byte("\x7fELF arbitrary host bytes"),
		[]byte("#!/bin/sh\necho hi\n"),
	} {
		for _, p := range samplePacks() {
			var buf bytes.Buffer
			buf.Write(host)
			if err := Inject(&buf, p); err != nil {
				t.Fatalf("Inject: %v", err)
			}

			extracted, err := Extract(&buf)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if extracted.UnpackedLen != int64(len(host)) {
				t.Errorf("UnpackedLen = %d, want %d", extracted.UnpackedLen, len(host))
			}
			if diff := cmp.Diff(p, extracted.Pack); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		}
	}
}

func TestExtractMarkerNotFound(t *testing.T) {
	if _, err := ExtractBytes([]byte("not a pack")); err != ErrMarkerNotFound {
		t.Errorf("err = %v, want ErrMarkerNotFound", err)
	}
}

func TestExtractMalformedMarker(t *testing.T) {
	// Trailing marker present, but the leading marker is garbled.
	garbledMarker := "not_the_marker_not_the_marker!!!"
	if len(garbledMarker) != len(Marker) {
		t.Fatalf("test fixture bug: garbled marker length %d != %d", len(garbledMarker), len(Marker))
	}

	var buf bytes.Buffer
	buf.WriteString("host")
	buf.WriteString(garbledMarker)
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write([]byte{0, 0, 0, 0})
	buf.WriteString(Marker)

	if _, err := ExtractBytes(buf.Bytes()); err != ErrMalformedMarker {
		t.Errorf("err = %v, want ErrMalformedMarker", err)
	}
}
