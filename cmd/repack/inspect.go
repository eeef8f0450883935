package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
	"github.com/brioche-dev/brioche-repack-go/internal/runnable"
)

const inspectHelp = `repack inspect <path>

Print the pack trailer (if any) carried by the file at path.
`

type inspectOutput struct {
	UnpackedLen int64         `json:"unpacked_len"`
	Kind        string        `json:"kind"`
	LdLinux     *pack.LdLinux `json:"ld_linux,omitempty"`
	Static      *pack.Static  `json:"static,omitempty"`
	Metadata    *metadataView `json:"metadata,omitempty"`
}

type metadataView struct {
	Format   string             `json:"format"`
	Runnable *runnable.Runnable `json:"runnable,omitempty"`
}

func cmdInspect(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("inspect", flag.ExitOnError)
	fset.Usage = usage(fset, inspectHelp)
	fset.Parse(args)

	if fset.NArg() != 1 {
		return xerrors.New("expected exactly one path argument")
	}
	path := fset.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return xerrors.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	extracted, err := pack.Extract(f)
	if err != nil {
		return xerrors.Errorf("extract pack from %s: %w", path, err)
	}

	out := inspectOutput{UnpackedLen: extracted.UnpackedLen}
	switch extracted.Pack.Kind {
	case pack.KindLdLinux:
		out.Kind = "ld_linux"
		out.LdLinux = extracted.Pack.LdLinux
	case pack.KindStatic:
		out.Kind = "static"
		out.Static = extracted.Pack.Static
	case pack.KindMetadata:
		out.Kind = "metadata"
		view := &metadataView{Format: extracted.Pack.Metadata.Format}
		if r, err := runnable.FromPack(extracted.Pack); err == nil {
			view.Runnable = r
		}
		out.Metadata = view
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
