package runnable

import (
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/brioche-dev/brioche-repack-go/internal/pack"
)

// ErrUnrecognizedFormat is returned by FromPack when a Metadata pack's
// format is not runnable.Format.
var ErrUnrecognizedFormat = xerrors.New("runnable: unrecognized metadata format")

// ToPack builds a Metadata pack carrying r's canonical JSON encoding,
// tagged with runnable.Format.
func ToPack(r *Runnable, resourcePaths [][]byte) (*pack.Pack, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, xerrors.Errorf("runnable: marshal: %w", err)
	}
	return &pack.Pack{
		Kind: pack.KindMetadata,
		Metadata: &pack.Metadata{
			ResourcePaths: resourcePaths,
			Format:        Format,
			Payload:       payload,
		},
	}, nil
}

// FromPack extracts the Runnable carried by a Metadata pack, failing if
// its format isn't the one this package understands.
func FromPack(p *pack.Pack) (*Runnable, error) {
	if p.Kind != pack.KindMetadata {
		return nil, xerrors.Errorf("runnable: pack is not a metadata pack")
	}
	if p.Metadata.Format != Format {
		return nil, xerrors.Errorf("%w: %q", ErrUnrecognizedFormat, p.Metadata.Format)
	}
	var r Runnable
	if err := json.Unmarshal(p.Metadata.Payload, &r); err != nil {
		return nil, xerrors.Errorf("runnable: unmarshal: %w", err)
	}
	return &r, nil
}
