package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// Sample is one recorded book update. Missing sides replay as empty.
type Sample struct {
	Asks      []domain.Delta `json:"asks"`
	Bids      []domain.Delta `json:"bids"`
	Timestamp int64          `json:"timestamp"`
}

// Decode reads a JSON array of samples.
func Decode(r io.Reader) ([]Sample, error) {
	var samples []Sample
	if err := json.NewDecoder(r).Decode(&samples); err != nil {
		return nil, fmt.Errorf("replay: decode samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, domain.ErrNoSamples
	}
	return samples, nil
}

// Load reads samples from a local file or, for "s3://" sources, from blobs.
func Load(ctx context.Context, source string, blobs domain.BlobReader) ([]Sample, error) {
	if source == "" {
		return nil, fmt.Errorf("replay: empty source: %w", domain.ErrInvalidSource)
	}

	var rc io.ReadCloser
	if strings.HasPrefix(source, "s3://") {
		if blobs == nil {
			return nil, fmt.Errorf("replay: %s needs object storage: %w", source, domain.ErrInvalidSource)
		}
		body, err := blobs.Get(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("replay: fetch %s: %w", source, err)
		}
		rc = body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("replay: open %s: %w", source, err)
		}
		rc = f
	}
	defer rc.Close()

	samples, err := Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("replay: load %s: %w", source, err)
	}
	return samples, nil
}

// Encode writes samples as an indented JSON array.
func Encode(w io.Writer, samples []Sample) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(samples); err != nil {
		return fmt.Errorf("replay: encode samples: %w", err)
	}
	return nil
}
