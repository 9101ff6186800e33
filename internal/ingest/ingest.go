// Package ingest reads extraction payloads into validated vehicle
// batches. Records that fail validation are quarantined with a row
// index so the operator can trace them back to the source document;
// the rest of the batch proceeds.
package ingest

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leasingborsen/reconcile-cli/internal/model"
)

// Rejected is one record dropped at the ingest boundary.
type Rejected struct {
	Index   int                    `json:"index"`
	Vehicle model.ExtractedVehicle `json:"vehicle"`
	Reason  string                 `json:"reason"`
}

// Batch is the validated output of one extraction payload.
type Batch struct {
	Vehicles []model.ExtractedVehicle
	Rejected []Rejected
}

// decodeStream decodes a JSON array streaming, sending each element to
// a channel. Expects input in the form [{...},{...}]. Both channels are
// closed when processing completes.
func decodeStream(ctx context.Context, r io.Reader) (<-chan model.ExtractedVehicle, <-chan error) {
	outCh := make(chan model.ExtractedVehicle, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "ingest: read opening token")
			return
		}
		delim, ok := tok.(json.Delim)
		if !ok || delim != '[' {
			errCh <- eris.Errorf("ingest: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}

			var v model.ExtractedVehicle
			if err := decoder.Decode(&v); err != nil {
				errCh <- eris.Wrap(err, "ingest: decode element")
				return
			}

			select {
			case outCh <- v:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "ingest: read closing token")
		}
	}()

	return outCh, errCh
}

// Read decodes and validates an extraction payload. Malformed JSON
// fails the whole read; invalid vehicles only quarantine themselves.
func Read(ctx context.Context, r io.Reader) (*Batch, error) {
	batch := &Batch{}
	vehicles, errCh := decodeStream(ctx, r)

	i := -1
	for v := range vehicles {
		i++
		if err := v.Validate(); err != nil {
			batch.Rejected = append(batch.Rejected, Rejected{Index: i, Vehicle: v, Reason: err.Error()})
			continue
		}
		batch.Vehicles = append(batch.Vehicles, v)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	if len(batch.Rejected) > 0 {
		zap.L().Warn("extraction payload had invalid records",
			zap.Int("accepted", len(batch.Vehicles)),
			zap.Int("rejected", len(batch.Rejected)),
		)
	}
	return batch, nil
}

// ReadFile is Read over a file path.
func ReadFile(ctx context.Context, path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()
	return Read(ctx, f)
}
