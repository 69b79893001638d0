package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/objectfs/imagecache/internal/circuit"
	"github.com/objectfs/imagecache/internal/storage/s3"
	"github.com/objectfs/imagecache/pkg/retry"
)

// StaticDecoder returns a preconstructed Info on every Read call. It
// exists for tests that exercise the façade's read-through path without a
// real external collaborator behind it.
type StaticDecoder struct {
	Info  Info
	Calls int
}

// Read implements Decoder.
func (d *StaticDecoder) Read(ctx context.Context) (Info, error) {
	d.Calls++
	return d.Info, nil
}

// S3Decoder produces an Info by fetching and parsing a source image's
// metadata from an S3-compatible bucket. It is the illustrative external
// collaborator the façade calls on a miss — not part of the cache core's
// contract, and replaceable by any other Decoder.
type S3Decoder struct {
	backend *s3.Backend
	id      Identifier
	format  string

	breaker *circuit.CircuitBreaker
	retryer *retry.Retryer
}

// NewS3Decoder builds a Decoder reading id's source object from backend,
// guarded by a circuit breaker (so a failing bucket stops being hammered)
// and a retryer (so a single transient error does not surface as a miss).
func NewS3Decoder(backend *s3.Backend, id Identifier, format string) *S3Decoder {
	return &S3Decoder{
		backend: backend,
		id:      id,
		format:  format,
		breaker: circuit.NewCircuitBreaker("s3-decoder:"+string(id), circuit.Config{
			MaxRequests: 5,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
		}),
		retryer: retry.New(retry.DefaultConfig()),
	}
}

// Read implements Decoder by fetching the source object's metadata from
// S3 and translating it into an Info.
func (d *S3Decoder) Read(ctx context.Context) (Info, error) {
	var data []byte

	err := d.breaker.Execute(func() error {
		return d.retryer.DoWithContext(ctx, func(ctx context.Context) error {
			var fetchErr error
			data, fetchErr = d.backend.GetObject(ctx, string(d.id), 0, 0)
			return fetchErr
		})
	})
	if err != nil {
		return Info{}, fmt.Errorf("s3 decoder: read %s: %w", d.id, err)
	}

	objInfo, err := d.backend.HeadObject(ctx, string(d.id))
	if err != nil {
		return Info{}, fmt.Errorf("s3 decoder: head %s: %w", d.id, err)
	}

	info := Info{
		Identifier: d.id,
		Format:     d.format,
		Attributes: map[string]string{
			"content_type": objInfo.ContentType,
			"etag":         objInfo.ETag,
			"size":         fmt.Sprintf("%d", len(data)),
		},
	}
	return info, nil
}
