/*
Package s3 provides an S3-compatible object storage backend.

It exists as the illustrative external collaborator behind the cache
package's Decoder interface: something that produces source bytes when
the cache has no cached representation for an identifier. It is not
part of the cache's core contract, and a Decoder can be backed by
anything that can fetch bytes given a key.

# Usage

	backend, err := s3.NewBackend(ctx, "my-bucket", s3.NewDefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Close()

	data, err := backend.GetObject(ctx, "images/123/original.jpg", 0, 0)

# Connection pooling

Requests are served from a ConnectionPool of *s3.Client values, sized
by Config.PoolSize, with a background HealthChecker that periodically
samples idle connections and discards ones that fail a ListBuckets
probe.

# Transfer Acceleration

Config.UseAccelerate switches the backend onto an S3 Transfer
Acceleration endpoint at construction time.
*/
package s3
