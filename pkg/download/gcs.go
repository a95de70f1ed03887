package download

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-imageload/pkg/imageload"
)

// GCSConfig holds configuration for the GCS downloader.
type GCSConfig struct {
	// FetchTimeout bounds a single object read. Defaults to 30s.
	FetchTimeout time.Duration
}

// GCS downloads images stored as Cloud Storage objects. Identifiers take the
// form gs://bucket/object. Handle and cancellation semantics match the HTTP
// downloader.
type GCS struct {
	cfg     GCSConfig
	client  GCSClient
	logger  zerolog.Logger
	handles *handleTable
}

// NewGCS creates a GCS downloader around an abstracted storage client.
func NewGCS(cfg GCSConfig, client GCSClient, logger zerolog.Logger) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs client cannot be nil")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &GCS{
		cfg:     cfg,
		client:  client,
		logger:  logger.With().Str("component", "GCSDownloader").Logger(),
		handles: newHandleTable(),
	}, nil
}

// Start begins an asynchronous fetch of identifier and returns its handle.
func (d *GCS) Start(identifier string, callback func(img image.Image, err error)) imageload.Handle {
	handle, ctx := d.handles.add()
	go func() {
		defer d.handles.release(handle)
		img, err := d.fetch(ctx, identifier)
		callback(img, err)
	}()
	return handle
}

// Cancel requests cancellation of an in-flight fetch. Idempotent; a no-op
// after the fetch has completed.
func (d *GCS) Cancel(handle imageload.Handle) {
	d.handles.cancel(handle)
}

func (d *GCS) fetch(ctx context.Context, identifier string) (image.Image, error) {
	bucket, object, err := parseGCSIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
	defer cancel()

	reader, err := d.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs object %s: %w", identifier, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read gcs object %s: %w", identifier, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", identifier, err)
	}

	d.logger.Debug().Str("identifier", identifier).Int("bytes", len(data)).Msg("GCS download complete.")
	return img, nil
}

// parseGCSIdentifier splits a gs://bucket/object identifier.
func parseGCSIdentifier(identifier string) (bucket, object string, err error) {
	const scheme = "gs://"
	if !strings.HasPrefix(identifier, scheme) {
		return "", "", fmt.Errorf("identifier %s is not a gs:// URL", identifier)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(identifier, scheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("identifier %s does not name a bucket and object", identifier)
	}
	return bucket, object, nil
}
