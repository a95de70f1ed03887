package download

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-imageload/pkg/imagecache"
	"github.com/illmade-knight/go-imageload/pkg/imageload"

	// Register the decoders for the formats remote images may be encoded in.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// HTTPConfig holds configuration for the HTTP downloader.
type HTTPConfig struct {
	// RequestTimeout bounds a single fetch. Defaults to 30s.
	RequestTimeout time.Duration
	// WriteBackTimeout bounds the background cache write. Defaults to 10s.
	WriteBackTimeout time.Duration
}

// HTTP downloads images over HTTP(S). Each fetch runs on its own goroutine
// under a cancellable context keyed by the returned handle. When a write-back
// store is configured, successfully downloaded bytes are written to it in the
// background so later lookups hit the cache.
type HTTP struct {
	cfg       HTTPConfig
	client    *http.Client
	writeBack imagecache.Store
	logger    zerolog.Logger
	handles   *handleTable
}

// NewHTTP creates an HTTP downloader. A nil client falls back to a default
// client; the write-back store is optional.
func NewHTTP(cfg HTTPConfig, client *http.Client, writeBack imagecache.Store, logger zerolog.Logger) *HTTP {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.WriteBackTimeout <= 0 {
		cfg.WriteBackTimeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTP{
		cfg:       cfg,
		client:    client,
		writeBack: writeBack,
		logger:    logger.With().Str("component", "HTTPDownloader").Logger(),
		handles:   newHandleTable(),
	}
}

// Start begins an asynchronous fetch of identifier and returns its handle.
// All failures, including a malformed identifier, are reported through the
// callback.
func (d *HTTP) Start(identifier string, callback func(img image.Image, err error)) imageload.Handle {
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
func (d *HTTP) Cancel(handle imageload.Handle) {
	d.handles.cancel(handle)
}

// fetch performs the request and decodes the body.
func (d *HTTP) fetch(ctx context.Context, identifier string) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identifier, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", identifier, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", identifier, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", identifier, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body for %s: %w", identifier, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", identifier, err)
	}

	if d.writeBack != nil {
		// Write back off the fetch path so the caller is never blocked on
		// the cache.
		go d.writeBackBytes(identifier, data)
	}

	d.logger.Debug().Str("identifier", identifier).Int("bytes", len(data)).Msg("Download complete.")
	return img, nil
}

func (d *HTTP) writeBackBytes(identifier string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteBackTimeout)
	defer cancel()
	if err := d.writeBack.Write(ctx, identifier, data); err != nil {
		d.logger.Error().Err(err).Str("identifier", identifier).
			Msg("Failed to write downloaded bytes to cache in background.")
	}
}
