package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	// Register the decoders for the formats cached bytes may be encoded in.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// LookupConfig holds configuration for the asynchronous lookup adapter.
type LookupConfig struct {
	// FetchTimeout bounds a single store fetch. Defaults to 10s.
	FetchTimeout time.Duration
}

// Lookup adapts a Store to the controller's CacheClient contract: each lookup
// runs on its own goroutine, decodes the stored bytes, and calls back exactly
// once. Store failures and undecodable bytes are reported as misses; the
// controller treats a miss as fall-through, never as an error.
type Lookup struct {
	store        Store
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

// NewLookup creates a Lookup around a Store.
func NewLookup(cfg LookupConfig, store Store, logger zerolog.Logger) (*Lookup, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Lookup{
		store:        store,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger.With().Str("component", "CacheLookup").Logger(),
	}, nil
}

// Lookup resolves identifier to a decoded image, calling back with ok=false on
// a miss.
func (l *Lookup) Lookup(identifier string, callback func(img image.Image, ok bool)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.fetchTimeout)
		defer cancel()

		data, err := l.store.Fetch(ctx, identifier)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				l.logger.Warn().Err(err).Str("identifier", identifier).
					Msg("Cache fetch failed, treating as a miss.")
			}
			callback(nil, false)
			return
		}

		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			l.logger.Warn().Err(err).Str("identifier", identifier).
				Msg("Cached bytes failed to decode, treating as a miss.")
			callback(nil, false)
			return
		}
		callback(img, true)
	}()
}
