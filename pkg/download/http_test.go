package download_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-imageload/pkg/download"
)

// encodePNG returns the PNG encoding of a 1x1 image.
func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return buf.Bytes()
}

// downloadResult carries a callback invocation out of the fetch goroutine.
type downloadResult struct {
	img image.Image
	err error
}

func awaitDownload(t *testing.T, results <-chan downloadResult) downloadResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("download callback never fired")
		return downloadResult{}
	}
}

// captureStore records Write calls for write-back assertions.
type captureStore struct {
	writes chan []byte
}

func (s *captureStore) Fetch(_ context.Context, _ string) ([]byte, error) { return nil, nil }

func (s *captureStore) Write(_ context.Context, _ string, data []byte) error {
	s.writes <- data
	return nil
}

func (s *captureStore) Close() error { return nil }

func TestHTTP_Start(t *testing.T) {
	t.Run("Downloads and decodes an image", func(t *testing.T) {
		// Arrange
		pngBytes := encodePNG(t)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(pngBytes)
		}))
		t.Cleanup(server.Close)

		d := download.NewHTTP(download.HTTPConfig{}, server.Client(), nil, zerolog.Nop())
		results := make(chan downloadResult, 1)

		// Act
		handle := d.Start(server.URL+"/a.png", func(img image.Image, err error) {
			results <- downloadResult{img: img, err: err}
		})

		// Assert
		require.NotEmpty(t, handle)
		result := awaitDownload(t, results)
		require.NoError(t, result.err)
		require.NotNil(t, result.img)
		assert.Equal(t, 1, result.img.Bounds().Dx())
	})

	t.Run("Non-2xx status is an error", func(t *testing.T) {
		// Arrange
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		t.Cleanup(server.Close)

		d := download.NewHTTP(download.HTTPConfig{}, server.Client(), nil, zerolog.Nop())
		results := make(chan downloadResult, 1)

		// Act
		d.Start(server.URL+"/missing.png", func(img image.Image, err error) {
			results <- downloadResult{img: img, err: err}
		})

		// Assert
		result := awaitDownload(t, results)
		require.Error(t, result.err)
		assert.Contains(t, result.err.Error(), "unexpected status")
		assert.Nil(t, result.img)
	})

	t.Run("Undecodable body is an error", func(t *testing.T) {
		// Arrange
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not an image"))
		}))
		t.Cleanup(server.Close)

		d := download.NewHTTP(download.HTTPConfig{}, server.Client(), nil, zerolog.Nop())
		results := make(chan downloadResult, 1)

		// Act
		d.Start(server.URL+"/corrupt.png", func(img image.Image, err error) {
			results <- downloadResult{img: img, err: err}
		})

		// Assert
		result := awaitDownload(t, results)
		require.Error(t, result.err)
	})

	t.Run("Malformed identifier reports through the callback", func(t *testing.T) {
		// Arrange
		d := download.NewHTTP(download.HTTPConfig{}, nil, nil, zerolog.Nop())
		results := make(chan downloadResult, 1)

		// Act
		d.Start("://not-a-url", func(img image.Image, err error) {
			results <- downloadResult{img: img, err: err}
		})

		// Assert
		result := awaitDownload(t, results)
		require.Error(t, result.err)
	})
}

func TestHTTP_Cancel(t *testing.T) {
	// Arrange: a handler that only returns once the request is cancelled.
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	d := download.NewHTTP(download.HTTPConfig{}, server.Client(), nil, zerolog.Nop())
	results := make(chan downloadResult, 1)

	handle := d.Start(server.URL+"/slow.png", func(img image.Image, err error) {
		results <- downloadResult{img: img, err: err}
	})

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}

	// Act
	d.Cancel(handle)

	// Assert: the fetch fails with a cancellation error, and a second Cancel
	// is a safe no-op.
	result := awaitDownload(t, results)
	require.Error(t, result.err)
	assert.ErrorIs(t, result.err, context.Canceled)
	d.Cancel(handle)
}

func TestHTTP_WriteBack(t *testing.T) {
	// Arrange
	pngBytes := encodePNG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(server.Close)

	store := &captureStore{writes: make(chan []byte, 1)}
	d := download.NewHTTP(download.HTTPConfig{}, server.Client(), store, zerolog.Nop())
	results := make(chan downloadResult, 1)

	// Act
	d.Start(server.URL+"/a.png", func(img image.Image, err error) {
		results <- downloadResult{img: img, err: err}
	})
	require.NoError(t, awaitDownload(t, results).err)

	// Assert: the raw bytes are written back in the background.
	select {
	case written := <-store.writes:
		assert.Equal(t, pngBytes, written)
	case <-time.After(5 * time.Second):
		t.Fatal("downloaded bytes were never written back to the store")
	}
}
