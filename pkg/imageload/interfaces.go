package imageload

import (
	"fmt"
	"image"
	"os"
	"strings"

	// Register the decoders for the formats a local-path identifier may name.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ====================================================================================
// This file defines the contracts between the controller and its external
// collaborators. The controller owns none of them: caches, downloaders, delegates
// and the presentation executor are all supplied by the hosting layer, and the
// controller depends only on the behaviour described here.
// ====================================================================================

// Handle is an opaque cancellation handle for an in-flight download. The empty
// handle means "no download outstanding".
type Handle string

// CacheClient is an asynchronous lookup into a local image cache.
type CacheClient interface {
	// Lookup resolves an identifier to a decoded image if the cache holds one.
	// It must invoke callback exactly once, from any goroutine, with ok=false
	// on a miss. A miss is not an error. No ordering is guaranteed across
	// identifiers.
	Lookup(identifier string, callback func(img image.Image, ok bool))
}

// DownloadClient fetches an image for an identifier over some transport.
type DownloadClient interface {
	// Start begins an asynchronous fetch and returns a handle for cancellation.
	// It must invoke callback exactly once, from any goroutine, with either a
	// decoded image or an error.
	Start(identifier string, callback func(img image.Image, err error)) Handle

	// Cancel requests cancellation of an in-flight fetch. It is idempotent and
	// safe to call after the fetch has already completed.
	Cancel(handle Handle)
}

// Delegate observes load completions. The controller holds a plain, non-owning
// reference; hosts clear it themselves before teardown.
type Delegate interface {
	// OnImageLoaded is invoked on the presentation executor after a load
	// attempt produces an image.
	OnImageLoaded(ctrl *Controller, img image.Image)
}

// DecodeObserver is an optional extension of Delegate for hosts that want to
// know when the presentation surface has finished decoding displayed content.
type DecodeObserver interface {
	// OnDecodeFinished is invoked once per settling event reported through
	// Controller.OnContentSettled, provided non-empty content is displayed.
	OnDecodeFinished(ctrl *Controller)
}

// Presenter marshals work onto the single presentation context. Do must not
// block the caller; queued tasks run one at a time in submission order.
type Presenter interface {
	Do(task func())
}

// PathDecoder decodes an image from a local file path.
type PathDecoder interface {
	DecodeFile(path string) (image.Image, error)
}

// FilePathDecoder is the default PathDecoder. It reads the file and decodes it
// through the standard image format registry.
type FilePathDecoder struct{}

// DecodeFile opens and decodes the image at path.
func (FilePathDecoder) DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image file %s: %w", path, err)
	}
	return img, nil
}

// isLocalPath classifies an identifier. A file scheme or the absence of any
// scheme names a local file; everything else is remote.
func isLocalPath(identifier string) bool {
	if strings.HasPrefix(identifier, "file://") {
		return true
	}
	return !strings.Contains(identifier, "://")
}

// localPath strips the file scheme, if present, from a local identifier.
func localPath(identifier string) string {
	return strings.TrimPrefix(identifier, "file://")
}
