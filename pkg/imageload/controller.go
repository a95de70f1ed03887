// Package imageload resolves logical image identifiers (URLs or file paths)
// into decoded in-memory images, choosing transparently between a cache lookup
// and a download, with at most one fetch in flight per controller and correct
// cancellation when the identifier changes or the host becomes invisible.
package imageload

import (
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds construction-time options for a Controller.
type Config struct {
	// DefaultImage is displayed whenever no real image is loaded. May be nil.
	DefaultImage image.Image

	// Decoder resolves local-path identifiers. Defaults to FilePathDecoder.
	Decoder PathDecoder
}

// Controller coordinates a cache client and a download client to load the
// image named by its current identifier. All of its state is guarded by a
// single mutex; completion callbacks from collaborators may arrive on any
// goroutine and are validated against an attempt token minted per fetch, so a
// superseded attempt can never overwrite a newer one.
//
// Either collaborator may be nil: with no cache every remote load goes straight
// to the downloader, and with no downloader a cache miss ends the attempt.
type Controller struct {
	cache      CacheClient
	downloader DownloadClient
	presenter  Presenter
	decoder    PathDecoder
	logger     zerolog.Logger

	mu             sync.Mutex
	identifier     string
	defaultImage   image.Image
	currentImage   image.Image
	imageLoaded    bool
	delegate       Delegate
	attemptToken   string
	downloadHandle Handle
	visible        bool
}

// New creates a Controller. The presenter is required; cache and downloader
// are optional collaborators.
func New(
	cfg Config,
	cache CacheClient,
	downloader DownloadClient,
	presenter Presenter,
	logger zerolog.Logger,
) (*Controller, error) {
	if presenter == nil {
		return nil, fmt.Errorf("presenter cannot be nil")
	}
	decoder := cfg.Decoder
	if decoder == nil {
		decoder = FilePathDecoder{}
	}

	return &Controller{
		cache:        cache,
		downloader:   downloader,
		presenter:    presenter,
		decoder:      decoder,
		defaultImage: cfg.DefaultImage,
		currentImage: cfg.DefaultImage,
		logger:       logger.With().Str("component", "ImageLoadController").Logger(),
	}, nil
}

// SetIdentifier changes the resource the controller should display. Setting an
// equal identifier is a no-op. Otherwise any in-flight attempt is cancelled,
// the loaded flag is cleared, and, if the host is visible, a fresh load begins.
// When resetToDefault is true, or the new identifier is empty, the default
// image is displayed immediately.
func (c *Controller) SetIdentifier(identifier string, resetToDefault bool) {
	c.mu.Lock()
	if identifier == c.identifier {
		c.mu.Unlock()
		return
	}
	stale := c.cancelAttemptLocked()
	c.imageLoaded = false
	c.identifier = identifier
	if resetToDefault || identifier == "" {
		c.currentImage = c.defaultImage
	}
	shouldLoad := c.visible
	c.mu.Unlock()

	c.cancelDownload(stale)
	if shouldLoad {
		c.loadIfNeeded()
	}
}

// Identifier returns the current identifier.
func (c *Controller) Identifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identifier
}

// SetDefaultImage changes the fallback image. If no real image is loaded the
// new default is displayed immediately. Setting the same image is a no-op.
func (c *Controller) SetDefaultImage(img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if img == c.defaultImage {
		return
	}
	c.defaultImage = img
	if !c.imageLoaded {
		c.currentImage = img
	}
}

// CurrentImage returns the image the host should display.
func (c *Controller) CurrentImage() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentImage
}

// ImageLoaded reports whether a real (non-default) image has been set for the
// current identifier.
func (c *Controller) ImageLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imageLoaded
}

// SetDelegate replaces the load observer. A nil delegate disables notification.
func (c *Controller) SetDelegate(d Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

// Delegate returns the current load observer.
func (c *Controller) Delegate() Delegate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate
}

// OnBecameVisible starts a load attempt for the current identifier. It is
// idempotent: nothing happens if an image is already loaded or an attempt is
// already outstanding.
func (c *Controller) OnBecameVisible() {
	c.mu.Lock()
	c.visible = true
	c.mu.Unlock()
	c.loadIfNeeded()
}

// OnBecameInvisible cancels any outstanding attempt, reverts the displayed
// image to the default and clears the loaded flag, so re-entry always shows
// the placeholder until a fresh load completes.
func (c *Controller) OnBecameInvisible() {
	c.mu.Lock()
	c.visible = false
	stale := c.cancelAttemptLocked()
	c.currentImage = c.defaultImage
	c.imageLoaded = false
	c.mu.Unlock()

	c.cancelDownload(stale)
}

// OnContentSettled reports that the presentation surface has finished all
// pending content transactions. If non-empty content is displayed and the
// delegate observes decode completion, it is notified once on the presentation
// executor. The signal is purely observational and carries no state.
func (c *Controller) OnContentSettled() {
	c.mu.Lock()
	hasContent := c.currentImage != nil
	delegate := c.delegate
	c.mu.Unlock()

	if !hasContent {
		return
	}
	observer, ok := delegate.(DecodeObserver)
	if !ok {
		return
	}
	c.presenter.Do(func() {
		observer.OnDecodeFinished(c)
	})
}

// Close cancels any outstanding fetch. It is the controller's only mandatory
// cleanup and is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	stale := c.cancelAttemptLocked()
	c.mu.Unlock()

	c.cancelDownload(stale)
	return nil
}

// cancelAttemptLocked invalidates the outstanding attempt, if any, and returns
// the download handle the caller must cancel once the lock is released.
// Clearing the token is what makes any pending completion stale; cancellation
// never notifies the delegate.
func (c *Controller) cancelAttemptLocked() Handle {
	c.attemptToken = ""
	stale := c.downloadHandle
	c.downloadHandle = ""
	return stale
}

// cancelDownload forwards a handle collected under the lock to the downloader.
func (c *Controller) cancelDownload(stale Handle) {
	if stale == "" || c.downloader == nil {
		return
	}
	c.downloader.Cancel(stale)
}

// loadIfNeeded is the fetch orchestrator. It starts an attempt only when the
// host is visible, no image is loaded for the current identifier, the
// identifier is non-empty, and no attempt is already outstanding, which is the
// at-most-one-in-flight guarantee. The delegate is snapshotted here, at
// attempt start, so whoever requested the load is notified even if the host
// clears the delegate before completion.
func (c *Controller) loadIfNeeded() {
	c.mu.Lock()
	if !c.visible || c.imageLoaded || c.identifier == "" ||
		c.attemptToken != "" || c.downloadHandle != "" {
		c.mu.Unlock()
		return
	}
	identifier := c.identifier
	token := uuid.NewString()
	c.attemptToken = token
	delegate := c.delegate
	c.mu.Unlock()

	switch {
	case isLocalPath(identifier):
		c.loadLocal(identifier, token, delegate)
	case c.cache != nil:
		c.lookupCache(identifier, token, delegate)
	case c.downloader != nil:
		c.startDownload(identifier, token, delegate)
	default:
		c.logger.Debug().Str("identifier", identifier).
			Msg("No collaborator can serve a remote identifier, ending attempt.")
		c.endAttempt(token)
	}
}

// loadLocal resolves a local-path identifier on the presentation executor. A
// decode failure still completes the attempt with whatever image resulted; the
// loaded-notification contract fires regardless.
func (c *Controller) loadLocal(identifier, token string, delegate Delegate) {
	c.presenter.Do(func() {
		img, err := c.decoder.DecodeFile(localPath(identifier))
		if err != nil {
			c.logger.Debug().Err(err).Str("identifier", identifier).
				Msg("Local image decode failed.")
		}

		c.mu.Lock()
		if token != c.attemptToken {
			c.mu.Unlock()
			c.logger.Debug().Str("identifier", identifier).
				Msg("Discarding superseded local load.")
			return
		}
		c.imageLoaded = true
		c.currentImage = img
		c.attemptToken = ""
		c.mu.Unlock()

		// Already on the presentation executor, so notify inline.
		if delegate != nil {
			delegate.OnImageLoaded(c, img)
		}
	})
}

// lookupCache issues the cache stage of a remote attempt. A hit completes the
// attempt; a miss falls through to the downloader when one is configured. The
// callback validates its captured token before either branch, so a superseded
// miss can never issue a download for a stale identifier.
func (c *Controller) lookupCache(identifier, token string, delegate Delegate) {
	c.cache.Lookup(identifier, func(img image.Image, ok bool) {
		c.mu.Lock()
		live := token == c.attemptToken
		c.mu.Unlock()
		if !live {
			c.logger.Debug().Str("identifier", identifier).
				Msg("Discarding superseded cache callback.")
			return
		}
		if ok {
			c.completeAttempt(token, img, delegate)
			return
		}
		if c.downloader != nil {
			c.startDownload(identifier, token, delegate)
			return
		}
		c.logger.Debug().Str("identifier", identifier).
			Msg("Cache miss with no downloader configured, ending attempt.")
		c.endAttempt(token)
	})
}

// startDownload issues the download stage. The handle is stored only if the
// attempt is still live once Start returns; otherwise the download is
// cancelled immediately. Cancel is idempotent and safe after completion, so
// the race with an already-finished callback is harmless.
func (c *Controller) startDownload(identifier, token string, delegate Delegate) {
	handle := c.downloader.Start(identifier, func(img image.Image, err error) {
		if err != nil {
			c.logger.Debug().Err(err).Str("identifier", identifier).
				Msg("Download produced no image.")
			img = nil
		}
		c.completeAttempt(token, img, delegate)
	})

	c.mu.Lock()
	if token != c.attemptToken {
		c.mu.Unlock()
		c.downloader.Cancel(handle)
		return
	}
	c.downloadHandle = handle
	c.mu.Unlock()
}

// completeAttempt is the single completion point for cache hits and download
// callbacks. The token comparison under the lock is the sole mechanism that
// keeps a stale completion from mutating state or notifying the delegate.
func (c *Controller) completeAttempt(token string, img image.Image, delegate Delegate) {
	c.mu.Lock()
	if token != c.attemptToken {
		c.mu.Unlock()
		c.logger.Debug().Msg("Discarding superseded completion.")
		return
	}
	if img != nil {
		c.imageLoaded = true
		c.currentImage = img
	}
	c.attemptToken = ""
	c.downloadHandle = ""
	c.mu.Unlock()

	if img != nil && delegate != nil {
		c.presenter.Do(func() {
			delegate.OnImageLoaded(c, img)
		})
	}
}

// endAttempt clears the attempt state if the given token is still live. Used
// when an attempt finishes without producing an image.
func (c *Controller) endAttempt(token string) {
	c.mu.Lock()
	if c.attemptToken == token {
		c.attemptToken = ""
		c.downloadHandle = ""
	}
	c.mu.Unlock()
}
