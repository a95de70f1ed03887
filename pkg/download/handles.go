// Package download provides cancellable DownloadClient implementations for
// the load controller: an HTTP fetcher and a Google Cloud Storage fetcher.
package download

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/illmade-knight/go-imageload/pkg/imageload"
)

// handleTable maps opaque download handles to the cancel funcs of their
// in-flight fetches. Cancelling an unknown handle is a no-op, which makes
// Cancel idempotent and safe after completion.
type handleTable struct {
	mu       sync.Mutex
	inflight map[imageload.Handle]context.CancelFunc
}

func newHandleTable() *handleTable {
	return &handleTable{
		inflight: make(map[imageload.Handle]context.CancelFunc),
	}
}

// add mints a fresh handle bound to a new cancellable context.
func (t *handleTable) add() (imageload.Handle, context.Context) {
	handle := imageload.Handle(uuid.NewString())
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.inflight[handle] = cancel
	t.mu.Unlock()
	return handle, ctx
}

// cancel invokes and removes the cancel func for handle, if still present.
func (t *handleTable) cancel(handle imageload.Handle) {
	t.mu.Lock()
	cancelFunc, ok := t.inflight[handle]
	if ok {
		delete(t.inflight, handle)
	}
	t.mu.Unlock()
	if ok {
		cancelFunc()
	}
}

// release frees the context resources of a completed fetch.
func (t *handleTable) release(handle imageload.Handle) {
	t.cancel(handle)
}
