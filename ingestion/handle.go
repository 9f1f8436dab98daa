package ingestion

import (
	"context"

	"github.com/poiesic/lectern/core"
)

// Handle tracks one processing job.
type Handle struct {
	id   core.ID
	done chan struct{}
	doc  *core.Document
	err  error
}

func newHandle(id core.ID) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// completedHandle returns a handle that is already finished.
func completedHandle(doc *core.Document, err error) *Handle {
	h := newHandle(doc.ID)
	h.complete(doc, err)
	return h
}

func (h *Handle) complete(doc *core.Document, err error) {
	h.doc = doc
	h.err = err
	close(h.done)
}

// DocumentID returns the ID of the document being processed.
func (h *Handle) DocumentID() core.ID {
	return h.id
}

// Done is closed once the document reaches a terminal status.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job finishes or ctx is done. It returns the document
// as last recorded by the job and the cause of a processing failure, if any.
func (h *Handle) Wait(ctx context.Context) (*core.Document, error) {
	select {
	case <-h.done:
		return h.doc, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
