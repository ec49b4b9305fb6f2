// Package dispatch moves decoded frames from the receive goroutine to the
// bridge's tick goroutine.
package dispatch

import (
	"context"
	"sync"

	"github.com/gaspardpetit/editorbridge/internal/logx"
	"github.com/gaspardpetit/editorbridge/internal/protocol"
)

// Handler processes one message on the draining goroutine.
type Handler interface {
	Handle(ctx context.Context, msg protocol.Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg protocol.Message)

func (f HandlerFunc) Handle(ctx context.Context, msg protocol.Message) { f(ctx, msg) }

// Dispatcher queues messages from any number of producers and hands them,
// in arrival order, to a single consumer calling ProcessPending.
type Dispatcher struct {
	handler Handler
	// OnDecodeError observes dropped frames.
	OnDecodeError func(err error)

	mu    sync.Mutex
	queue []protocol.Message
}

// New returns a dispatcher delivering to h.
func New(h Handler) *Dispatcher {
	return &Dispatcher{handler: h}
}

// OnBytesReceived decodes one complete frame and queues it. Malformed frames
// are logged and dropped.
func (d *Dispatcher) OnBytesReceived(frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("dropping malformed frame")
		if d.OnDecodeError != nil {
			d.OnDecodeError(err)
		}
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, msg)
	d.mu.Unlock()
}

// ProcessPending dispatches every message queued so far and returns how many
// were handled. Messages queued while it runs wait for the next call.
func (d *Dispatcher) ProcessPending(ctx context.Context) int {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	for i, msg := range batch {
		if ctx.Err() != nil {
			d.requeue(batch[i:])
			return i
		}
		d.handler.Handle(ctx, msg)
	}
	return len(batch)
}

// requeue puts unprocessed messages back in front of newer arrivals.
func (d *Dispatcher) requeue(rest []protocol.Message) {
	d.mu.Lock()
	d.queue = append(append([]protocol.Message(nil), rest...), d.queue...)
	d.mu.Unlock()
}

// Len reports the number of queued messages.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
