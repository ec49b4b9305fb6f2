// Package transport owns a single duplex websocket connection to the
// automation server.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

var (
	// ErrDisposed is returned by Open on a connection that was closed. A
	// closed Conn is never reused; build a new one.
	ErrDisposed = errors.New("transport disposed")
	// ErrNotOpen is returned by Send when no connection is established.
	ErrNotOpen = errors.New("transport not open")
	// ErrBusy is returned by Open while another Open is dialing.
	ErrBusy = errors.New("transport open in progress")
)

// ClientTypeHeader identifies the bridge to the server during the handshake.
const ClientTypeHeader = "x-client-type"

// Error wraps a transport level failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "transport " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// State is the lifecycle of one Conn.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// EventKind tags receive stream events.
type EventKind int

const (
	EventFrame EventKind = iota
	EventClosed
	EventError
)

// Event is one item of the receive stream. Closed and Error are terminal.
type Event struct {
	Kind   EventKind
	Data   []byte
	Err    error
	Code   websocket.StatusCode
	Reason string
}

// Options configure a Conn.
type Options struct {
	ClientType     string
	Header         http.Header
	HTTPClient     *http.Client
	ConnectTimeout time.Duration
	// ReadLimit bounds one assembled message; 0 means 16 MiB, negative
	// disables the limit.
	ReadLimit int64
	// CloseGrace bounds the close handshake before the socket is dropped.
	CloseGrace time.Duration
}

const (
	defaultReadLimit  = 16 << 20
	defaultCloseGrace = 250 * time.Millisecond
	readChunk         = 32 << 10
)

// Conn is a single websocket connection. Receive must be drained until the
// channel is closed.
type Conn struct {
	url  string
	opts Options

	mu      sync.Mutex
	state   State
	ws      *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closing bool
	reason  string
	fault   error

	events chan Event
	done   chan struct{}
}

// New returns an idle connection to url.
func New(url string, opts Options) *Conn {
	if opts.ReadLimit == 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = defaultCloseGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		url:    url,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Dial is New followed by Open.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	c := New(url, opts)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// URL returns the endpoint this connection targets.
func (c *Conn) URL() string { return c.url }

// State reports the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Receive returns the stream of complete frames followed by one terminal
// event. The channel is closed after the terminal event.
func (c *Conn) Receive() <-chan Event { return c.events }

// Done is closed once the connection is fully torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Open dials the server. Opening an open connection is a no-op.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateOpen:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.mu.Unlock()
		return ErrBusy
	case StateClosing, StateClosed:
		c.mu.Unlock()
		return ErrDisposed
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}
	header := http.Header{}
	for k, v := range c.opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if c.opts.ClientType != "" {
		header.Set(ClientTypeHeader, c.opts.ClientType)
	}
	ws, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: header, HTTPClient: c.opts.HTTPClient})
	if err != nil {
		c.dispose()
		return &Error{Op: "dial", Err: err}
	}
	if c.opts.ReadLimit > 0 {
		// the assembler enforces the real limit across fragments
		ws.SetReadLimit(c.opts.ReadLimit + 1)
	} else {
		ws.SetReadLimit(-1)
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		_ = ws.CloseNow()
		return ErrDisposed
	}
	c.ws = ws
	c.state = StateOpen
	c.started = true
	c.mu.Unlock()

	go c.readLoop(ws)
	return nil
}

// Send writes one text message.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	ws, state := c.ws, c.state
	c.mu.Unlock()
	if state != StateOpen || ws == nil {
		return ErrNotOpen
	}
	ctx, cancel := mergeCancel(ctx, c.ctx)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		terr := &Error{Op: "write", Err: err}
		c.faulted(terr)
		return terr
	}
	return nil
}

// Close shuts the connection down and cancels pending reads and writes. The
// connection cannot be reopened.
func (c *Conn) Close(reason string) {
	c.mu.Lock()
	if c.closing || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.reason = reason
	ws := c.ws
	if ws == nil {
		// never opened, or dial still in flight
		c.mu.Unlock()
		c.dispose()
		return
	}
	c.state = StateClosing
	c.mu.Unlock()

	closed := make(chan struct{})
	go func() {
		_ = ws.Close(websocket.StatusNormalClosure, reason)
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(c.opts.CloseGrace):
	}
	c.cancel()
	_ = ws.CloseNow()
}

// faulted records err and drops the socket so the read loop reports it.
func (c *Conn) faulted(err error) {
	c.mu.Lock()
	if c.fault == nil && !c.closing {
		c.fault = err
	}
	ws := c.ws
	c.mu.Unlock()
	c.cancel()
	if ws != nil {
		_ = ws.CloseNow()
	}
}

// dispose marks a connection that never started its read loop as closed.
func (c *Conn) dispose() {
	c.mu.Lock()
	if c.state == StateClosed || c.started {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()
	c.cancel()
	close(c.events)
	close(c.done)
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	defer close(c.done)
	defer close(c.events)

	asm := NewAssembler(c.opts.ReadLimit)
	buf := make([]byte, readChunk)
	for {
		frame, err := c.readMessage(ws, asm, buf)
		if err != nil {
			c.terminate(ws, err)
			return
		}
		select {
		case c.events <- Event{Kind: EventFrame, Data: frame}:
		case <-c.ctx.Done():
			c.terminate(ws, c.ctx.Err())
			return
		}
	}
}

func (c *Conn) readMessage(ws *websocket.Conn, asm *Assembler, buf []byte) ([]byte, error) {
	_, r, err := ws.Reader(c.ctx)
	if err != nil {
		return nil, err
	}
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := asm.Write(buf[:n], false); err != nil {
				return nil, err
			}
		}
		if errors.Is(rerr, io.EOF) {
			return asm.Write(nil, true)
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}

// terminate emits the single terminal event and releases the socket.
func (c *Conn) terminate(ws *websocket.Conn, err error) {
	c.mu.Lock()
	closing, reason, fault := c.closing, c.reason, c.fault
	c.state = StateClosed
	c.mu.Unlock()
	c.cancel()
	_ = ws.CloseNow()

	var ev Event
	switch {
	case closing:
		ev = Event{Kind: EventClosed, Code: websocket.StatusNormalClosure, Reason: reason}
	case fault != nil:
		ev = Event{Kind: EventError, Err: fault}
	case websocket.CloseStatus(err) != -1:
		var ce websocket.CloseError
		errors.As(err, &ce)
		ev = Event{Kind: EventClosed, Code: ce.Code, Reason: ce.Reason}
	default:
		ev = Event{Kind: EventError, Err: &Error{Op: "read", Err: err}}
	}
	c.events <- ev
}

// mergeCancel returns a context cancelled when either parent is.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// String implements fmt.Stringer for logging.
func (c *Conn) String() string {
	return fmt.Sprintf("%s (%s)", c.url, c.State())
}
