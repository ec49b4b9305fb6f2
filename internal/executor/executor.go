// Package executor runs normalized operations against the host.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gaspardpetit/editorbridge/internal/config"
)

// Executor performs one operation and returns its textual result.
//
// The bridge calls Execute from a new goroutine per request, so several
// calls may overlap. Implementations that touch host state which must only
// be used from one controlled context are wrapped in Serialized, which
// FromConfig does unless serialization is disabled.
type Executor interface {
	Execute(ctx context.Context, opType string, params map[string]string) (string, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, opType string, params map[string]string) (string, error)

func (f Func) Execute(ctx context.Context, opType string, params map[string]string) (string, error) {
	return f(ctx, opType, params)
}

// Error reports a failed operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// ErrUnavailable is returned when no executor is configured.
var ErrUnavailable = errors.New("no operation executor configured")

// Unavailable rejects every operation.
var Unavailable = Func(func(_ context.Context, opType string, _ map[string]string) (string, error) {
	return "", &Error{Op: opType, Err: ErrUnavailable}
})

// ErrClosed is returned by a Serialized executor after Close.
var ErrClosed = errors.New("executor closed")

type job struct {
	ctx    context.Context
	opType string
	params map[string]string
	reply  chan result
}

type result struct {
	out string
	err error
}

// Serialized runs every operation on one goroutine, in submission order.
// It stands in for a host whose state may only be touched from a single
// controlled context.
type Serialized struct {
	inner Executor
	jobs  chan job
	done  chan struct{}
	once  sync.Once
}

// NewSerialized starts the worker goroutine. backlog bounds queued jobs.
func NewSerialized(inner Executor, backlog int) *Serialized {
	if backlog <= 0 {
		backlog = 64
	}
	s := &Serialized{inner: inner, jobs: make(chan job, backlog), done: make(chan struct{})}
	go s.run()
	return s
}

func (s *Serialized) run() {
	for {
		select {
		case j := <-s.jobs:
			if j.ctx.Err() != nil {
				j.reply <- result{err: j.ctx.Err()}
				continue
			}
			out, err := s.inner.Execute(j.ctx, j.opType, j.params)
			j.reply <- result{out: out, err: err}
		case <-s.done:
			return
		}
	}
}

func (s *Serialized) Execute(ctx context.Context, opType string, params map[string]string) (string, error) {
	j := job{ctx: ctx, opType: opType, params: params, reply: make(chan result, 1)}
	select {
	case s.jobs <- j:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	}
	select {
	case r := <-j.reply:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	}
}

// Close stops the worker and the wrapped executor when it is closable.
func (s *Serialized) Close() error {
	s.once.Do(func() { close(s.done) })
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FromConfig builds the executor selected by cfg. The returned closer
// releases its resources.
func FromConfig(ctx context.Context, cfg config.ExecutorConfig) (Executor, io.Closer, error) {
	var (
		ex  Executor
		err error
	)
	switch cfg.Kind {
	case "", "none":
		ex = Unavailable
	case "mcp-stdio":
		m := NewMCPStdio(cfg.Command, cfg.Args, nil, cfg.ToolPrefix)
		err = m.Start(ctx)
		ex = m
	case "mcp-http":
		var m *MCP
		if m, err = NewMCPHTTP(cfg.URL, cfg.ToolPrefix, cfg.Timeout); err == nil {
			err = m.Start(ctx)
		}
		ex = m
	case "http":
		ex = NewHTTP(cfg.URL, cfg.Timeout)
	default:
		return nil, nil, fmt.Errorf("unknown executor %q", cfg.Kind)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("start %s executor: %w", cfg.Kind, err)
	}
	if cfg.Serialize {
		s := NewSerialized(ex, 0)
		return s, s, nil
	}
	if c, ok := ex.(io.Closer); ok {
		return ex, c, nil
	}
	return ex, nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func clientTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}
