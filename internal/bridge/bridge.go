// Package bridge keeps one websocket link to the automation server alive and
// routes the server's operations to the host executor.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaspardpetit/editorbridge/internal/correlate"
	"github.com/gaspardpetit/editorbridge/internal/dispatch"
	"github.com/gaspardpetit/editorbridge/internal/endpoint"
	"github.com/gaspardpetit/editorbridge/internal/executor"
	"github.com/gaspardpetit/editorbridge/internal/logx"
	"github.com/gaspardpetit/editorbridge/internal/metrics"
	"github.com/gaspardpetit/editorbridge/internal/ops"
	"github.com/gaspardpetit/editorbridge/internal/protocol"
	"github.com/gaspardpetit/editorbridge/internal/reconnect"
	"github.com/gaspardpetit/editorbridge/internal/transport"
)

// DefaultConnectedMessage is the content of the ping sent after connecting.
const DefaultConnectedMessage = "Unity Editor connected"

// ErrNotConnected is returned by Send while no link is open.
var ErrNotConnected = errors.New("bridge not connected")

// Options configure a Bridge. Resolver is required.
type Options struct {
	Resolver  *endpoint.Resolver
	Registry  *ops.Registry
	Executor  executor.Executor
	Transport transport.Options

	Intervals   reconnect.Intervals
	MaxAttempts int

	TickInterval      time.Duration
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	ProbeTimeout      time.Duration
	OperationTimeout  time.Duration
	FailurePrefixes   []string
	ConnectedMessage  string

	// OnMaxAttempts observes the attempt limit being reached.
	OnMaxAttempts func(reconnect.Status)
}

func (o *Options) defaults() {
	if o.Registry == nil {
		o.Registry = ops.NewRegistry()
	}
	if o.Executor == nil {
		o.Executor = executor.Unavailable
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 100 * time.Millisecond
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 2 * time.Second
	}
	if o.ConnectedMessage == "" {
		o.ConnectedMessage = DefaultConnectedMessage
	}
	if o.Transport.ClientType == "" {
		o.Transport.ClientType = "unity"
	}
}

// Bridge is one bridge instance.
type Bridge struct {
	opts       Options
	machine    *reconnect.Machine
	dispatcher *dispatch.Dispatcher
	correlator *correlate.Correlator

	ctx    context.Context
	cancel context.CancelFunc
	jobs   *jobs

	// attemptMu serializes connect attempts and probes.
	attemptMu sync.Mutex

	mu            sync.Mutex
	conn          *transport.Conn
	lastHeartbeat time.Time

	ops      sync.WaitGroup
	inFlight atomic.Int64

	stopOnce sync.Once
	stopped  chan struct{}
}

var (
	allStates = []string{
		reconnect.Idle.String(), reconnect.Connecting.String(), reconnect.Open.String(),
		reconnect.Closing.String(), reconnect.Closed.String(), reconnect.Faulted.String(),
	}
	allPhases = []string{
		reconnect.Dormant.String(), reconnect.LightProbe.String(),
		reconnect.FullReconnect.String(), reconnect.Backoff.String(),
	}
)

// New builds a bridge. It does nothing until Run is called.
func New(opts Options) *Bridge {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    newJobs(ctx),
		stopped: make(chan struct{}),
	}
	b.machine = reconnect.New(reconnect.Config{
		Intervals:   opts.Intervals,
		MaxAttempts: opts.MaxAttempts,
		OnState: func(_, to reconnect.ConnectionState) {
			metrics.SetConnectionState(to.String(), allStates)
		},
		OnTransition: func(tr reconnect.Transition) {
			metrics.SetReconnectPhase(tr.To.String(), allPhases)
		},
		OnMaxAttempts: func(st reconnect.Status) {
			metrics.RecordMaxAttemptsReached()
			if opts.OnMaxAttempts != nil {
				opts.OnMaxAttempts(st)
			}
		},
	})
	b.dispatcher = dispatch.New(dispatch.HandlerFunc(b.handle))
	b.dispatcher.OnDecodeError = func(error) { metrics.RecordDecodeError() }
	b.correlator = &correlate.Correlator{
		Exec:            opts.Executor,
		Timeout:         opts.OperationTimeout,
		FailurePrefixes: opts.FailurePrefixes,
	}
	return b
}

// Run drives the bridge until ctx ends or Shutdown is called. Each tick
// drains inbound messages and advances the reconnect machine; connect
// attempts run in the background and never block the tick.
func (b *Bridge) Run(ctx context.Context) error {
	t := time.NewTicker(b.opts.TickInterval)
	defer t.Stop()
	defer b.wait()

	b.tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			b.Shutdown("shutdown")
			return nil
		case <-b.stopped:
			return nil
		case now := <-t.C:
			b.tick(now)
		}
	}
}

func (b *Bridge) tick(now time.Time) {
	b.dispatcher.ProcessPending(b.ctx)
	action := b.machine.Tick(now)
	if action == reconnect.ActionNone {
		return
	}
	b.jobs.Start(slotReconnect, func(ctx context.Context) { b.perform(ctx, action) })
}

// perform carries out one machine action and reports its outcome.
func (b *Bridge) perform(ctx context.Context, action reconnect.Action) {
	b.attemptMu.Lock()
	defer b.attemptMu.Unlock()

	log := logx.Component("bridge").With().Str("action", action.String()).Logger()
	switch action {
	case reconnect.ActionProbe:
		alive, err := b.probe(ctx)
		metrics.RecordConnectAttempt(action.String(), alive)
		log.Debug().Bool("alive", alive).Msg("light probe")
		b.machine.ProbeResult(time.Now(), alive, err)
		return
	case reconnect.ActionFullReconnect:
		b.dropConn("full reconnect")
		b.connect(ctx, action, b.opts.Resolver.Current())
	default:
		b.dropConn("reconnect")
		b.connect(ctx, action, b.opts.Resolver.Resolve(ctx))
	}
}

// probe pings the current link. No link, or one that is not open, is dead.
// The machine discards a live result if the link is lost before it is
// reported.
func (b *Bridge) probe(ctx context.Context) (bool, error) {
	c := b.current()
	if c == nil || c.State() != transport.StateOpen {
		return false, ErrNotConnected
	}
	pctx, cancel := context.WithTimeout(ctx, b.opts.ProbeTimeout)
	defer cancel()
	if err := b.sendOn(pctx, c, protocol.NewPing("")); err != nil {
		return false, err
	}
	if b.current() != c {
		return false, ErrNotConnected
	}
	return true, nil
}

func (b *Bridge) connect(ctx context.Context, action reconnect.Action, ep endpoint.EndpointConfig) {
	url := ep.URL()
	log := logx.Component("bridge").With().Str("action", action.String()).Str("url", url).Logger()
	log.Info().Msg("connecting")

	c := transport.New(url, b.opts.Transport)
	octx, cancel := context.WithTimeout(ctx, b.opts.ConnectTimeout)
	err := c.Open(octx)
	cancel()
	if err == nil && ctx.Err() != nil {
		c.Close("cancelled")
		err = ctx.Err()
	}
	metrics.RecordConnectAttempt(action.String(), err == nil)
	if err != nil {
		log.Warn().Err(err).Msg("connect failed")
		b.machine.AttemptFailed(time.Now(), err)
		return
	}

	b.mu.Lock()
	b.conn = c
	b.mu.Unlock()
	b.machine.Connected(time.Now())
	log.Info().Msg("connected")

	b.jobs.Start(slotReceive, func(jctx context.Context) { b.pump(jctx, c) })
	b.jobs.Start(slotHeartbeat, func(jctx context.Context) { b.heartbeat(jctx, c) })
	if err := b.sendOn(ctx, c, protocol.NewPing(b.opts.ConnectedMessage)); err != nil {
		log.Warn().Err(err).Msg("connected ping failed")
		return
	}
	b.opts.Resolver.MarkGood(ctx, ep.Port)
}

// pump feeds inbound frames to the dispatcher until the link ends.
func (b *Bridge) pump(ctx context.Context, c *transport.Conn) {
	events := c.Receive()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case transport.EventFrame:
				metrics.RecordFrameReceived()
				b.dispatcher.OnBytesReceived(ev.Data)
			case transport.EventClosed:
				logx.Component("bridge").Info().Int("code", int(ev.Code)).Str("reason", ev.Reason).Msg("connection closed")
				b.lost(c, &transport.Error{Op: "read", Err: errors.New("closed: " + ev.Reason)})
			case transport.EventError:
				logx.Component("bridge").Warn().Err(ev.Err).Msg("connection error")
				b.lost(c, ev.Err)
			}
		case <-ctx.Done():
			// the stream must still be drained until it closes
			c.Close("cancelled")
			ctx = context.Background()
		}
	}
}

func (b *Bridge) heartbeat(ctx context.Context, c *transport.Conn) {
	t := time.NewTicker(b.opts.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case now := <-t.C:
			if err := b.sendOn(ctx, c, protocol.NewHeartbeat(now)); err != nil {
				logx.Component("bridge").Warn().Err(err).Msg("heartbeat failed")
				b.lost(c, err)
				return
			}
			b.mu.Lock()
			b.lastHeartbeat = now
			b.mu.Unlock()
		}
	}
}

// lost reports a failure of c if it is still the current link.
func (b *Bridge) lost(c *transport.Conn, err error) {
	b.mu.Lock()
	if b.conn != c {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.mu.Unlock()
	c.Close("faulted")
	b.jobs.Cancel(slotHeartbeat)
	b.machine.ConnectionLost(time.Now(), err)
}

// dropConn closes the current link without reporting a failure.
func (b *Bridge) dropConn(reason string) {
	b.mu.Lock()
	c := b.conn
	b.conn = nil
	b.mu.Unlock()
	if c != nil {
		logx.Component("bridge").Debug().Str("reason", reason).Str("url", c.URL()).Msg("disposing transport")
		c.Close(reason)
	}
}

func (b *Bridge) current() *transport.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

// handle runs on the tick goroutine for every drained message.
func (b *Bridge) handle(_ context.Context, msg protocol.Message) {
	metrics.RecordDispatched(msg.Kind.String())
	log := logx.Component("bridge").With().Str("id", msg.ID).Str("type", msg.Type).Logger()
	switch msg.Kind {
	case protocol.KindRequest:
		op, ok := b.opts.Registry.Resolve(msg, time.Now())
		if !ok {
			log.Warn().Msg("request without operation")
			frame := correlate.Correlate(msg.ID, correlate.Result{Content: "Error: missing command"})
			b.spawn(func() { b.reply(b.ctx, frame) })
			return
		}
		b.execute(op)
	case protocol.KindPing:
		// pings name an operation but never reach the executor
		log.Debug().Str("op", b.opts.Registry.Normalize(msg.Type)).Msg("ping")
	case protocol.KindResult:
		log.Debug().Str("content", msg.Content).Msg("result from server")
	default:
		if msg.Type == protocol.TypeError {
			log.Warn().Str("content", msg.Content).Msg("server reported an error")
			return
		}
		log.Debug().Str("content", msg.Content).Msg("status message")
	}
}

// execute runs op in its own goroutine; results of concurrent operations are
// sent in completion order.
func (b *Bridge) execute(op ops.PendingOperation) {
	logx.Component("bridge").Info().Str("id", op.ID).Str("op", op.Type).Msg("operation received")
	b.inFlight.Add(1)
	metrics.OperationStarted()
	b.spawn(func() {
		defer b.inFlight.Add(-1)
		start := time.Now()
		frame := b.correlator.Run(b.ctx, op)
		metrics.OperationCompleted(frame.Data.Success, time.Since(start))
		b.reply(b.ctx, frame)
	})
}

// spawn runs fn off the tick goroutine.
func (b *Bridge) spawn(fn func()) {
	b.ops.Add(1)
	go func() {
		defer b.ops.Done()
		fn()
	}()
}

func (b *Bridge) reply(ctx context.Context, frame protocol.ResultFrame) {
	if err := b.Send(ctx, frame); err != nil {
		logx.Component("bridge").Warn().Err(err).Str("id", frame.ID).Msg("result not delivered")
	}
}

// Send writes one frame on the current link.
func (b *Bridge) Send(ctx context.Context, v any) error {
	c := b.current()
	if c == nil {
		return ErrNotConnected
	}
	return b.sendOn(ctx, c, v)
}

func (b *Bridge) sendOn(ctx context.Context, c *transport.Conn, v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	err = c.Send(ctx, data)
	metrics.RecordFrameSent(frameType(v), err == nil)
	if err != nil {
		b.lost(c, err)
	}
	return err
}

func frameType(v any) string {
	switch f := v.(type) {
	case protocol.ResultFrame:
		return f.Type
	case protocol.Ping:
		return f.Type
	case protocol.Heartbeat:
		return f.Type
	}
	return "other"
}

// IsOpen reports whether a link is open.
func (b *Bridge) IsOpen() bool {
	c := b.current()
	return c != nil && c.State() == transport.StateOpen && b.machine.State() == reconnect.Open
}

// CurrentURL is the URL of the open link, or of the next attempt.
func (b *Bridge) CurrentURL() string {
	if c := b.current(); c != nil {
		return c.URL()
	}
	return b.opts.Resolver.Current().URL()
}

// ForceReconnect skips the remaining wait and probes now.
func (b *Bridge) ForceReconnect(reason string) {
	b.machine.Force(time.Now(), reason)
}

// ResetAttempts clears the failure streak.
func (b *Bridge) ResetAttempts() {
	b.machine.ResetAttempts()
}

// SetPort points the bridge at a new server port. An open link is closed
// and the cycle reconnects to the new port.
func (b *Bridge) SetPort(port int) endpoint.EndpointConfig {
	ep := b.opts.Resolver.SetPort(port)
	if b.current() != nil {
		b.dropConn("port changed")
		b.jobs.Cancel(slotHeartbeat)
		b.machine.Disconnected(time.Now())
	}
	return ep
}

// Shutdown closes the link for good. Run returns afterwards.
func (b *Bridge) Shutdown(reason string) {
	b.stopOnce.Do(func() {
		logx.Component("bridge").Info().Str("reason", reason).Msg("bridge shutting down")
		b.machine.Shutdown()
		b.dropConn(reason)
		b.cancel()
		b.jobs.CancelAll()
		close(b.stopped)
	})
}

// Done is closed once Shutdown has been called.
func (b *Bridge) Done() <-chan struct{} { return b.stopped }

// wait lets background work observe the cancellation and finish.
func (b *Bridge) wait() {
	done := make(chan struct{})
	go func() {
		b.jobs.Wait()
		b.ops.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logx.Component("bridge").Warn().Msg("background work still running at exit")
	}
}

// Status is the bridge status snapshot.
type Status struct {
	Connection    reconnect.Status        `json:"connection"`
	Endpoint      endpoint.EndpointConfig `json:"endpoint"`
	URL           string                  `json:"url"`
	Pending       int                     `json:"pending_messages"`
	Operations    int64                   `json:"operations_in_flight"`
	LastHeartbeat time.Time               `json:"last_heartbeat,omitempty"`
}

// Status returns a snapshot for the status API.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	hb := b.lastHeartbeat
	b.mu.Unlock()
	return Status{
		Connection:    b.machine.Status(),
		Endpoint:      b.opts.Resolver.Current(),
		URL:           b.CurrentURL(),
		Pending:       b.dispatcher.Len(),
		Operations:    b.inFlight.Load(),
		LastHeartbeat: hb,
	}
}
