// Package reconnect decides when the bridge (re)connects. The machine owns
// the connection state and the escalation phase; it never performs I/O.
// Callers feed it ticks and outcomes and carry out the returned actions.
package reconnect

import (
	"sync"
	"time"

	"github.com/gaspardpetit/editorbridge/internal/logx"
)

// DefaultMaxAttempts is the number of consecutive failures after which the
// machine reports that the maximum was reached. The cycle continues.
const DefaultMaxAttempts = 5

// Transition describes one phase change.
type Transition struct {
	From  Phase
	To    Phase
	Cause string
	At    time.Time
}

// Config configures a Machine.
type Config struct {
	Intervals   Intervals
	MaxAttempts int
	// OnTransition observes every phase change.
	OnTransition func(Transition)
	// OnMaxAttempts fires once each time the failure streak reaches MaxAttempts.
	OnMaxAttempts func(Status)
	// OnState observes connection state changes.
	OnState func(from, to ConnectionState)
}

// Machine is the reconnection state machine. It is safe for concurrent use.
type Machine struct {
	cfg Config

	mu           sync.Mutex
	state        ConnectionState
	phase        Phase
	phaseSince   time.Time
	attempts     int
	maxReached   bool
	inFlight     bool
	pendingProbe bool
	probeDead    bool
	// generation counts link losses; probeGen is the generation a running
	// probe was issued against.
	generation uint64
	probeGen   uint64
	shutdown     bool
	lastErr      string
	connectedAt  time.Time
	lastAttempt  time.Time

	notes []func()
}

// New returns an idle machine.
func New(cfg Config) *Machine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Machine{cfg: cfg}
}

// Tick advances time-driven transitions and returns the action to run. At
// most one action is outstanding; until its outcome is reported Tick returns
// ActionNone.
func (m *Machine) Tick(now time.Time) Action {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()

	if m.shutdown || m.inFlight {
		return ActionNone
	}
	switch m.state {
	case Idle:
		m.begin(now)
		m.setState(Connecting)
		return ActionConnect
	case Connecting, Closing:
		return ActionNone
	case Open:
		if m.pendingProbe {
			m.pendingProbe = false
			m.beginProbe(now)
			return ActionProbe
		}
		return ActionNone
	}

	elapsed := now.Sub(m.phaseSince)
	switch m.phase {
	case Dormant:
		if elapsed >= m.cfg.Intervals.For(Dormant) {
			m.enter(LightProbe, now, "tick")
			m.beginProbe(now)
			return ActionProbe
		}
	case LightProbe:
		if m.pendingProbe {
			m.pendingProbe = false
			m.phaseSince = now
			m.beginProbe(now)
			return ActionProbe
		}
		if m.probeDead || elapsed >= m.cfg.Intervals.For(LightProbe) {
			m.probeDead = false
			m.enter(FullReconnect, now, "tick")
			m.begin(now)
			m.setState(Connecting)
			return ActionFullReconnect
		}
	case FullReconnect:
		if elapsed >= m.cfg.Intervals.For(FullReconnect) {
			m.enter(Backoff, now, "tick")
			m.begin(now)
			m.setState(Connecting)
			return ActionRetry
		}
	case Backoff:
		if elapsed >= m.cfg.Intervals.For(Backoff) {
			m.enter(LightProbe, now, "tick")
		}
	}
	return ActionNone
}

// Connected records a successful open or a successful probe. The attempt
// counter resets and the phase returns to Dormant.
func (m *Machine) Connected(now time.Time) {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()
	m.connected(now)
}

func (m *Machine) connected(now time.Time) {
	m.inFlight = false
	if m.shutdown {
		return
	}
	if m.state != Open {
		m.connectedAt = now
	}
	m.attempts = 0
	m.maxReached = false
	m.lastErr = ""
	m.probeDead = false
	m.pendingProbe = false
	m.setState(Open)
	if m.phase != Dormant {
		m.enter(Dormant, now, "connected")
	}
	m.phaseSince = now
}

// AttemptFailed records a failed connect or retry.
func (m *Machine) AttemptFailed(now time.Time, err error) {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()
	m.inFlight = false
	if m.shutdown {
		return
	}
	m.attempts++
	if err != nil {
		m.lastErr = err.Error()
	}
	m.phaseSince = now
	m.setState(Faulted)
	logx.Component("reconnect").Warn().Int("attempt", m.attempts).Str("phase", m.phase.String()).Str("error", m.lastErr).Msg("connect attempt failed")
	if m.attempts >= m.cfg.MaxAttempts && !m.maxReached {
		m.maxReached = true
		st := m.status()
		logx.Component("reconnect").Error().Int("attempts", m.attempts).Msg("max reconnect attempts reached; still retrying")
		if fn := m.cfg.OnMaxAttempts; fn != nil {
			m.notes = append(m.notes, func() { fn(st) })
		}
	}
}

// ProbeResult records the outcome of a light probe. A live probe short
// circuits to Open; a dead one lets the next tick escalate immediately. A
// live result for a link lost after the probe was issued is discarded.
func (m *Machine) ProbeResult(now time.Time, alive bool, err error) {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()
	if alive && m.probeGen == m.generation {
		m.connected(now)
		return
	}
	m.inFlight = false
	if m.shutdown {
		return
	}
	if alive {
		logx.Component("reconnect").Debug().Str("state", m.state.String()).Msg("discarding probe of a lost link")
		return
	}
	if err != nil {
		m.lastErr = err.Error()
	}
	if m.state == Open {
		m.lose(now)
		return
	}
	m.probeDead = true
}

// ConnectionLost records a transport failure. Loss of an open link skips the
// Dormant wait and probes on the next tick.
func (m *Machine) ConnectionLost(now time.Time, err error) {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()
	if err != nil {
		m.lastErr = err.Error()
	}
	if m.shutdown || m.state != Open {
		return
	}
	m.lose(now)
}

func (m *Machine) lose(now time.Time) {
	m.generation++
	m.setState(Faulted)
	m.enter(LightProbe, now, "lost")
	m.pendingProbe = true
	m.probeDead = false
}

// Force jumps to LightProbe with no wait. While open it schedules one
// liveness probe instead.
func (m *Machine) Force(now time.Time, reason string) {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()
	if m.shutdown {
		return
	}
	logx.Component("reconnect").Info().Str("reason", reason).Str("state", m.state.String()).Msg("forced reconnect check")
	m.pendingProbe = true
	if m.state == Open || m.state == Idle {
		return
	}
	m.probeDead = false
	m.enter(LightProbe, now, reason)
}

// ResetAttempts clears the failure streak.
func (m *Machine) ResetAttempts() {
	m.mu.Lock()
	m.attempts = 0
	m.maxReached = false
	m.mu.Unlock()
}

// Disconnected marks an intentional close of an open link that should be
// reopened through the normal cycle.
func (m *Machine) Disconnected(now time.Time) {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()
	if m.shutdown || m.state != Open {
		return
	}
	m.generation++
	m.setState(Closed)
	m.enter(LightProbe, now, "disconnected")
	m.pendingProbe = true
}

// Shutdown stops the machine for good. Tick returns ActionNone afterwards.
func (m *Machine) Shutdown() {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()
	if m.shutdown {
		return
	}
	m.shutdown = true
	m.pendingProbe = false
	if m.state != Closed {
		m.setState(Closing)
		m.setState(Closed)
	}
}

// State returns the connection state.
func (m *Machine) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Status returns a snapshot for status queries.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status()
}

func (m *Machine) status() Status {
	return Status{
		State:       m.state,
		Phase:       m.phase,
		Attempts:    m.attempts,
		MaxAttempts: m.cfg.MaxAttempts,
		MaxReached:  m.maxReached,
		InFlight:    m.inFlight,
		Shutdown:    m.shutdown,
		LastError:   m.lastErr,
		PhaseSince:  m.phaseSince,
		ConnectedAt: m.connectedAt,
		LastAttempt: m.lastAttempt,
	}
}

func (m *Machine) begin(now time.Time) {
	m.inFlight = true
	m.lastAttempt = now
}

func (m *Machine) beginProbe(now time.Time) {
	m.begin(now)
	m.probeGen = m.generation
}

func (m *Machine) enter(p Phase, now time.Time, cause string) {
	from := m.phase
	m.phase = p
	m.phaseSince = now
	logx.Component("reconnect").Debug().Str("from", from.String()).Str("to", p.String()).Str("cause", cause).Msg("reconnect phase")
	if fn := m.cfg.OnTransition; fn != nil {
		tr := Transition{From: from, To: p, Cause: cause, At: now}
		m.notes = append(m.notes, func() { fn(tr) })
	}
}

func (m *Machine) setState(s ConnectionState) {
	from := m.state
	if from == s {
		return
	}
	m.state = s
	logx.Component("reconnect").Info().Str("from", from.String()).Str("to", s.String()).Msg("connection state")
	if fn := m.cfg.OnState; fn != nil {
		m.notes = append(m.notes, func() { fn(from, s) })
	}
}

// flush runs queued observer callbacks outside the lock.
func (m *Machine) flush() {
	m.mu.Lock()
	notes := m.notes
	m.notes = nil
	m.mu.Unlock()
	for _, fn := range notes {
		fn()
	}
}
