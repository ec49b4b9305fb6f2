package reconnect

import "time"

// ConnectionState is the bridge's view of the server link.
type ConnectionState int

const (
	Idle ConnectionState = iota
	Connecting
	Open
	Closing
	Closed
	Faulted
)

func (s ConnectionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Faulted:
		return "faulted"
	}
	return "unknown"
}

// MarshalText renders the state by name in status documents.
func (s ConnectionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Phase is the escalation step of the reconnect cycle.
type Phase int

const (
	Dormant Phase = iota
	LightProbe
	FullReconnect
	Backoff
)

func (p Phase) String() string {
	switch p {
	case Dormant:
		return "dormant"
	case LightProbe:
		return "light_probe"
	case FullReconnect:
		return "full_reconnect"
	case Backoff:
		return "backoff"
	}
	return "unknown"
}

// MarshalText renders the phase by name in status documents.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// next is the phase entered when the current one times out.
func (p Phase) next() Phase {
	switch p {
	case Dormant:
		return LightProbe
	case LightProbe:
		return FullReconnect
	case FullReconnect:
		return Backoff
	default:
		return LightProbe
	}
}

// Action is the work a tick asks the bridge to perform.
type Action int

const (
	ActionNone Action = iota
	// ActionConnect is the first connect after start.
	ActionConnect
	// ActionProbe checks whether the existing transport still works.
	ActionProbe
	// ActionFullReconnect disposes the transport and opens a new one.
	ActionFullReconnect
	// ActionRetry re-resolves the endpoint, then opens a new transport.
	ActionRetry
)

func (a Action) String() string {
	switch a {
	case ActionConnect:
		return "connect"
	case ActionProbe:
		return "probe"
	case ActionFullReconnect:
		return "full_reconnect"
	case ActionRetry:
		return "retry"
	}
	return "none"
}

// Intervals holds the wait of each phase before it escalates.
type Intervals struct {
	Dormant       time.Duration
	LightProbe    time.Duration
	FullReconnect time.Duration
	Backoff       time.Duration
}

// DefaultIntervals is the 2s/5s/10s/10s cycle.
var DefaultIntervals = Intervals{
	Dormant:       2 * time.Second,
	LightProbe:    5 * time.Second,
	FullReconnect: 10 * time.Second,
	Backoff:       10 * time.Second,
}

// For returns the wait of phase p. Unset values fall back to the defaults.
func (iv Intervals) For(p Phase) time.Duration {
	var d, def time.Duration
	switch p {
	case Dormant:
		d, def = iv.Dormant, DefaultIntervals.Dormant
	case LightProbe:
		d, def = iv.LightProbe, DefaultIntervals.LightProbe
	case FullReconnect:
		d, def = iv.FullReconnect, DefaultIntervals.FullReconnect
	default:
		d, def = iv.Backoff, DefaultIntervals.Backoff
	}
	if d <= 0 {
		return def
	}
	return d
}

// Status is a snapshot of the machine for status queries.
type Status struct {
	State       ConnectionState `json:"state"`
	Phase       Phase           `json:"phase"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	MaxReached  bool            `json:"max_attempts_reached"`
	InFlight    bool            `json:"in_flight"`
	Shutdown    bool            `json:"shutdown"`
	LastError   string          `json:"last_error,omitempty"`
	PhaseSince  time.Time       `json:"phase_since"`
	ConnectedAt time.Time       `json:"connected_at,omitempty"`
	LastAttempt time.Time       `json:"last_attempt,omitempty"`
}
