// Package endpoint decides which address the bridge connects to and keeps
// peer configuration files pointing at it.
package endpoint

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gaspardpetit/editorbridge/internal/logx"
	"github.com/gaspardpetit/editorbridge/internal/store"
)

// DefaultPort is the well-known port of the automation server.
const DefaultPort = 8080

// ConfigError reports a configuration file that could not be used. It is
// never fatal; the bridge continues with defaults.
type ConfigError struct {
	Path string
	Op   string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// EndpointConfig is the address used by the next connect attempt.
type EndpointConfig struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	LastKnownGoodPort int    `json:"last_known_good_port,omitempty"`
	Secure            bool   `json:"secure,omitempty"`
	Path              string `json:"path,omitempty"`
}

// URL renders the websocket URL.
func (e EndpointConfig) URL() string {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), Path: e.Path}
	if e.Secure {
		u.Scheme = "wss"
	}
	return u.String()
}

// Options configure a Resolver.
type Options struct {
	Host   string
	Port   int
	Secure bool
	Path   string
	// ScanPorts are tried in order when neither the last known good port nor
	// the well-known port answers.
	ScanPorts    []int
	ProbeTimeout time.Duration
}

// Prober reports whether something accepts connections on host:port.
type Prober func(ctx context.Context, host string, port int) bool

// TCPProbe dials host:port and closes the connection straight away.
func TCPProbe(timeout time.Duration) Prober {
	return func(ctx context.Context, host string, port int) bool {
		d := net.Dialer{Timeout: timeout}
		c, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}
}

// Resolver chooses the server port. Live evidence beats static config: a
// server answering on the last known good port wins over the well-known one.
type Resolver struct {
	opts  Options
	store store.Store
	probe Prober

	mu        sync.Mutex
	current   EndpointConfig
	observers []func(int)
}

// NewResolver returns a resolver persisting through st.
func NewResolver(opts Options, st store.Store) *Resolver {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 500 * time.Millisecond
	}
	return &Resolver{
		opts:    opts,
		store:   st,
		probe:   TCPProbe(opts.ProbeTimeout),
		current: EndpointConfig{Host: opts.Host, Port: opts.Port, Secure: opts.Secure, Path: opts.Path},
	}
}

// SetProber replaces the reachability probe.
func (r *Resolver) SetProber(p Prober) {
	r.mu.Lock()
	r.probe = p
	r.mu.Unlock()
}

// OnPortChanged registers fn to run whenever the resolved port changes.
func (r *Resolver) OnPortChanged(fn func(newPort int)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Current returns the endpoint without probing.
func (r *Resolver) Current() EndpointConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Resolve picks the port for the next connect attempt.
func (r *Resolver) Resolve(ctx context.Context) EndpointConfig {
	r.mu.Lock()
	opts, probe := r.opts, r.probe
	r.mu.Unlock()

	st, err := r.store.Load(ctx)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("load endpoint state")
	}
	last := st.LastKnownGoodPort

	port, live := opts.Port, false
	switch {
	case last != 0 && last != opts.Port && probe(ctx, opts.Host, last):
		port, live = last, true
	case probe(ctx, opts.Host, opts.Port):
		live = true
	default:
		for _, p := range opts.ScanPorts {
			if p == opts.Port || p == last {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			if probe(ctx, opts.Host, p) {
				port, live = p, true
				break
			}
		}
	}
	if live && port != last {
		if _, err := store.Update(ctx, r.store, func(s *store.State) { s.LastKnownGoodPort = port }); err != nil {
			logx.Log.Warn().Err(err).Int("port", port).Msg("persist last known good port")
		} else {
			last = port
		}
	}
	logx.Log.Debug().Int("port", port).Int("last_good", last).Bool("live", live).Msg("endpoint resolved")
	return r.set(port, last)
}

// SetPort reconfigures the well-known port at runtime.
func (r *Resolver) SetPort(port int) EndpointConfig {
	r.mu.Lock()
	r.opts.Port = port
	last := r.current.LastKnownGoodPort
	r.mu.Unlock()
	return r.set(port, last)
}

// MarkGood records port as the last port a server was reached on.
func (r *Resolver) MarkGood(ctx context.Context, port int) {
	st, err := r.store.Load(ctx)
	if err == nil && st.LastKnownGoodPort == port {
		return
	}
	if _, err := store.Update(ctx, r.store, func(s *store.State) { s.LastKnownGoodPort = port }); err != nil {
		logx.Log.Warn().Err(err).Int("port", port).Msg("persist last known good port")
		return
	}
	r.mu.Lock()
	r.current.LastKnownGoodPort = port
	r.mu.Unlock()
}

func (r *Resolver) set(port, last int) EndpointConfig {
	r.mu.Lock()
	prev := r.current.Port
	r.current.Port = port
	r.current.LastKnownGoodPort = last
	cur := r.current
	var obs []func(int)
	if prev != port {
		obs = append(obs, r.observers...)
	}
	r.mu.Unlock()
	if prev != port {
		logx.Log.Info().Int("from", prev).Int("to", port).Msg("server port changed")
	}
	for _, fn := range obs {
		fn(port)
	}
	return cur
}
