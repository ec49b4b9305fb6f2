// Package store persists the small amount of bridge state that must survive
// restarts of the bridge or of the host: the last port a server was seen on
// and whether a connection should be restored after a host transition.
package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// State is the persisted bridge state.
type State struct {
	LastKnownGoodPort        int       `json:"last_known_good_port,omitempty" yaml:"last_known_good_port,omitempty"`
	PreservedConnected       bool      `json:"preserved_connected,omitempty" yaml:"preserved_connected,omitempty"`
	PreservedURL             string    `json:"preserved_url,omitempty" yaml:"preserved_url,omitempty"`
	WasConnectedBeforeReload bool      `json:"was_connected_before_reload,omitempty" yaml:"was_connected_before_reload,omitempty"`
	UpdatedAt                time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store loads and saves State.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
	Close() error
}

// Update applies fn to the stored state and saves the result.
func Update(ctx context.Context, s Store, fn func(*State)) (State, error) {
	st, err := s.Load(ctx)
	if err != nil {
		return st, err
	}
	fn(&st)
	st.UpdatedAt = time.Now().UTC()
	return st, s.Save(ctx, st)
}

// Open returns the store described by rawURL:
//
//	""  or memory://          in-memory, lost on exit
//	file:///path/state.yaml   YAML file (a bare path works too)
//	redis://host:port/db      Redis, also rediss:// and redis-sentinel://
func Open(rawURL string) (Store, error) {
	switch {
	case rawURL == "" || rawURL == "memory://":
		return NewMemory(), nil
	case strings.HasPrefix(rawURL, "redis"):
		return NewRedis(rawURL)
	case strings.HasPrefix(rawURL, "file://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("state store: %w", err)
		}
		path := u.Path
		if u.Host != "" {
			// file://C:/dir on windows parses the drive as host
			path = u.Host + u.Path
		}
		return NewFile(path), nil
	case !strings.Contains(rawURL, "://"):
		return NewFile(rawURL), nil
	}
	return nil, fmt.Errorf("state store: unsupported url %q", rawURL)
}

// Memory keeps state in process memory.
type Memory struct {
	mu sync.Mutex
	st State
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st, nil
}

func (m *Memory) Save(_ context.Context, s State) error {
	m.mu.Lock()
	m.st = s
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
