// Package lifecycle translates host lifecycle events into bridge actions.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gaspardpetit/editorbridge/internal/logx"
	"github.com/gaspardpetit/editorbridge/internal/store"
)

// Event is a host lifecycle event.
type Event int

const (
	HostStarted Event = iota
	HostShuttingDown
	HostEnteringRestrictedMode
	HostLeavingRestrictedMode
	CodeReloadStarting
	CodeReloadCompleted
	ManualReconnect
)

var eventNames = [...]string{
	HostStarted:                "host-started",
	HostShuttingDown:           "host-shutting-down",
	HostEnteringRestrictedMode: "entering-restricted-mode",
	HostLeavingRestrictedMode:  "leaving-restricted-mode",
	CodeReloadStarting:         "code-reload-starting",
	CodeReloadCompleted:        "code-reload-completed",
	ManualReconnect:            "manual-reconnect",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

// ParseEvent accepts the names printed by Event.String, case-insensitively.
func ParseEvent(s string) (Event, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range eventNames {
		if n == s {
			return Event(i), nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle event %q", s)
}

// Target is the bridge as seen by the coordinator.
type Target interface {
	IsOpen() bool
	CurrentURL() string
	// ForceReconnect jumps to an immediate light probe.
	ForceReconnect(reason string)
	ResetAttempts()
	Shutdown(reason string)
}

// Coordinator applies lifecycle events to a Target and preserves connection
// intent across restricted mode and code reloads through a store.
type Coordinator struct {
	target Target
	store  store.Store
	// OnEvent observes every handled event.
	OnEvent func(Event)

	mu         sync.Mutex
	restricted bool
}

// NewCoordinator returns a coordinator for t persisting into st.
func NewCoordinator(t Target, st store.Store) *Coordinator {
	if st == nil {
		st = store.NewMemory()
	}
	return &Coordinator{target: t, store: st}
}

// Restricted reports whether the host is in restricted mode.
func (c *Coordinator) Restricted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restricted
}

// ToggleRestricted enters restricted mode, or leaves it when already in it.
func (c *Coordinator) ToggleRestricted(ctx context.Context) error {
	if c.Restricted() {
		return c.Handle(ctx, HostLeavingRestrictedMode)
	}
	return c.Handle(ctx, HostEnteringRestrictedMode)
}

// Handle applies ev. Store failures are returned after the in-memory effect
// has been applied.
func (c *Coordinator) Handle(ctx context.Context, ev Event) error {
	log := logx.Log.With().Str("event", ev.String()).Logger()
	log.Info().Msg("lifecycle event")
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}

	switch ev {
	case HostStarted:
		var resume bool
		_, err := store.Update(ctx, c.store, func(s *store.State) {
			resume = s.WasConnectedBeforeReload
			s.WasConnectedBeforeReload = false
		})
		if resume {
			c.target.ForceReconnect("host started")
		}
		return err

	case HostShuttingDown:
		c.target.Shutdown("shutdown")
		return nil

	case HostEnteringRestrictedMode:
		c.mu.Lock()
		c.restricted = true
		c.mu.Unlock()
		if !c.target.IsOpen() {
			return nil
		}
		url := c.target.CurrentURL()
		_, err := store.Update(ctx, c.store, func(s *store.State) {
			s.PreservedConnected = true
			s.PreservedURL = url
		})
		log.Debug().Str("url", url).Msg("connection preserved")
		return err

	case HostLeavingRestrictedMode:
		c.mu.Lock()
		c.restricted = false
		c.mu.Unlock()
		var preserved bool
		_, err := store.Update(ctx, c.store, func(s *store.State) {
			preserved = s.PreservedConnected
			s.PreservedConnected = false
			s.PreservedURL = ""
		})
		if preserved {
			c.target.ForceReconnect("leaving restricted mode")
		}
		return err

	case CodeReloadStarting:
		open := c.target.IsOpen()
		_, err := store.Update(ctx, c.store, func(s *store.State) {
			s.WasConnectedBeforeReload = open
		})
		return err

	case CodeReloadCompleted:
		_, err := store.Update(ctx, c.store, func(s *store.State) {
			s.WasConnectedBeforeReload = false
		})
		c.target.ForceReconnect("code reload")
		return err

	case ManualReconnect:
		c.target.ResetAttempts()
		c.target.ForceReconnect("manual reconnect")
		return nil
	}
	return fmt.Errorf("unhandled lifecycle event %s", ev)
}
