package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gaspardpetit/editorbridge/internal/store"
)

type fakeTarget struct {
	mu       sync.Mutex
	open     bool
	forced   []string
	resets   int
	shutdown string
}

func (f *fakeTarget) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}
func (f *fakeTarget) CurrentURL() string { return "ws://localhost:8080" }
func (f *fakeTarget) ForceReconnect(reason string) {
	f.mu.Lock()
	f.forced = append(f.forced, reason)
	f.mu.Unlock()
}
func (f *fakeTarget) ResetAttempts() { f.resets++ }
func (f *fakeTarget) Shutdown(reason string) {
	f.mu.Lock()
	f.shutdown = reason
	f.mu.Unlock()
}

func TestParseEvent(t *testing.T) {
	for ev := HostStarted; ev <= ManualReconnect; ev++ {
		got, err := ParseEvent(ev.String())
		if err != nil || got != ev {
			t.Fatalf("%s: %v %v", ev, got, err)
		}
	}
	if got, err := ParseEvent(" Manual-Reconnect "); err != nil || got != ManualReconnect {
		t.Fatalf("case-insensitive parse: %v %v", got, err)
	}
	if _, err := ParseEvent("reboot"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRestrictedModePreservesConnection(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	tg := &fakeTarget{open: true}
	c := NewCoordinator(tg, st)

	if err := c.Handle(ctx, HostEnteringRestrictedMode); err != nil {
		t.Fatal(err)
	}
	s, _ := st.Load(ctx)
	if !s.PreservedConnected || s.PreservedURL != "ws://localhost:8080" || !c.Restricted() {
		t.Fatalf("state %+v", s)
	}
	if tg.shutdown != "" || len(tg.forced) != 0 {
		t.Fatal("entering restricted mode must not close or reconnect")
	}

	if err := c.Handle(ctx, HostLeavingRestrictedMode); err != nil {
		t.Fatal(err)
	}
	s, _ = st.Load(ctx)
	if s.PreservedConnected || c.Restricted() || len(tg.forced) != 1 {
		t.Fatalf("state %+v forced %v", s, tg.forced)
	}
}

func TestRestrictedModeWhileDisconnected(t *testing.T) {
	ctx := context.Background()
	tg := &fakeTarget{}
	c := NewCoordinator(tg, nil)
	_ = c.ToggleRestricted(ctx)
	if !c.Restricted() {
		t.Fatal("expected restricted")
	}
	_ = c.ToggleRestricted(ctx)
	if c.Restricted() || len(tg.forced) != 0 {
		t.Fatalf("nothing preserved, nothing to force: %v", tg.forced)
	}
}

func TestCodeReload(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	tg := &fakeTarget{open: true}
	c := NewCoordinator(tg, st)
	_ = c.Handle(ctx, CodeReloadStarting)
	if s, _ := st.Load(ctx); !s.WasConnectedBeforeReload {
		t.Fatal("reload flag not recorded")
	}

	// a fresh process after the reload resumes the connection
	tg2 := &fakeTarget{}
	c2 := NewCoordinator(tg2, st)
	_ = c2.Handle(ctx, HostStarted)
	if len(tg2.forced) != 1 {
		t.Fatalf("forced %v", tg2.forced)
	}
	_ = c2.Handle(ctx, HostStarted)
	if len(tg2.forced) != 1 {
		t.Fatal("flag must be consumed once")
	}

	_ = c.Handle(ctx, CodeReloadCompleted)
	if len(tg.forced) != 1 || tg.forced[0] != "code reload" {
		t.Fatalf("forced %v", tg.forced)
	}
}

func TestManualReconnectAndShutdown(t *testing.T) {
	ctx := context.Background()
	tg := &fakeTarget{}
	var seen []Event
	c := NewCoordinator(tg, nil)
	c.OnEvent = func(e Event) { seen = append(seen, e) }
	_ = c.Handle(ctx, ManualReconnect)
	_ = c.Handle(ctx, HostShuttingDown)
	if tg.resets != 1 || len(tg.forced) != 1 || tg.shutdown != "shutdown" {
		t.Fatalf("target %+v", tg)
	}
	if len(seen) != 2 || seen[1] != HostShuttingDown {
		t.Fatalf("events %v", seen)
	}
}

func TestWatchHost(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	orig := pidExists
	defer func() { pidExists = orig }()
	pidExists = func(context.Context, int32) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return calls < 3, nil
	}
	tg := &fakeTarget{}
	c := NewCoordinator(tg, nil)
	done := make(chan struct{})
	go func() {
		WatchHost(context.Background(), 1234, time.Millisecond, c)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not notice the exit")
	}
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.shutdown != "shutdown" {
		t.Fatal("expected shutdown")
	}
}

func TestWatchHostNoPID(t *testing.T) {
	WatchHost(context.Background(), 0, 0, NewCoordinator(&fakeTarget{}, nil))
}
