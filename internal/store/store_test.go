package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func roundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	if st.LastKnownGoodPort != 0 || st.PreservedConnected {
		t.Fatalf("initial state not empty: %+v", st)
	}
	if _, err := Update(ctx, s, func(st *State) {
		st.LastKnownGoodPort = 8082
		st.PreservedConnected = true
		st.PreservedURL = "ws://localhost:8082"
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	st, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.LastKnownGoodPort != 8082 || !st.PreservedConnected || st.PreservedURL != "ws://localhost:8082" || st.UpdatedAt.IsZero() {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestMemoryStore(t *testing.T) {
	roundTrip(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	roundTrip(t, NewFile(path))
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file missing: %v", err)
	}
}

func TestFileStoreCorruptMovedAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("last_known_good_port: [oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := NewFile(path).Load(context.Background())
	if err != nil || st.LastKnownGoodPort != 0 {
		t.Fatalf("load corrupt: %+v %v", st, err)
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Fatalf("corrupt copy missing: %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	s, err := Open("redis://" + mr.Addr() + "/0?key=bridge:test")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	roundTrip(t, s)
	if !mr.Exists("bridge:test") {
		t.Fatal("expected custom key to be written")
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, key, err := parseRedisURL("rediss://user:pw@h1:6379,h2:6379/3")
	if err != nil {
		t.Fatal(err)
	}
	if opts.DB != 3 || len(opts.Addrs) != 2 || opts.Password != "pw" || opts.TLSConfig == nil || key != DefaultRedisKey {
		t.Fatalf("unexpected options %+v key %q", opts, key)
	}
	opts, _, err = parseRedisURL("redis-sentinel://h:26379/mymaster?db=2&sentinel_password=s")
	if err != nil {
		t.Fatal(err)
	}
	if opts.MasterName != "mymaster" || opts.DB != 2 || opts.SentinelPassword != "s" {
		t.Fatalf("sentinel options %+v", opts)
	}
	if _, _, err := parseRedisURL("redis://h/notanumber"); err == nil {
		t.Fatal("expected invalid db error")
	}
	if _, _, err := parseRedisURL("http://h"); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	if s, err := Open(""); err != nil {
		t.Fatal(err)
	} else if _, ok := s.(*Memory); !ok {
		t.Fatalf("empty url: %T", s)
	}
	dir := t.TempDir()
	s, err := Open("file://" + filepath.ToSlash(filepath.Join(dir, "s.yaml")))
	if err != nil {
		t.Fatal(err)
	}
	f, ok := s.(*File)
	if !ok || filepath.Clean(f.Path()) != filepath.Join(dir, "s.yaml") {
		t.Fatalf("file url: %T %v", s, s)
	}
	if _, err := Open("ftp://x"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}
