package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gaspardpetit/editorbridge/internal/endpoint"
	"github.com/gaspardpetit/editorbridge/internal/lifecycle"
	"github.com/gaspardpetit/editorbridge/internal/store"
)

func newStatusFixture(t *testing.T) (*httptest.Server, *Bridge, *lifecycle.Coordinator) {
	t.Helper()
	st := store.NewMemory()
	b := New(Options{Resolver: endpoint.NewResolver(endpoint.Options{}, st)})
	coord := lifecycle.NewCoordinator(b, st)
	srv := httptest.NewServer(NewStatusHandler(b, coord, "secret", VersionInfo{Version: "v1", BuildSHA: "sha1", BuildDate: "2024-01-01"}))
	t.Cleanup(srv.Close)
	return srv, b, coord
}

func post(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url, nil)
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	return resp
}

func TestStatusHTTP(t *testing.T) {
	srv, _, _ := newStatusFixture(t)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var st map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	conn, _ := st["connection"].(map[string]any)
	if conn["state"] != "idle" || st["url"] != "ws://localhost:8080" || st["restricted_mode"] != false {
		t.Fatalf("unexpected status: %v", st)
	}

	respV, err := http.Get(srv.URL + "/version")
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	defer func() { _ = respV.Body.Close() }()
	var vi VersionInfo
	if err := json.NewDecoder(respV.Body).Decode(&vi); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if vi.Version != "v1" || vi.BuildSHA != "sha1" {
		t.Fatalf("unexpected version info: %+v", vi)
	}
}

func TestControlRequiresToken(t *testing.T) {
	srv, _, _ := newStatusFixture(t)
	if resp := post(t, srv.URL+"/control/reconnect", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/control/reconnect", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/control/reconnect", "secret"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("good token: %d", resp.StatusCode)
	}
}

func TestControlLifecycle(t *testing.T) {
	srv, b, coord := newStatusFixture(t)
	if resp := post(t, srv.URL+"/control/lifecycle/entering-restricted-mode", "secret"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !coord.Restricted() {
		t.Fatal("expected restricted mode")
	}
	if resp := post(t, srv.URL+"/control/lifecycle/reboot", "secret"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown event: %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/control/port/8085", "secret"); resp.StatusCode != http.StatusOK {
		t.Fatalf("port: %d", resp.StatusCode)
	}
	if b.CurrentURL() != "ws://localhost:8085" {
		t.Fatalf("url %s", b.CurrentURL())
	}
	if resp := post(t, srv.URL+"/control/port/99999", "secret"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid port: %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/control/lifecycle/host-shutting-down", "secret"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("shutdown: %d", resp.StatusCode)
	}
	select {
	case <-b.Done():
	default:
		t.Fatal("bridge not shut down")
	}
}

func TestStartStatusServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := store.NewMemory()
	b := New(Options{Resolver: endpoint.NewResolver(endpoint.Options{}, st)})
	addr, err := StartStatusServer(ctx, "127.0.0.1:0", NewStatusHandler(b, lifecycle.NewCoordinator(b, st), "t", VersionInfo{}))
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
}

func TestLoadOrCreateToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "control.token")
	tok, err := LoadOrCreateToken(path)
	if err != nil || len(tok) != 64 {
		t.Fatalf("token %q %v", tok, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 && os.PathSeparator == '/' {
		t.Fatalf("token file mode %v", perm)
	}
	again, err := LoadOrCreateToken(path)
	if err != nil || again != tok {
		t.Fatalf("token not stable: %q %v", again, err)
	}
}
