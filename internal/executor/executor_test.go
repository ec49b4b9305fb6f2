package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gaspardpetit/editorbridge/internal/config"
)

func TestUnavailable(t *testing.T) {
	_, err := Unavailable.Execute(context.Background(), "UNDO", nil)
	var xerr *Error
	if !errors.As(err, &xerr) || xerr.Op != "UNDO" || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("unexpected %v", err)
	}
}

func TestSerializedRunsOneAtATime(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	var order []string
	inner := Func(func(_ context.Context, op string, _ map[string]string) (string, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		order = append(order, op)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return "ok " + op, nil
	})
	s := NewSerialized(inner, 4)
	defer func() { _ = s.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.Execute(context.Background(), "UNDO", nil)
			if err != nil || out != "ok UNDO" {
				t.Errorf("got %q %v", out, err)
			}
		}()
	}
	wg.Wait()
	if peak != 1 || len(order) != 10 {
		t.Fatalf("peak %d runs %d", peak, len(order))
	}
}

func TestSerializedClosed(t *testing.T) {
	s := NewSerialized(Func(func(context.Context, string, map[string]string) (string, error) { return "", nil }), 1)
	_ = s.Close()
	_ = s.Close()
	if _, err := s.Execute(context.Background(), "UNDO", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestHTTPExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Type {
		case "GET_SCENE_INFO":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"content":"scene Main"}`))
		case "SET_TRANSFORM":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":false,"error":"object not found"}`))
		case "UNDO":
			_, _ = w.Write([]byte("undone " + req.Parameters["steps"]))
		default:
			http.Error(w, "unknown", http.StatusNotFound)
		}
	}))
	defer srv.Close()
	h := NewHTTP(srv.URL, time.Second)
	ctx := context.Background()

	if out, err := h.Execute(ctx, "GET_SCENE_INFO", nil); err != nil || out != "scene Main" {
		t.Fatalf("json reply: %q %v", out, err)
	}
	if out, err := h.Execute(ctx, "UNDO", map[string]string{"steps": "2"}); err != nil || out != "undone 2" {
		t.Fatalf("text reply: %q %v", out, err)
	}
	if _, err := h.Execute(ctx, "SET_TRANSFORM", nil); err == nil || !strings.Contains(err.Error(), "object not found") {
		t.Fatalf("expected failure reply to be an error, got %v", err)
	}
	if _, err := h.Execute(ctx, "NOPE", nil); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func startMCPServer(t *testing.T) string {
	t.Helper()
	s := server.NewMCPServer("editor", "1.0", server.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool("unity_create_gameobject", mcp.WithString("name")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, _ := req.RequireString("name")
		return mcp.NewToolResultText("created " + name), nil
	})
	s.AddTool(mcp.NewTool("unity_delete_gameobject"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("Error: nothing selected"), nil
	})
	srv := server.NewTestStreamableHTTPServer(s)
	t.Cleanup(srv.Close)
	return srv.URL + "/mcp"
}

func TestMCPExecutor(t *testing.T) {
	url := startMCPServer(t)
	m, err := NewMCPHTTP(url, "", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = m.Close() }()
	if m.Protocol() == "" {
		t.Fatal("protocol not negotiated")
	}

	out, err := m.Execute(ctx, "CREATE_GAMEOBJECT", map[string]string{"name": "Cube"})
	if err != nil || out != "created Cube" {
		t.Fatalf("got %q %v", out, err)
	}
	if _, err := m.Execute(ctx, "DELETE_GAMEOBJECT", nil); err == nil || !strings.Contains(err.Error(), "nothing selected") {
		t.Fatalf("expected tool error, got %v", err)
	}
	if _, err := m.Execute(ctx, "NO_SUCH_TOOL", nil); err == nil {
		t.Fatal("expected unknown tool to fail")
	}
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()
	ex, closer, err := FromConfig(ctx, config.ExecutorConfig{Kind: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Execute(ctx, "UNDO", nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	_ = closer.Close()

	url := startMCPServer(t)
	ex, closer, err = FromConfig(ctx, config.ExecutorConfig{Kind: "mcp-http", URL: url, Serialize: true, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = closer.Close() }()
	if _, ok := ex.(*Serialized); !ok {
		t.Fatalf("expected serialized wrapper, got %T", ex)
	}
	if out, err := ex.Execute(ctx, "CREATE_GAMEOBJECT", map[string]string{"name": "Light"}); err != nil || out != "created Light" {
		t.Fatalf("got %q %v", out, err)
	}

	if _, _, err := FromConfig(ctx, config.ExecutorConfig{Kind: "carrier-pigeon"}); err == nil {
		t.Fatal("expected unknown kind error")
	}
}
