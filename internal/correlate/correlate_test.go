package correlate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gaspardpetit/editorbridge/internal/executor"
	"github.com/gaspardpetit/editorbridge/internal/ops"
)

func TestCorrelatePlainText(t *testing.T) {
	f := Correlate("r1", Result{Success: true, Content: "Created Cube"})
	b, _ := json.Marshal(f)
	want := `{"type":"operation_result","id":"r1","content":"Created Cube","data":{"success":true}}`
	if string(b) != want {
		t.Fatalf("got %s", b)
	}
}

func TestCorrelateStructured(t *testing.T) {
	f := Correlate("r2", Result{Success: true, Content: "  {\"objects\": [1, 2]}\n"})
	if f.Content != StructuredPlaceholder || string(f.Data.Result) != `{"objects":[1,2]}` {
		t.Fatalf("got %+v %s", f, f.Data.Result)
	}
	f = Correlate("r3", Result{Success: true, Content: "[broken"})
	if f.Content != "[broken" || f.Data.Result != nil {
		t.Fatalf("invalid JSON must stay verbatim: %+v", f)
	}
}

func op(id, typ string) ops.PendingOperation {
	return ops.PendingOperation{ID: id, Type: typ, Parameters: map[string]string{}}
}

func TestRunOutcomes(t *testing.T) {
	cases := map[string]struct {
		exec    executor.Func
		success bool
		content string
	}{
		"ok": {
			exec:    func(context.Context, string, map[string]string) (string, error) { return "done", nil },
			success: true, content: "done",
		},
		"error prefix": {
			exec:    func(context.Context, string, map[string]string) (string, error) { return "Error: no selection", nil },
			content: "Error: no selection",
		},
		"failed prefix": {
			exec:    func(context.Context, string, map[string]string) (string, error) { return " Failed: compile", nil },
			content: " Failed: compile",
		},
		"executor error": {
			exec:    func(context.Context, string, map[string]string) (string, error) { return "", errors.New("boom") },
			content: "Error: boom",
		},
		"panic": {
			exec:    func(context.Context, string, map[string]string) (string, error) { panic("kaboom") },
			content: "Error: kaboom",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := &Correlator{Exec: tc.exec}
			f := c.Run(context.Background(), op("id-"+name, "UNDO"))
			if f.ID != "id-"+name || f.Data.Success != tc.success || f.Content != tc.content {
				t.Fatalf("got %+v", f)
			}
		})
	}
}

func TestRunTimeout(t *testing.T) {
	c := &Correlator{
		Timeout: 10 * time.Millisecond,
		Exec: executor.Func(func(ctx context.Context, _ string, _ map[string]string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
	}
	f := c.Run(context.Background(), op("slow", "RUN_UNITY_TESTS"))
	if f.Data.Success || !strings.Contains(f.Content, "timed out") {
		t.Fatalf("got %+v", f)
	}
}

func TestRunWithoutExecutor(t *testing.T) {
	var c Correlator
	f := c.Run(context.Background(), op("x", "UNDO"))
	if f.Data.Success || !strings.HasPrefix(f.Content, "Error:") {
		t.Fatalf("got %+v", f)
	}
}

func TestCustomFailurePrefixes(t *testing.T) {
	c := &Correlator{
		FailurePrefixes: []string{"ERR"},
		Exec:            executor.Func(func(context.Context, string, map[string]string) (string, error) { return "Error: ignored", nil }),
	}
	if f := c.Run(context.Background(), op("p", "UNDO")); !f.Data.Success {
		t.Fatalf("custom prefixes replace the defaults: %+v", f)
	}
}
