package ops

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gaspardpetit/editorbridge/internal/protocol"
)

func TestNormalizeKnownAliases(t *testing.T) {
	r := NewRegistry()
	cases := map[string]string{
		"set_transform":                 "SET_TRANSFORM",
		"unity_set_transform":           "SET_TRANSFORM",
		"update_gameobject":             "UPDATE_GAMEOBJECT",
		"unity_list_project_assets":     "LIST_ASSETS",
		"find_gameobjects_by_component": "FIND_BY_COMPONENT",
		"unity_run_tests":               "RUN_UNITY_TESTS",
		"undo":                          "UNDO",
		"get_history":                   "GET_HISTORY",
		"  create_ui ":                  "CREATE_UI",
		"Setup_Camera":                  "SETUP_CAMERA",
	}
	for in, want := range cases {
		if got := r.Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q want %q", in, got, want)
		}
	}
}

func TestNormalizeUnknownFallsBackToUpper(t *testing.T) {
	r := NewRegistry()
	if got := r.Normalize("foo_bar"); got != "FOO_BAR" {
		t.Fatalf("got %q", got)
	}
	if r.Known("foo_bar") {
		t.Fatal("foo_bar should not be known")
	}
}

func TestRegisterOverrides(t *testing.T) {
	r := NewRegistry()
	n := r.Len()
	r.RegisterAll(map[string]string{"spawn": "create_gameobject", "": "X"})
	if r.Len() != n+1 {
		t.Fatalf("len %d want %d", r.Len(), n+1)
	}
	if got := r.Normalize("spawn"); got != "CREATE_GAMEOBJECT" {
		t.Fatalf("got %q", got)
	}
	found := false
	for _, typ := range r.Types() {
		if typ == "CREATE_GAMEOBJECT" {
			found = true
		}
	}
	if !found {
		t.Fatal("Types missing CREATE_GAMEOBJECT")
	}
}

func TestNormalizeParameters(t *testing.T) {
	in := map[string]any{
		"position":    map[string]any{"x": json.Number("1"), "y": json.Number("2"), "z": json.Number("3")},
		"size":        map[string]any{"x": 1.5, "y": 2},
		"color":       map[string]any{"r": json.Number("0.5"), "g": json.Number("0"), "b": json.Number("1")},
		"tint":        map[string]any{"r": 1, "g": 1, "b": 1, "a": 0.25},
		"mixed":       map[string]any{"x": "left", "y": json.Number("2"), "z": json.Number("3")},
		"settings":    map[string]any{"mode": "fast", "level": json.Number("3")},
		"tags":        []any{"a", "b"},
		"enabled":     true,
		"name":        "Cube",
		"count":       json.Number("12"),
		"nothing":     nil,
		"operationId": "op-1",
	}
	got := NormalizeParameters(in)
	want := map[string]string{
		"position": "1,2,3",
		"size":     "1.5,2",
		"color":    "0.5,0,1",
		"tint":     "1,1,1,0.25",
		"mixed":    `{"x":"left","y":2,"z":3}`,
		"settings": `{"level":3,"mode":"fast"}`,
		"tags":     `["a","b"]`,
		"enabled":  "true",
		"name":     "Cube",
		"count":    "12",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: got %q want %q", k, got[k], v)
		}
	}
}

func TestResolve(t *testing.T) {
	r := NewRegistry()
	now := time.Unix(100, 0)
	msg, err := protocol.Decode([]byte(`{"type":"tool_call","id":"q1","tool":"unity_set_transform","parameters":{"position":{"x":1,"y":2,"z":3}}}`))
	if err != nil {
		t.Fatal(err)
	}
	op, ok := r.Resolve(msg, now)
	if !ok {
		t.Fatal("expected operation")
	}
	if op.ID != "q1" || op.Type != "SET_TRANSFORM" || op.Parameters["position"] != "1,2,3" || !op.ReceivedAt.Equal(now) {
		t.Fatalf("unexpected %+v", op)
	}

	ping, _ := protocol.Decode([]byte(`{"type":"ping","id":"t1"}`))
	if _, ok := r.Resolve(ping, now); ok {
		t.Fatal("ping must not resolve to an operation")
	}
	empty, _ := protocol.Decode([]byte(`{"type":"unity_operation","id":"e1"}`))
	if _, ok := r.Resolve(empty, now); ok {
		t.Fatal("request without operation must not resolve")
	}
}
