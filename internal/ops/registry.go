// Package ops maps the server's open vocabulary of operation names onto the
// host's internal operation types and flattens parameters for the executor.
package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gaspardpetit/editorbridge/internal/protocol"
)

// DefaultToolPrefix is the prefix carried by tool-style operation names.
const DefaultToolPrefix = "unity_"

// PendingOperation is a request ready for the executor.
type PendingOperation struct {
	ID         string
	Type       string
	Parameters map[string]string
	ReceivedAt time.Time
}

// Registry resolves external operation names. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	aliases map[string]string
}

// NewRegistry returns a registry holding the built-in alias table.
func NewRegistry() *Registry {
	r := &Registry{aliases: make(map[string]string, 2*len(builtinTypes)+len(irregularAliases))}
	for _, t := range builtinTypes {
		lower := strings.ToLower(t)
		r.aliases[lower] = t
		r.aliases[DefaultToolPrefix+lower] = t
	}
	for alias, t := range irregularAliases {
		r.aliases[alias] = t
	}
	return r
}

// Register adds or replaces an alias.
func (r *Registry) Register(alias, opType string) {
	alias = strings.TrimSpace(alias)
	if alias == "" || opType == "" {
		return
	}
	r.mu.Lock()
	r.aliases[alias] = strings.ToUpper(opType)
	r.mu.Unlock()
}

// RegisterAll adds every alias of m.
func (r *Registry) RegisterAll(m map[string]string) {
	for alias, t := range m {
		r.Register(alias, t)
	}
}

// Len reports the number of known aliases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.aliases)
}

// Known reports whether name has an explicit mapping.
func (r *Registry) Known(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Types returns the sorted set of internal types reachable through aliases.
func (r *Registry) Types() []string {
	r.mu.RLock()
	seen := make(map[string]struct{}, len(r.aliases))
	for _, t := range r.aliases {
		seen[t] = struct{}{}
	}
	r.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(name string) (string, bool) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.aliases[name]; ok {
		return t, true
	}
	t, ok := r.aliases[strings.ToLower(name)]
	return t, ok
}

// Normalize returns the internal type for name. Unknown names are forwarded
// upper-cased so the executor decides whether they are actionable.
func (r *Registry) Normalize(name string) string {
	if t, ok := r.lookup(name); ok {
		return t
	}
	return strings.ToUpper(strings.TrimSpace(name))
}

// Resolve turns a request message into a pending operation. It reports false
// for messages that carry no operation.
func (r *Registry) Resolve(msg protocol.Message, now time.Time) (PendingOperation, bool) {
	if msg.Kind != protocol.KindRequest || strings.TrimSpace(msg.Operation) == "" {
		return PendingOperation{}, false
	}
	return PendingOperation{
		ID:         msg.ID,
		Type:       r.Normalize(msg.Operation),
		Parameters: NormalizeParameters(msg.Payload),
		ReceivedAt: now,
	}, true
}

// NormalizeParameters flattens a structured payload into string values.
// Vectors ({x,y,z}, {x,y}) and colors ({r,g,b}, {r,g,b,a}) with numeric
// members become comma joined strings. Other objects and arrays become
// compact JSON. Nulls and the operationId bookkeeping key are dropped.
func NormalizeParameters(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == protocol.OperationIDKey || v == nil {
			continue
		}
		out[k] = Stringify(v)
	}
	return out
}

var compositeShapes = [][]string{
	{"x", "y", "z"},
	{"x", "y"},
	{"r", "g", "b"},
	{"r", "g", "b", "a"},
}

// Stringify renders one parameter value.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	case map[string]any:
		if s, ok := flatten(t); ok {
			return s
		}
	}
	return compactJSON(v)
}

func flatten(obj map[string]any) (string, bool) {
	for _, shape := range compositeShapes {
		if len(obj) != len(shape) {
			continue
		}
		parts := make([]string, 0, len(shape))
		for _, key := range shape {
			n, ok := numberText(obj[key])
			if !ok {
				break
			}
			parts = append(parts, n)
		}
		if len(parts) == len(shape) {
			return strings.Join(parts, ","), true
		}
	}
	return "", false
}

func numberText(v any) (string, bool) {
	switch t := v.(type) {
	case json.Number:
		return t.String(), true
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Stringify(t), true
	}
	return "", false
}

func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
