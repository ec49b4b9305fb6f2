// Package correlate turns executor outcomes into result frames addressed to
// the originating request.
package correlate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gaspardpetit/editorbridge/internal/executor"
	"github.com/gaspardpetit/editorbridge/internal/logx"
	"github.com/gaspardpetit/editorbridge/internal/ops"
	"github.com/gaspardpetit/editorbridge/internal/protocol"
)

// StructuredPlaceholder is the display text of a structured result.
const StructuredPlaceholder = "Structured result"

// DefaultFailurePrefixes mark executor output that reports a failure.
var DefaultFailurePrefixes = []string{"Error:", "Failed:"}

// Result is what an executor produced for one operation.
type Result struct {
	Success bool
	Content string
}

// Correlate builds the frame answering request id.
func Correlate(id string, r Result) protocol.ResultFrame {
	frame := protocol.ResultFrame{
		Type:    protocol.TypeOperationResult,
		ID:      id,
		Content: r.Content,
		Data:    protocol.ResultData{Success: r.Success},
	}
	if raw, ok := structured(r.Content); ok {
		frame.Content = StructuredPlaceholder
		frame.Data.Result = raw
	}
	return frame
}

func structured(content string) (json.RawMessage, bool) {
	s := strings.TrimSpace(content)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// Correlator runs operations and always yields one frame per operation.
type Correlator struct {
	Exec executor.Executor
	// Timeout bounds one execution; zero disables it.
	Timeout         time.Duration
	FailurePrefixes []string
}

// Run executes op and correlates the outcome. Executor errors and panics are
// reported as failed results.
func (c *Correlator) Run(ctx context.Context, op ops.PendingOperation) (frame protocol.ResultFrame) {
	log := logx.Log.With().Str("id", op.ID).Str("op", op.Type).Logger()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("executor panicked")
			frame = Correlate(op.ID, Result{Content: fmt.Sprintf("Error: %v", p)})
		}
	}()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	exec := c.Exec
	if exec == nil {
		exec = executor.Unavailable
	}
	start := time.Now()
	out, err := exec.Execute(ctx, op.Type, op.Parameters)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && c.Timeout > 0 {
			err = fmt.Errorf("timed out after %s: %w", c.Timeout, err)
		}
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("operation failed")
		return Correlate(op.ID, Result{Content: "Error: " + err.Error()})
	}
	success := !c.isFailure(out)
	log.Debug().Bool("success", success).Dur("elapsed", time.Since(start)).Msg("operation finished")
	return Correlate(op.ID, Result{Success: success, Content: out})
}

func (c *Correlator) isFailure(out string) bool {
	prefixes := c.FailurePrefixes
	if prefixes == nil {
		prefixes = DefaultFailurePrefixes
	}
	s := strings.TrimSpace(out)
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
