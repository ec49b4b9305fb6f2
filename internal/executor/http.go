package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTP posts operations to an endpoint exposed by the host.
//
// Request body: {"type": "SET_TRANSFORM", "parameters": {...}}.
// A JSON reply of the form {"success": bool, "content": any, "error": string}
// is interpreted; any other reply body is the result text.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP returns an executor posting to url.
func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{url: url, client: &http.Client{Timeout: clientTimeout(timeout)}}
}

type httpRequest struct {
	Type       string            `json:"type"`
	Parameters map[string]string `json:"parameters"`
}

type httpReply struct {
	Success *bool           `json:"success"`
	Content json.RawMessage `json:"content"`
	Error   string          `json:"error"`
}

func (h *HTTP) Execute(ctx context.Context, opType string, params map[string]string) (string, error) {
	payload, err := json.Marshal(httpRequest{Type: opType, Parameters: params})
	if err != nil {
		return "", &Error{Op: opType, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Op: opType, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return "", &Error{Op: opType, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Op: opType, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &Error{Op: opType, Err: fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(body)))}
	}

	var reply httpReply
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") &&
		json.Unmarshal(body, &reply) == nil && reply.Success != nil {
		content := rawText(reply.Content)
		if !*reply.Success {
			msg := reply.Error
			if msg == "" {
				msg = content
			}
			if msg == "" {
				msg = "operation failed"
			}
			return "", &Error{Op: opType, Err: errors.New(msg)}
		}
		return content, nil
	}
	return string(body), nil
}

// rawText returns JSON strings unquoted and other values verbatim.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
