package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gaspardpetit/editorbridge/internal/logx"
	"github.com/gaspardpetit/editorbridge/internal/ops"
)

// MCP forwards operations as tools/call requests to an MCP server running
// inside, or next to, the host editor. Operation SET_TRANSFORM becomes tool
// "<prefix>set_transform".
type MCP struct {
	t        transport.Interface
	prefix   string
	id       atomic.Int64
	protocol string
}

// NewMCPStdio launches command and talks MCP over its stdio.
func NewMCPStdio(command string, args, env []string, prefix string) *MCP {
	return newMCP(transport.NewStdio(command, env, args...), prefix)
}

// NewMCPHTTP talks MCP over streamable HTTP.
func NewMCPHTTP(url, prefix string, timeout time.Duration) (*MCP, error) {
	if url == "" {
		return nil, errors.New("mcp url not configured")
	}
	timeout = clientTimeout(timeout)
	client := &http.Client{Timeout: timeout}
	t, err := transport.NewStreamableHTTP(url, transport.WithHTTPBasicClient(client), transport.WithHTTPTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return newMCP(t, prefix), nil
}

func newMCP(t transport.Interface, prefix string) *MCP {
	if prefix == "" {
		prefix = ops.DefaultToolPrefix
	}
	return &MCP{t: t, prefix: prefix}
}

// Start opens the transport and performs the initialize handshake. The
// transport is closed again when the handshake fails.
func (m *MCP) Start(ctx context.Context) (err error) {
	if err := m.t.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = m.t.Close()
		}
	}()
	params := struct {
		ProtocolVersion string                 `json:"protocolVersion"`
		ClientInfo      mcp.Implementation     `json:"clientInfo"`
		Capabilities    mcp.ClientCapabilities `json:"capabilities"`
	}{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		ClientInfo:      mcp.Implementation{Name: "editorbridge", Version: "1"},
	}
	var res mcp.InitializeResult
	if err := m.rpc(ctx, string(mcp.MethodInitialize), params, &res); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if !slices.Contains(mcp.ValidProtocolVersions, res.ProtocolVersion) {
		return mcp.UnsupportedProtocolVersionError{Version: res.ProtocolVersion}
	}
	m.protocol = res.ProtocolVersion
	_ = m.t.SendNotification(ctx, mcp.JSONRPCNotification{JSONRPC: mcp.JSONRPC_VERSION, Notification: mcp.Notification{Method: "notifications/initialized"}})
	logx.Log.Info().Str("protocol", res.ProtocolVersion).Str("server", res.ServerInfo.Name).Msg("mcp executor ready")
	return nil
}

// Protocol is the negotiated MCP protocol version.
func (m *MCP) Protocol() string { return m.protocol }

// Close shuts the transport down.
func (m *MCP) Close() error { return m.t.Close() }

// ToolName maps an operation type to the tool it is forwarded to.
func (m *MCP) ToolName(opType string) string {
	return m.prefix + strings.ToLower(opType)
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError"`
}

func (m *MCP) Execute(ctx context.Context, opType string, params map[string]string) (string, error) {
	args := make(map[string]any, len(params))
	for k, v := range params {
		args[k] = v
	}
	call := map[string]any{"name": m.ToolName(opType), "arguments": args}
	var res toolResult
	if err := m.rpc(ctx, string(mcp.MethodToolsCall), call, &res); err != nil {
		return "", &Error{Op: opType, Err: err}
	}
	var parts []string
	for _, c := range res.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" && len(res.StructuredContent) > 0 {
		text = string(res.StructuredContent)
	}
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", &Error{Op: opType, Err: errors.New(text)}
	}
	return text, nil
}

func (m *MCP) rpc(ctx context.Context, method string, params, result any) error {
	id := m.id.Add(1)
	req := transport.JSONRPCRequest{JSONRPC: mcp.JSONRPC_VERSION, ID: mcp.NewRequestId(id), Method: method, Params: params}
	resp, err := m.t.SendRequest(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.New(resp.Error.Message)
	}
	if result != nil && resp.Result != nil {
		return json.Unmarshal(resp.Result, result)
	}
	return nil
}
