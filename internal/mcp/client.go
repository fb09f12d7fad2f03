package mcp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// clientInfo identifies this client to MCP servers during initialization.
var clientInfo = &mcp.Implementation{
	Name:    "mcpchat",
	Version: "1.0.0",
}

// Manager manages all configured MCP server connections.
// Thread-safe: concurrent CallTool calls are safe.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*serverConn
}

// serverConn maintains the connection state and capability caches for a
// single MCP server. It implements Backend.
type serverConn struct {
	mu        sync.Mutex
	config    ServerConfig
	name      string
	client    *mcp.Client
	session   *mcp.ClientSession
	tools     []*mcp.Tool
	prompts   []*mcp.Prompt
	resources []*mcp.Resource
}

// NewManager creates a Manager from config without connecting immediately.
func NewManager(cfg *Config) *Manager {
	m := &Manager{
		servers: make(map[string]*serverConn),
	}
	for name, srv := range cfg.MCPServers {
		m.servers[name] = &serverConn{
			config: srv,
			name:   name,
			client: mcp.NewClient(clientInfo, nil),
		}
	}
	return m
}

// ConnectAll connects to all configured servers and caches their capability
// lists. Individual server failures do not affect others; all errors are
// returned.
func (m *Manager) ConnectAll(ctx context.Context) []error {
	var errs []error
	for _, conn := range m.backends() {
		if err := conn.connect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mcp server %q: %w", conn.name, err))
		}
	}
	return errs
}

// Backends returns all configured servers in name order, so capability
// registration conflicts resolve the same way every run.
func (m *Manager) Backends() []Backend {
	conns := m.backends()
	out := make([]Backend, len(conns))
	for i, c := range conns {
		out[i] = c
	}
	return out
}

func (m *Manager) backends() []*serverConn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*serverConn, 0, len(m.servers))
	for _, conn := range m.servers {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].name < conns[j].name })
	return conns
}

// Status returns a connection status description for each server.
func (m *Manager) Status() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.servers))
	for name, conn := range m.servers {
		conn.mu.Lock()
		if conn.session != nil {
			out[name] = fmt.Sprintf("connected (%d tools, %d prompts, %d resources)",
				len(conn.tools), len(conn.prompts), len(conn.resources))
		} else {
			out[name] = "disconnected"
		}
		conn.mu.Unlock()
	}
	return out
}

// Close shuts down all server connections and releases resources.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, conn := range m.servers {
		conn.mu.Lock()
		conn.disconnect()
		conn.mu.Unlock()
	}
}

// ── serverConn (Backend implementation) ──────────────────────────────────────

func (conn *serverConn) Name() string { return conn.name }

func (conn *serverConn) Tools() []*mcp.Tool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return append([]*mcp.Tool(nil), conn.tools...)
}

func (conn *serverConn) Prompts() []*mcp.Prompt {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return append([]*mcp.Prompt(nil), conn.prompts...)
}

func (conn *serverConn) Resources() []*mcp.Resource {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return append([]*mcp.Resource(nil), conn.resources...)
}

// CallTool calls a tool on this server, reconnecting once on failure.
// Returns (output, isError, error):
//   - error indicates a transport/protocol-level error
//   - isError=true means the tool itself returned error content
func (conn *serverConn) CallTool(ctx context.Context, toolName string, args map[string]any) (string, bool, error) {
	result, err := conn.callTool(ctx, toolName, args)
	if err != nil {
		if reconnErr := conn.reconnect(ctx); reconnErr != nil {
			return "", false, fmt.Errorf("call tool %q on %q (reconnect failed: %v): %w",
				toolName, conn.name, reconnErr, err)
		}
		result, err = conn.callTool(ctx, toolName, args)
		if err != nil {
			return "", false, fmt.Errorf("call tool %q on %q: %w", toolName, conn.name, err)
		}
	}
	return extractContent(result), result.IsError, nil
}

// GetPrompt fetches a prompt and flattens its messages to text.
func (conn *serverConn) GetPrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	session, err := conn.liveSession(ctx)
	if err != nil {
		return "", err
	}

	result, err := session.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("get prompt %q on %q: %w", name, conn.name, err)
	}

	var parts []string
	for _, msg := range result.Messages {
		if tc, ok := msg.Content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("prompt %q on %q returned no text content", name, conn.name)
	}
	return strings.Join(parts, "\n"), nil
}

// ReadResource reads a resource and returns its text content lines.
// Binary contents are reported by size rather than dumped.
func (conn *serverConn) ReadResource(ctx context.Context, uri string) ([]string, error) {
	session, err := conn.liveSession(ctx)
	if err != nil {
		return nil, err
	}

	result, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("read resource %q on %q: %w", uri, conn.name, err)
	}

	var lines []string
	for _, c := range result.Contents {
		switch {
		case c.Text != "":
			lines = append(lines, c.Text)
		case len(c.Blob) > 0:
			lines = append(lines, fmt.Sprintf("[binary content: %d bytes, %s]", len(c.Blob), c.MIMEType))
		}
	}
	return lines, nil
}

// liveSession returns the current session, connecting first if needed.
func (conn *serverConn) liveSession(ctx context.Context) (*mcp.ClientSession, error) {
	conn.mu.Lock()
	session := conn.session
	conn.mu.Unlock()
	if session != nil {
		return session, nil
	}
	if err := conn.connect(ctx); err != nil {
		return nil, err
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.session, nil
}

// connect establishes a connection and caches the capability lists
// (idempotent: skips if already connected). When a URL-based config has no
// explicit type, it tries Streamable HTTP first, then falls back to SSE
// (many existing servers still speak the 2024-11-05 SSE protocol).
func (conn *serverConn) connect(ctx context.Context) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.session != nil {
		return nil
	}

	autoDetect := conn.config.URL != "" && conn.config.Type == ""

	transport, err := buildTransport(conn.config)
	if err != nil {
		return err
	}

	session, err := conn.client.Connect(ctx, transport, nil)
	if err != nil && autoDetect {
		// Streamable HTTP failed; retry over SSE with a fresh client
		// (Connect is one-shot).
		conn.client = mcp.NewClient(clientInfo, nil)
		sseCfg := conn.config
		sseCfg.Type = ServerTypeSSE
		sseTransport, sseErr := buildTransport(sseCfg)
		if sseErr != nil {
			return fmt.Errorf("connect (streamable HTTP failed: %v; SSE build failed: %v)", err, sseErr)
		}
		session, sseErr = conn.client.Connect(ctx, sseTransport, nil)
		if sseErr != nil {
			return fmt.Errorf("connect failed (tried streamable HTTP: %v; SSE: %v)", err, sseErr)
		}
		// SSE succeeded; remember for future reconnects.
		conn.config.Type = ServerTypeSSE
	} else if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	conn.session = session

	// Cache capability lists. A server may implement any subset of the
	// three listing methods; absent ones just yield empty caches.
	if result, err := session.ListTools(ctx, nil); err == nil {
		conn.tools = result.Tools
	} else {
		conn.tools = nil
	}
	if result, err := session.ListPrompts(ctx, nil); err == nil {
		conn.prompts = result.Prompts
	} else {
		conn.prompts = nil
	}
	if result, err := session.ListResources(ctx, nil); err == nil {
		conn.resources = result.Resources
	} else {
		conn.resources = nil
	}

	return nil
}

func (conn *serverConn) reconnect(ctx context.Context) error {
	conn.mu.Lock()
	conn.disconnect()
	conn.mu.Unlock()
	return conn.connect(ctx)
}

// disconnect closes the connection and cleans up state (caller must hold mu).
func (conn *serverConn) disconnect() {
	if conn.session != nil {
		_ = conn.session.Close()
		conn.session = nil
	}
	conn.tools = nil
	conn.prompts = nil
	conn.resources = nil
}

// callTool calls a tool on an existing session.
func (conn *serverConn) callTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	conn.mu.Lock()
	session := conn.session
	conn.mu.Unlock()

	if session == nil {
		return nil, fmt.Errorf("not connected")
	}

	return session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
}

// ── Utility functions ────────────────────────────────────────────────────────

// buildTransport creates the appropriate MCP transport based on ServerConfig.
func buildTransport(cfg ServerConfig) (mcp.Transport, error) {
	switch cfg.EffectiveType() {
	case ServerTypeStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio transport requires 'command'")
		}
		cmd := exec.Command(cfg.Command, cfg.Args...)
		// Inherit parent process env, then append custom env
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcp.CommandTransport{Command: cmd}, nil

	case ServerTypeHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("http transport requires 'url'")
		}
		t := &mcp.StreamableClientTransport{Endpoint: cfg.URL}
		if len(cfg.Headers) > 0 {
			t.HTTPClient = &http.Client{
				Transport: &headerRoundTripper{
					base:    http.DefaultTransport,
					headers: cfg.Headers,
				},
			}
		}
		return t, nil

	case ServerTypeSSE:
		if cfg.URL == "" {
			return nil, fmt.Errorf("sse transport requires 'url'")
		}
		t := &mcp.SSEClientTransport{Endpoint: cfg.URL}
		if len(cfg.Headers) > 0 {
			t.HTTPClient = &http.Client{
				Transport: &headerRoundTripper{
					base:    http.DefaultTransport,
					headers: cfg.Headers,
				},
			}
		}
		return t, nil

	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.EffectiveType())
	}
}

// extractContent extracts text content from a CallToolResult.
func extractContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// headerRoundTripper injects fixed headers into every HTTP request.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	r := req.Clone(req.Context())
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}
