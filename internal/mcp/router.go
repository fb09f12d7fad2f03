package mcp

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpchat-ai/mcpchat/internal/provider"
)

// Backend is one capability source: a connected MCP server, or a fake in
// tests. Tools/Prompts/Resources report what the server advertised at
// discovery time; the invoke methods forward to it.
type Backend interface {
	Name() string
	Tools() []*mcp.Tool
	Prompts() []*mcp.Prompt
	Resources() []*mcp.Resource

	CallTool(ctx context.Context, name string, args map[string]any) (string, bool, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (string, error)
	ReadResource(ctx context.Context, uri string) ([]string, error)
}

// Router aggregates capabilities across backends into flat name spaces.
// When two backends advertise the same name, the one registered last wins;
// the Manager registers backends in server-name order, so conflicts resolve
// deterministically.
type Router struct {
	logger *slog.Logger

	tools     map[string]toolEntry
	prompts   map[string]promptEntry
	resources map[string]resourceEntry
	schemes   map[string]Backend // resource URI scheme -> backend, for prefix routing
}

type toolEntry struct {
	backend Backend
	tool    *mcp.Tool
}

type promptEntry struct {
	backend Backend
	prompt  *mcp.Prompt
}

type resourceEntry struct {
	backend  Backend
	resource *mcp.Resource
}

// PromptInfo describes one registered prompt for listing.
type PromptInfo struct {
	Name        string
	Description string
	Server      string
	Arguments   []string
}

// ResourceInfo describes one registered resource for listing.
type ResourceInfo struct {
	URI         string
	Name        string
	Description string
	Server      string
}

func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:    logger,
		tools:     make(map[string]toolEntry),
		prompts:   make(map[string]promptEntry),
		resources: make(map[string]resourceEntry),
		schemes:   make(map[string]Backend),
	}
}

// Register indexes one backend's capabilities, overwriting any earlier
// registrations with the same names.
func (r *Router) Register(b Backend) {
	for _, t := range b.Tools() {
		if prev, ok := r.tools[t.Name]; ok {
			r.logger.Warn("tool name conflict, later registration wins",
				"tool", t.Name, "replaced", prev.backend.Name(), "winner", b.Name())
		}
		r.tools[t.Name] = toolEntry{backend: b, tool: t}
	}
	for _, p := range b.Prompts() {
		if prev, ok := r.prompts[p.Name]; ok {
			r.logger.Warn("prompt name conflict, later registration wins",
				"prompt", p.Name, "replaced", prev.backend.Name(), "winner", b.Name())
		}
		r.prompts[p.Name] = promptEntry{backend: b, prompt: p}
	}
	for _, res := range b.Resources() {
		if prev, ok := r.resources[res.URI]; ok {
			r.logger.Warn("resource uri conflict, later registration wins",
				"uri", res.URI, "replaced", prev.backend.Name(), "winner", b.Name())
		}
		r.resources[res.URI] = resourceEntry{backend: b, resource: res}
		// Unlike name collisions, scheme routing keeps the first backend
		// advertising a scheme: unregistered URIs under it go where the
		// scheme first appeared.
		if scheme := uriScheme(res.URI); scheme != "" {
			if _, ok := r.schemes[scheme]; !ok {
				r.schemes[scheme] = b
			}
		}
	}
}

// Discover registers every backend the manager knows about.
func (r *Router) Discover(m *Manager) {
	for _, b := range m.Backends() {
		r.Register(b)
	}
	r.logger.Info("capability discovery complete",
		"tools", len(r.tools), "prompts", len(r.prompts), "resources", len(r.resources))
}

// InvokeTool routes a tool call to the backend that registered the name.
// Returns (output, isError, error) with CallTool semantics; an unknown name
// yields a CapabilityError wrapping ErrNotFound.
func (r *Router) InvokeTool(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	entry, ok := r.tools[name]
	if !ok {
		return "", false, &CapabilityError{Kind: KindTool, Name: name, Err: ErrNotFound}
	}
	out, isErr, err := entry.backend.CallTool(ctx, name, args)
	if err != nil {
		return "", false, &CapabilityError{Kind: KindTool, Name: name, Err: err}
	}
	return out, isErr, nil
}

// GetPrompt routes a prompt fetch to the backend that registered the name.
func (r *Router) GetPrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	entry, ok := r.prompts[name]
	if !ok {
		return "", &CapabilityError{Kind: KindPrompt, Name: name, Err: ErrNotFound}
	}
	text, err := entry.backend.GetPrompt(ctx, name, args)
	if err != nil {
		return "", &CapabilityError{Kind: KindPrompt, Name: name, Err: err}
	}
	return text, nil
}

// ReadResource routes a resource read. An exactly registered URI goes to its
// backend; otherwise the first backend that registered the URI's scheme gets
// it, so templated URIs like gmail://messages/<id> reach the server that
// advertises that scheme.
func (r *Router) ReadResource(ctx context.Context, uri string) ([]string, error) {
	var backend Backend
	if entry, ok := r.resources[uri]; ok {
		backend = entry.backend
	} else if b, ok := r.schemes[uriScheme(uri)]; ok {
		backend = b
	} else {
		return nil, &CapabilityError{Kind: KindResource, Name: uri, Err: ErrNotFound}
	}

	lines, err := backend.ReadResource(ctx, uri)
	if err != nil {
		return nil, &CapabilityError{Kind: KindResource, Name: uri, Err: err}
	}
	return lines, nil
}

// ToolSchemas exposes all registered tools in the shape the completion API
// expects, sorted by name.
func (r *Router) ToolSchemas() []provider.ToolSchema {
	out := make([]provider.ToolSchema, 0, len(r.tools))
	for name, entry := range r.tools {
		out = append(out, provider.ToolSchema{
			Name:        name,
			Description: entry.tool.Description,
			Parameters:  schemaProperties(entry.tool.InputSchema),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Prompts lists all registered prompts, sorted by name.
func (r *Router) Prompts() []PromptInfo {
	out := make([]PromptInfo, 0, len(r.prompts))
	for name, entry := range r.prompts {
		info := PromptInfo{
			Name:        name,
			Description: entry.prompt.Description,
			Server:      entry.backend.Name(),
		}
		for _, arg := range entry.prompt.Arguments {
			label := arg.Name
			if arg.Required {
				label += "*"
			}
			info.Arguments = append(info.Arguments, label)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resources lists all registered resources, sorted by URI.
func (r *Router) Resources() []ResourceInfo {
	out := make([]ResourceInfo, 0, len(r.resources))
	for uri, entry := range r.resources {
		out = append(out, ResourceInfo{
			URI:         uri,
			Name:        entry.resource.Name,
			Description: entry.resource.Description,
			Server:      entry.backend.Name(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// uriScheme returns the scheme of a URI like "gmail://messages", or "".
func uriScheme(uri string) string {
	if i := strings.Index(uri, "://"); i > 0 {
		return uri[:i]
	}
	return ""
}

// schemaProperties pulls the "properties" object out of a JSON-schema-shaped
// tool input schema. The completion APIs want just the property map.
func schemaProperties(schema any) map[string]any {
	m, ok := schema.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	props, ok := m["properties"].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return props
}
