package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/elicit"
	"github.com/weftworks/agentweave/internal/util"
)

// Elicitor lets a tool handler pause its call and ask the connected peer's
// human for structured input.
type Elicitor interface {
	Elicit(ctx context.Context, schema elicit.Schema) (map[string]any, error)
}

// ToolContext is passed to tool handlers. It carries the validated arguments
// and, when the peer advertised the elicitation capability, a path back to
// its human.
type ToolContext struct {
	CallID string
	Args   map[string]any

	elicitor Elicitor
}

// Elicit asks the peer's human for input mid-call. Fails with
// CAPABILITY_MISMATCH when the peer did not advertise elicitation.
func (tc *ToolContext) Elicit(ctx context.Context, schema elicit.Schema) (map[string]any, error) {
	if tc.elicitor == nil {
		return nil, core.Errorf(core.ErrCapabilityMismatch, "peer does not support elicitation")
	}
	return tc.elicitor.Elicit(ctx, schema)
}

// Tool is a named server capability with a JSON-schema argument contract.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	// Call executes the tool. Arguments have already been validated against
	// InputSchema.
	Call(ctx context.Context, tc *ToolContext) (any, error)
}

// FuncTool adapts a plain Go function into a Tool.
type FuncTool struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, tc *ToolContext) (any, error)
}

// NewTool constructs a FuncTool from an explicit schema and function.
func NewTool(name, description string, schema map[string]any, fn func(ctx context.Context, tc *ToolContext) (any, error)) *FuncTool {
	return &FuncTool{name: name, description: description, schema: schema, fn: fn}
}

// NewToolFromStruct derives the argument schema from a struct by reflection.
func NewToolFromStruct(name, description string, structType any, fn func(ctx context.Context, tc *ToolContext) (any, error)) *FuncTool {
	return NewTool(name, description, util.SchemaFromStruct(structType), fn)
}

func (t *FuncTool) Name() string                { return t.name }
func (t *FuncTool) Description() string         { return t.description }
func (t *FuncTool) InputSchema() map[string]any { return t.schema }

func (t *FuncTool) Call(ctx context.Context, tc *ToolContext) (any, error) {
	return t.fn(ctx, tc)
}

// Prompt is a named, parameterized prompt template. Either Template holds a
// static template body or Resolver produces the result per request.
type Prompt struct {
	Name        string
	Description string
	// Role the rendered text is applied as; defaults to the user role.
	Role      string
	Arguments []PromptArgument
	Template  string
	Resolver  func(args map[string]any) (string, error)
}

// Info returns the advertised description of the prompt.
func (p Prompt) Info() PromptInfo {
	return PromptInfo{Name: p.Name, Description: p.Description, Arguments: p.Arguments}
}

// Render expands the template against args, enforcing required arguments.
func (p Prompt) Render(args map[string]any) (*PromptResult, error) {
	for _, arg := range p.Arguments {
		if !arg.Required {
			continue
		}
		if _, ok := args[arg.Name]; !ok {
			return nil, fmt.Errorf("prompt %q: missing required argument %q", p.Name, arg.Name)
		}
	}

	var rendered string
	var err error
	if p.Resolver != nil {
		rendered, err = p.Resolver(args)
	} else {
		rendered, err = util.RenderTemplate(p.Template, args)
	}
	if err != nil {
		return nil, fmt.Errorf("prompt %q: %w", p.Name, err)
	}

	role := p.Role
	if role == "" {
		role = core.RoleUser
	}
	return &PromptResult{Description: p.Description, Role: role, Rendered: rendered}, nil
}

// Resource is protocol-served content addressed by URI. Either Text holds a
// static body or Reader resolves it per read.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Text        string
	Reader      func(ctx context.Context) (string, error)
}

// Info returns the advertised description of the resource.
func (r Resource) Info() ResourceInfo {
	return ResourceInfo{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MimeType}
}

// Read resolves the resource body.
func (r Resource) Read(ctx context.Context) (*ResourceContent, error) {
	text := r.Text
	if r.Reader != nil {
		var err error
		text, err = r.Reader(ctx)
		if err != nil {
			return nil, fmt.Errorf("read resource %s: %w", r.URI, err)
		}
	}
	return &ResourceContent{URI: r.URI, MimeType: r.MimeType, Text: text}, nil
}

// Registry holds the tools, prompts and resources a server exposes. One
// registry may back many concurrent sessions; registration is typically done
// once at startup but is safe at any time.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	prompts   map[string]Prompt
	resources map[string]Resource
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		prompts:   make(map[string]Prompt),
		resources: make(map[string]Resource),
	}
}

// RegisterTool adds a tool. Names are unique.
func (r *Registry) RegisterTool(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// RegisterPrompt adds a prompt template. Names are unique.
func (r *Registry) RegisterPrompt(p Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.prompts[p.Name]; exists {
		return fmt.Errorf("prompt %q already registered", p.Name)
	}
	r.prompts[p.Name] = p
	return nil
}

// RegisterResource adds a resource. URIs are unique.
func (r *Registry) RegisterResource(res Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[res.URI]; exists {
		return fmt.Errorf("resource %q already registered", res.URI)
	}
	r.resources[res.URI] = res
	return nil
}

// Tool looks up a tool by name.
func (r *Registry) Tool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Prompt looks up a prompt by name.
func (r *Registry) Prompt(name string) (Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[name]
	return p, ok
}

// Resource looks up a resource by URI.
func (r *Registry) Resource(uri string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[uri]
	return res, ok
}

// ListTools returns advertised tool descriptions sorted by name.
func (r *Registry) ListTools() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, ToolInfo{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListPrompts returns advertised prompt descriptions sorted by name.
func (r *Registry) ListPrompts() []PromptInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PromptInfo, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListResources returns advertised resource descriptions sorted by URI.
func (r *Registry) ListResources() []ResourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceInfo, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Capabilities derives the server capability set from registry content.
func (r *Registry) Capabilities() Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Capabilities{
		Tools:     len(r.tools) > 0,
		Prompts:   len(r.prompts) > 0,
		Resources: len(r.resources) > 0,
	}
}
