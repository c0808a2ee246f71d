// ABOUTME: Thread-safe registry of tools exposed over MCP
// ABOUTME: Handles registration, descriptor extraction, schema compilation, and disable state

package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/2389/warden-gateway/internal/sanitize"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolDisabled indicates the tool exists but has been disabled.
var ErrToolDisabled = errors.New("tool disabled")

// ValidationError reports a schema violation with field-level detail.
type ValidationError struct {
	Tool   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("arguments for %s failed validation: %s", e.Tool, e.Detail)
}

// entry holds a registered tool with its sanitized descriptor and
// compiled schema. A nil schema means permissive validation.
type entry struct {
	tool     Tool
	desc     Descriptor
	schema   *jsonschema.Schema
	disabled bool
}

// Registry maintains the set of tools exposed over MCP.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	logger *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*entry),
		logger: logger,
	}
}

// Register validates and stores a tool.
// The descriptor's description is sanitized and its input schema compiled
// here, once; a schema that fails to compile falls back to the permissive
// empty object schema instead of failing registration.
// Returns ErrToolCollision if the name is already taken.
func (r *Registry) Register(tool Tool) error {
	desc := tool.Describe()
	name := desc.Name
	if name == "" {
		name = tool.Name()
		desc.Name = name
	}
	if name == "" {
		return errors.New("tool has no name")
	}

	desc.Description = sanitize.Text(desc.Description)
	if len(desc.InputSchema) == 0 {
		desc.InputSchema = json.RawMessage(emptyObjectSchema)
	}

	schema, err := compileSchema(name, desc.InputSchema)
	if err != nil {
		r.logger.Warn("tool schema failed to compile, falling back to permissive schema",
			"tool", name,
			"error", err,
		)
		desc.InputSchema = json.RawMessage(emptyObjectSchema)
		schema = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolCollision, name)
	}

	r.tools[name] = &entry{tool: tool, desc: desc, schema: schema}
	r.logger.Debug("tool registered", "tool", name)
	return nil
}

// RegisterAll registers a set of tools, skipping (and logging) any that
// fail rather than aborting the rest.
func (r *Registry) RegisterAll(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			r.logger.Warn("skipping tool registration", "tool", t.Name(), "error", err)
		}
	}
}

// Extract returns the descriptors of all enabled tools, sorted by name.
// Pure read: descriptors were sanitized at registration time.
func (r *Registry) Extract() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name, e := range r.tools {
		if !e.disabled {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	descs := make([]Descriptor, 0, len(names))
	for _, name := range names {
		descs = append(descs, r.tools[name].desc)
	}
	return descs
}

// ExtractAll returns the descriptors of every registered tool, disabled
// ones included, sorted by name. Monitoring uses this view so a tool
// taken out of service is not mistaken for a removed one.
func (r *Registry) ExtractAll() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)

	descs := make([]Descriptor, 0, len(names))
	for _, name := range names {
		descs = append(descs, r.tools[name].desc)
	}
	return descs
}

// Lookup returns a tool and its descriptor by name.
// Returns ErrToolNotFound for unknown names and ErrToolDisabled for
// tools taken out of service.
func (r *Registry) Lookup(name string) (Tool, Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return nil, Descriptor{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if e.disabled {
		return nil, Descriptor{}, fmt.Errorf("%w: %s", ErrToolDisabled, name)
	}
	return e.tool, e.desc, nil
}

// Validate checks call arguments against the tool's compiled schema.
// Tools whose schema failed to compile validate permissively.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if e.schema == nil {
		return nil
	}

	var decoded any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return &ValidationError{Tool: name, Detail: "arguments are not valid JSON"}
		}
	} else {
		decoded = map[string]any{}
	}

	if err := e.schema.Validate(decoded); err != nil {
		return &ValidationError{Tool: name, Detail: validationDetail(err)}
	}
	return nil
}

// Disable takes a tool out of service: invisible to discovery and
// uncallable until re-enabled. Returns false for unknown names.
func (r *Registry) Disable(name string) bool {
	return r.setDisabled(name, true)
}

// Enable returns a previously disabled tool to service.
func (r *Registry) Enable(name string) bool {
	return r.setDisabled(name, false)
}

// Disabled reports whether the named tool is currently disabled.
func (r *Registry) Disabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return ok && e.disabled
}

func (r *Registry) setDisabled(name string, disabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tools[name]
	if !ok {
		return false
	}
	if e.disabled != disabled {
		e.disabled = disabled
		r.logger.Info("tool availability changed", "tool", name, "disabled", disabled)
	}
	return true
}

// compileSchema compiles a JSON schema for argument validation.
func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return schema, nil
}

// validationDetail renders a jsonschema validation error with its
// instance locations. Internal stack traces never reach the caller.
func validationDetail(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}
