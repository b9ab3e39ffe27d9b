package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

// ToolHandler serves one tool call. Handlers run while the caller holds the
// session lock and must return a JSON-serializable value.
type ToolHandler func(ctx context.Context, session *domain.Session, args ToolArguments) (any, error)

// ToolDefinition is the declaration advertised to the reasoning job.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type Tool struct {
	Definition ToolDefinition
	Handler    ToolHandler
}

type registeredTool struct {
	definition ToolDefinition
	schema     *gojsonschema.Schema
	handler    ToolHandler
}

const emptyParameters = `{"type":"object","properties":{}}`

// ErrUnknownTool marks a call to a name that has no registered handler.
var ErrUnknownTool = errors.New("unknown tool")

// ToolRegistry maps tool names to handlers with argument schemas. Unknown
// names resolve to a single fallback that reports the call as unimplemented.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]registeredTool
	timeout time.Duration
}

func NewToolRegistry(timeout time.Duration) *ToolRegistry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ToolRegistry{
		tools:   make(map[string]registeredTool),
		timeout: timeout,
	}
}

// Register validates and adds a tool. Names must be unique, the handler
// non-nil and the parameter schema must compile.
func (r *ToolRegistry) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Definition.Name)
	if name == "" {
		return domain.WrapError(domain.ErrInvalidInput, "register tool", errors.New("tool name is required"))
	}
	if tool.Handler == nil {
		return domain.WrapError(domain.ErrInvalidInput, "register tool", fmt.Errorf("tool %s has no handler", name))
	}

	params := tool.Definition.Parameters
	if len(params) == 0 {
		params = json.RawMessage(emptyParameters)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(params))
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "register tool", fmt.Errorf("tool %s parameters: %w", name, err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "register tool", fmt.Errorf("tool %s already registered", name))
	}
	definition := tool.Definition
	definition.Name = name
	definition.Parameters = params
	r.tools[name] = registeredTool{definition: definition, schema: schema, handler: tool.Handler}
	return nil
}

// Definitions returns registered tool declarations sorted by name.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool.definition)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve runs a tool call and always produces an output for it. A non-nil
// error means the output carries an error payload instead of a result.
func (r *ToolRegistry) Resolve(ctx context.Context, session *domain.Session, call domain.ToolCall) (domain.ToolOutput, error) {
	if !r.Has(call.Name) {
		err := domain.WrapError(domain.ErrNotFound, "resolve tool", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name))
		return domain.ToolOutput{
			ToolCallID: call.ID,
			Output:     errorPayload(fmt.Sprintf("Function %s not implemented", call.Name)),
		}, err
	}
	payload, err := r.Invoke(ctx, session, call.Name, call.Arguments)
	if err != nil {
		payload = errorPayload(err.Error())
	}
	return domain.ToolOutput{ToolCallID: call.ID, Output: payload}, err
}

func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Invoke validates arguments against the tool schema, runs the handler with
// the registry timeout and returns the JSON-encoded result.
func (r *ToolRegistry) Invoke(ctx context.Context, session *domain.Session, name, arguments string) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", domain.WrapError(domain.ErrNotFound, "invoke tool", fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}

	args, err := decodeToolArguments(arguments)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, name, err)
	}
	if err := validateToolArguments(tool.schema, args); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, name, err)
	}

	toolCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	result, err := callTool(toolCtx, tool.handler, session, args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("%s: encode result: %w", name, err)
	}
	return string(encoded), nil
}

func callTool(ctx context.Context, handler ToolHandler, session *domain.Session, args ToolArguments) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("tool panicked: %v", recovered)
		}
	}()
	return handler(ctx, session, args)
}

func decodeToolArguments(raw string) (ToolArguments, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ToolArguments{}, nil
	}
	var args ToolArguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = ToolArguments{}
	}
	return args, nil
}

func validateToolArguments(schema *gojsonschema.Schema, args ToolArguments) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(args)))
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
}

func errorPayload(message string) string {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return string(payload)
}

// ToolArguments is the decoded argument object of a tool call.
type ToolArguments map[string]any

func (a ToolArguments) String(key, fallback string) string {
	value, ok := a[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return fallback
		}
		return strings.TrimSpace(typed)
	default:
		return fmt.Sprint(typed)
	}
}

func (a ToolArguments) Int(key string, fallback int) int {
	value, ok := a[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return n
	default:
		return fallback
	}
}

func (a ToolArguments) Bool(key string, fallback bool) bool {
	value, ok := a[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

func (a ToolArguments) Object(key string) (map[string]any, bool) {
	value, ok := a[key].(map[string]any)
	return value, ok
}

func (a ToolArguments) List(key string) ([]any, bool) {
	value, ok := a[key].([]any)
	return value, ok
}
