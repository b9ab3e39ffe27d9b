package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/usecase"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/session/memory"
)

type toolsFake struct {
	mu       sync.Mutex
	sessions []*domain.Session
	args     []string
	err      error
}

func (f *toolsFake) Definitions() []usecase.ToolDefinition {
	return []usecase.ToolDefinition{
		{Name: "get_currencies", Description: "List currencies"},
		{Name: "get_claim_schema", Parameters: json.RawMessage(`{"type":"object","properties":{"claim_type":{"type":"string"}},"required":["claim_type"]}`)},
	}
}

func (f *toolsFake) Invoke(_ context.Context, session *domain.Session, name, arguments string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
	f.args = append(f.args, arguments)
	if f.err != nil {
		return "", f.err
	}
	return `{"tool":"` + name + `"}`, nil
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestMCPServerRegistersEveryTool(t *testing.T) {
	srv, err := New(&toolsFake{}, memory.NewStore(0)).MCPServer()
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestHandlerReusesSessionPerClient(t *testing.T) {
	tools := &toolsFake{}
	s := New(tools, memory.NewStore(0))
	handler := s.handler("get_currencies")

	first, err := handler(context.Background(), callTool("get_currencies", map[string]any{"client_id": "C111"}))
	require.NoError(t, err)
	assert.False(t, first.IsError)
	assert.JSONEq(t, `{"tool":"get_currencies"}`, resultText(t, first))

	_, err = handler(context.Background(), callTool("get_currencies", map[string]any{"client_id": "C111"}))
	require.NoError(t, err)
	_, err = handler(context.Background(), callTool("get_currencies", map[string]any{"client_id": "C222"}))
	require.NoError(t, err)

	require.Len(t, tools.sessions, 3)
	assert.Same(t, tools.sessions[0], tools.sessions[1])
	assert.NotSame(t, tools.sessions[0], tools.sessions[2])
	assert.Equal(t, "C222", tools.sessions[2].ClientID)
	assert.JSONEq(t, `{"client_id":"C111"}`, tools.args[0])
}

func TestHandlerSharesSessionAcrossConcurrentCalls(t *testing.T) {
	tools := &toolsFake{}
	store := memory.NewStore(0)
	handler := New(tools, store).handler("get_currencies")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := handler(context.Background(), callTool("get_currencies", map[string]any{"client_id": "C111"}))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, tools.sessions, 8)
	for _, session := range tools.sessions {
		assert.Same(t, tools.sessions[0], session)
	}
	assert.Equal(t, 1, store.Len())
}

func TestHandlerRequiresClientID(t *testing.T) {
	tools := &toolsFake{}
	handler := New(tools, memory.NewStore(0)).handler("get_currencies")

	result, err := handler(context.Background(), callTool("get_currencies", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, tools.sessions)
}

func TestHandlerReportsToolErrors(t *testing.T) {
	tools := &toolsFake{err: domain.WrapError(domain.ErrInvalidInput, "get_claim_schema", errors.New("bad claim type"))}
	handler := New(tools, memory.NewStore(0)).handler("get_claim_schema")

	result, err := handler(context.Background(), callTool("get_claim_schema", map[string]any{"client_id": "C111", "claim_type": "PET"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "bad claim type")
}

func TestWithClientIDExtendsSchema(t *testing.T) {
	raw, err := withClientID(json.RawMessage(`{"type":"object","properties":{"claim_type":{"type":"string"}},"required":["claim_type"]}`))
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))
	properties := schema["properties"].(map[string]any)
	assert.Contains(t, properties, "claim_type")
	assert.Contains(t, properties, "client_id")
	assert.Equal(t, []any{"claim_type", "client_id"}, schema["required"])

	raw, err = withClientID(nil)
	require.NoError(t, err)
	schema = map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, []any{"client_id"}, schema["required"])
}
