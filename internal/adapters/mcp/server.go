// Package mcpadapter exposes the claim tool registry to MCP clients.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/usecase"
)

const (
	serverName    = "claim-assistant"
	serverVersion = "1.0.0"
	clientIDArg   = "client_id"
)

// Tools is the registry surface the server needs.
type Tools interface {
	Definitions() []usecase.ToolDefinition
	Invoke(ctx context.Context, session *domain.Session, name, arguments string) (string, error)
}

// Sessions hands out the claim session for a key, creating it atomically.
type Sessions interface {
	GetOrCreate(id string, create func() *domain.Session) *domain.Session
}

// Server maps each MCP call onto a claim session keyed by client id, so
// lookups cached by one call are visible to the next.
type Server struct {
	tools    Tools
	sessions Sessions
}

func New(tools Tools, sessions Sessions) *Server {
	return &Server{tools: tools, sessions: sessions}
}

// MCPServer builds the protocol server with one MCP tool per registry tool.
func (s *Server) MCPServer() (*server.MCPServer, error) {
	srv := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, def := range s.tools.Definitions() {
		schema, err := withClientID(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", def.Name, err)
		}
		srv.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), s.handler(def.Name))
	}
	return srv, nil
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		clientID, _ := args[clientIDArg].(string)
		clientID = strings.TrimSpace(clientID)
		if clientID == "" {
			return mcp.NewToolResultError("client_id is required"), nil
		}

		encoded, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError("arguments must be a JSON object"), nil
		}

		session := s.session(clientID)
		session.Lock()
		out, err := s.tools.Invoke(ctx, session, name, string(encoded))
		session.Unlock()
		if err != nil {
			slog.Warn("mcp_tool_failed", "tool", name, "client_id", clientID, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func (s *Server) session(clientID string) *domain.Session {
	key := "mcp:" + clientID
	return s.sessions.GetOrCreate(key, func() *domain.Session {
		return domain.NewSession(key, clientID)
	})
}

// withClientID adds a required client_id property to a tool schema.
func withClientID(params json.RawMessage) (json.RawMessage, error) {
	schema := map[string]any{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &schema); err != nil {
			return nil, err
		}
	}
	schema["type"] = "object"

	properties, _ := schema["properties"].(map[string]any)
	if properties == nil {
		properties = map[string]any{}
	}
	properties[clientIDArg] = map[string]any{
		"type":        "string",
		"description": "Client whose policies and claims the call acts on.",
	}
	schema["properties"] = properties

	required, _ := schema["required"].([]any)
	for _, field := range required {
		if field == clientIDArg {
			return json.Marshal(schema)
		}
	}
	schema["required"] = append(required, clientIDArg)
	return json.Marshal(schema)
}
