package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/local/picobot/internal/config"
	"github.com/local/picobot/internal/llm"
)

// mcpServer owns one child-process tool server: its connection, its
// advertised tool list, and a mutex serializing every call into it (stdio
// tool servers generally cannot multiplex requests).
type mcpServer struct {
	mu      sync.Mutex
	name    string
	cfg     config.ExternalToolCfg
	client  *mcpclient.Client
	toolset map[string]mcp.Tool // unprefixed tool name -> definition
}

func connectServer(ctx context.Context, cfg config.ExternalToolCfg) (*mcpServer, error) {
	tr := transport.NewStdio(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	cli := mcpclient.NewClient(tr)

	if err := cli.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP server %s: %w", cfg.Name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := cli.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "picobot", Version: "1.0.0"},
		},
	}); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to initialize MCP server %s: %w", cfg.Name, err)
	}

	listed, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to list tools for MCP server %s: %w", cfg.Name, err)
	}

	toolset := make(map[string]mcp.Tool, len(listed.Tools))
	for _, t := range listed.Tools {
		toolset[t.Name] = t
	}

	return &mcpServer{name: cfg.Name, cfg: cfg, client: cli, toolset: toolset}, nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// respawn tears down the current connection and reconnects, replacing the
// client and tool list in place under the same mutex the caller already
// holds.
func (s *mcpServer) respawn(ctx context.Context) error {
	if s.client != nil {
		s.client.Close()
	}
	fresh, err := connectServer(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.client = fresh.client
	s.toolset = fresh.toolset
	return nil
}

func (s *mcpServer) callTool(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.doCall(ctx, toolName, args)
	if err == nil {
		return result, nil
	}

	log.Printf("mcp: server %s tool %s call failed (%v), respawning and retrying once", s.name, toolName, err)
	if respawnErr := s.respawn(ctx); respawnErr != nil {
		return "", fmt.Errorf("mcp server %s crashed and could not be respawned: %w", s.name, respawnErr)
	}
	return s.doCall(ctx, toolName, args)
}

func (s *mcpServer) doCall(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	var arguments map[string]any
	if len(args) > 0 {
		_ = json.Unmarshal(args, &arguments)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = arguments

	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", err
	}
	return renderToolResult(res), nil
}

func renderToolResult(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(tc.Text)
		}
	}
	if b.Len() == 0 {
		return fmt.Sprintf("%v", res.Content)
	}
	return b.String()
}

// mcpTool adapts one server tool into the Tool interface, under the
// catalog name mcp_{server}_{tool}.
type mcpTool struct {
	server   *mcpServer
	toolName string
	def      mcp.Tool
}

func (t mcpTool) Definition() llm.ToolDefinition {
	var params any = map[string]any{"type": "object", "properties": map[string]any{}}
	if t.def.InputSchema.Type != "" {
		params = t.def.InputSchema
	}
	return llm.ToolDefinition{Type: "function", Function: llm.FunctionDefinition{
		Name:        fmt.Sprintf("mcp_%s_%s", t.server.name, t.toolName),
		Description: t.def.Description,
		Parameters:  params,
	}}
}

func (t mcpTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	return t.server.callTool(ctx, t.toolName, arguments)
}

// RegisterExternalTools connects every configured external tool server and
// registers each advertised tool under mcp_{server}_{tool}. Connection
// failures for one server are logged and skipped rather than aborting
// startup, matching original_source/src/mcp.rs::connect_all.
func RegisterExternalTools(ctx context.Context, reg *Registry, servers []config.ExternalToolCfg) {
	for _, cfg := range servers {
		server, err := connectServer(ctx, cfg)
		if err != nil {
			log.Printf("mcp: failed to connect server %s: %v", cfg.Name, err)
			continue
		}
		for name, def := range server.toolset {
			catalogName := fmt.Sprintf("mcp_%s_%s", server.name, name)
			reg.Register(catalogName, mcpTool{server: server, toolName: name, def: def})
		}
	}
}
