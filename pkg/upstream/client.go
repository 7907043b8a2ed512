// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/logger"
)

// MCPClient is the protocol surface the Manager needs from one upstream
// server. The production implementation wraps mark3labs/mcp-go; tests
// substitute fakes.
type MCPClient interface {
	// Initialize performs the MCP handshake.
	Initialize(ctx context.Context) error

	// ListTools returns the tools the server advertises.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes a tool by name.
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)

	// Close tears down the transport.
	Close() error
}

// ClientFactory creates a transport-appropriate MCPClient for a server.
// The returned client is started but not yet initialized.
type ClientFactory func(ctx context.Context, cfg *config.ServerConfig) (MCPClient, error)

// DefaultClientFactory builds mark3labs/mcp-go clients for the stdio, SSE
// and streamable-http transports.
func DefaultClientFactory(ctx context.Context, cfg *config.ServerConfig) (MCPClient, error) {
	var (
		c   *client.Client
		err error
	)

	switch cfg.Transport {
	case config.TransportStdio:
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		// The stdio client spawns the subprocess and starts its own
		// read loop; no explicit Start is needed.
		c, err = client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdio client for %s: %w", cfg.ID, err)
		}

	case config.TransportSSE:
		c, err = client.NewSSEMCPClient(cfg.URL, transport.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE client for %s: %w", cfg.ID, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start SSE client for %s: %w", cfg.ID, err)
		}

	case config.TransportStreamableHTTP:
		c, err = client.NewStreamableHttpClient(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("failed to create streamable-http client for %s: %w", cfg.ID, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start streamable-http client for %s: %w", cfg.ID, err)
		}

	default:
		return nil, fmt.Errorf("unsupported transport %q for server %s", cfg.Transport, cfg.ID)
	}

	return &mcpGoClient{client: c, serverID: cfg.ID}, nil
}

// mcpGoClient adapts a mark3labs/mcp-go client to the MCPClient interface.
type mcpGoClient struct {
	client   *client.Client
	serverID string
}

func (m *mcpGoClient) Initialize(ctx context.Context) error {
	result, err := m.client.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "toolhub",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		return err
	}
	logger.Debugw("initialized upstream server",
		"server", m.serverID,
		"name", result.ServerInfo.Name,
		"version", result.ServerInfo.Version)
	return nil
}

func (m *mcpGoClient) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := m.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema := map[string]any{"type": t.InputSchema.Type}
		if t.InputSchema.Properties != nil {
			schema["properties"] = t.InputSchema.Properties
		}
		if len(t.InputSchema.Required) > 0 {
			schema["required"] = t.InputSchema.Required
		}
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
			ServerID:    m.serverID,
		})
	}
	return tools, nil
}

func (m *mcpGoClient) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	result, err := m.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, err
	}

	content := make([]Content, 0, len(result.Content))
	for _, c := range result.Content {
		content = append(content, convertContent(c))
	}
	return &ToolResult{Content: content, IsError: result.IsError}, nil
}

func (m *mcpGoClient) Close() error {
	return m.client.Close()
}

// convertContent maps mcp-go content to the hub's wire shape. Unknown
// content kinds are preserved as an untyped marker rather than dropped.
func convertContent(content mcp.Content) Content {
	if text, ok := mcp.AsTextContent(content); ok {
		return Content{Type: "text", Text: text.Text}
	}
	if img, ok := mcp.AsImageContent(content); ok {
		return Content{Type: "image", Data: img.Data, MimeType: img.MIMEType}
	}
	if audio, ok := mcp.AsAudioContent(content); ok {
		return Content{Type: "audio", Data: audio.Data, MimeType: audio.MIMEType}
	}
	logger.Warnf("Encountered unknown content type %T, marking as unknown", content)
	return Content{Type: "unknown"}
}
