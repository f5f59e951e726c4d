package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/forgekit/agentcore/internal/tools"
)

// BridgeTool adapts a single tool discovered on an MCP server into the
// core's tools.Tool interface, naming it mcp__<server>__<tool> per the
// registry convention so the LLM can disambiguate identically-named tools
// across servers.
type BridgeTool struct {
	server     string
	origName   string
	desc       string
	schema     map[string]any
	client     *mcpclient.Client
	toolPrefix string
	timeout    time.Duration
	connected  *atomic.Bool
}

var _ tools.Tool = (*BridgeTool)(nil)

func NewBridgeTool(server string, t mcpgo.Tool, client *mcpclient.Client, toolPrefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	schema := map[string]any{"type": "object"}
	if raw, err := json.Marshal(t.InputSchema); err == nil {
		var m map[string]any
		if json.Unmarshal(raw, &m) == nil && m != nil {
			schema = m
		}
	}
	return &BridgeTool{
		server:     server,
		origName:   t.Name,
		desc:       t.Description,
		schema:     schema,
		client:     client,
		toolPrefix: toolPrefix,
		timeout:    time.Duration(timeoutSec) * time.Second,
		connected:  connected,
	}
}

// Name returns the fully-qualified tool name advertised to the LLM.
func (b *BridgeTool) Name() string {
	prefix := b.toolPrefix
	if prefix == "" {
		prefix = b.server
	}
	return fmt.Sprintf("mcp__%s__%s", prefix, b.origName)
}

// OriginalName returns the tool's bare name as advertised by the MCP server.
func (b *BridgeTool) OriginalName() string { return b.origName }

func (b *BridgeTool) Description() string { return b.desc }

func (b *BridgeTool) Parameters() map[string]any { return b.schema }

func (b *BridgeTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	if b.connected != nil && !b.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("mcp server %q is not connected", b.server))
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if b.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.origName
	req.Params.Arguments = args

	res, err := b.client.CallTool(callCtx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("mcp call %s/%s: %v", b.server, b.origName, err))
	}

	text := extractText(res)
	if res.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// extractText concatenates all text-bearing content blocks of an MCP tool
// result; non-text content (images, resources) is noted but not inlined.
func extractText(res *mcpgo.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
