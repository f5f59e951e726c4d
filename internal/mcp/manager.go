package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"

	"github.com/forgekit/agentcore/internal/config"
	"github.com/forgekit/agentcore/internal/tools"
)

const (
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
)

// ServerStatus reports the connection status of an MCP server.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"tool_count"`
	Error     string `json:"error,omitempty"`
}

// serverState tracks a single MCP server connection.
type serverState struct {
	name       string
	transport  string
	client     *mcpclient.Client
	connected  atomic.Bool
	toolNames  []string
	timeoutSec int
	cancel     context.CancelFunc

	mu             sync.Mutex
	reconnAttempts int
	lastErr        string
}

// Manager owns MCP server connections and bridges their tools into the
// core's own tools.Registry. A Reload registers and unregisters bridged
// tools in that live registry straight away; the agent loop sees the new
// tool list in the schemas it advertises at the next chat round.
type Manager struct {
	mu       sync.RWMutex
	servers  map[string]*serverState
	registry *tools.Registry
	configs  map[string]*config.MCPServerConfig
}

type ManagerOption func(*Manager)

// WithConfigs sets the static MCP server configs to connect to on Start.
func WithConfigs(cfgs map[string]*config.MCPServerConfig) ManagerOption {
	return func(m *Manager) {
		m.configs = cfgs
	}
}

func NewManager(registry *tools.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		servers:  make(map[string]*serverState),
		registry: registry,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start connects to all configured, enabled MCP servers. Non-fatal: logs
// warnings for servers that fail to connect and continues with the rest.
func (m *Manager) Start(ctx context.Context) error {
	if len(m.configs) == 0 {
		return nil
	}

	var errs []string
	for name, cfg := range m.configs {
		if !cfg.IsEnabled() {
			slog.Info("mcp.server.disabled", "server", name)
			continue
		}
		m.mu.RLock()
		_, connected := m.servers[name]
		m.mu.RUnlock()
		if connected {
			continue
		}
		if err := m.connectServer(ctx, name, cfg.Transport, cfg.Command, cfg.Args, cfg.Env, cfg.URL, cfg.Headers, cfg.ToolPrefix, cfg.TimeoutSec); err != nil {
			slog.Warn("mcp.server.connect_failed", "server", name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("some MCP servers failed to connect: %s", joinErrors(errs))
	}
	return nil
}

// Reload connects newly-added or newly-enabled servers and disconnects ones
// removed from cfgs. Servers that are already connected are left as they
// are. Tool changes land in the live registry immediately.
func (m *Manager) Reload(ctx context.Context, cfgs map[string]*config.MCPServerConfig) error {
	m.mu.Lock()
	old := m.configs
	m.configs = cfgs
	m.mu.Unlock()

	for name := range old {
		if _, ok := cfgs[name]; !ok {
			m.disconnectServer(name)
		}
	}
	return m.Start(ctx)
}

// Stop shuts down all MCP server connections and unregisters their tools.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, ss := range m.servers {
		m.teardown(name, ss)
	}
	m.servers = make(map[string]*serverState)
	tools.UnregisterToolGroup("mcp")
}

func (m *Manager) disconnectServer(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss, ok := m.servers[name]
	if !ok {
		return
	}
	m.teardown(name, ss)
	delete(m.servers, name)
}

func (m *Manager) teardown(name string, ss *serverState) {
	if ss.cancel != nil {
		ss.cancel()
	}
	if ss.client != nil {
		if err := ss.client.Close(); err != nil {
			slog.Debug("mcp.server.close_error", "server", name, "error", err)
		}
	}
	for _, toolName := range ss.toolNames {
		m.registry.Unregister(toolName)
	}
	tools.UnregisterToolGroup("mcp:" + name)
}

// ServerStatus returns the status of all connected MCP servers.
func (m *Manager) ServerStatus() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(m.servers))
	for _, ss := range m.servers {
		statuses = append(statuses, ServerStatus{
			Name:      ss.name,
			Transport: ss.transport,
			Connected: ss.connected.Load(),
			ToolCount: len(ss.toolNames),
			Error:     ss.lastErr,
		})
	}
	return statuses
}

// ToolNames returns all registered MCP tool names across connected servers.
func (m *Manager) ToolNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, ss := range m.servers {
		names = append(names, ss.toolNames...)
	}
	return names
}

// updateMCPGroup rebuilds the "mcp" group with all MCP tool names across
// servers. Must be called with m.mu NOT held (it acquires RLock).
func (m *Manager) updateMCPGroup() {
	allNames := m.ToolNames()
	if len(allNames) > 0 {
		tools.RegisterToolGroup("mcp", allNames)
	} else {
		tools.UnregisterToolGroup("mcp")
	}
}
