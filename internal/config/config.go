package config

import (
	"sync"
)

// Config is the root configuration for the agent core. Unlike the gateway
// it was derived from, this core runs one agent in one process — there is
// no per-tenant agent list, channel bindings, or cron scheduler here.
type Config struct {
	Agent     AgentConfig                `json:"agent"`
	Providers ProvidersConfig            `json:"providers"`
	Tools     ToolsConfig                `json:"tools"`
	MCPServers map[string]*MCPServerConfig `json:"mcp_servers,omitempty"`
	Session   SessionConfig              `json:"session"`
	Database  DatabaseConfig             `json:"database,omitempty"`
	Telemetry TelemetryConfig            `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// AgentConfig holds the knobs listed in the configuration table: model
// selection, workspace, and the loop's bounded-concurrency and retry
// parameters.
type AgentConfig struct {
	Workspace           string  `json:"workspace"`
	RestrictToWorkspace bool    `json:"restrict_to_workspace"`
	Provider            string  `json:"provider"`
	Model               string  `json:"model"`
	MaxTokens           int     `json:"max_tokens"`
	Temperature         float64 `json:"temperature"`
	ContextWindow       int     `json:"context_window"`

	MaxToolRounds          int `json:"max_tool_rounds"`
	MaxConcurrentToolCalls int `json:"max_concurrent_tool_calls"`
	MinRequestIntervalMs   int `json:"min_request_interval_ms"`
	MaxRetries             int `json:"max_retries"`
	MaxCorrectionAttempts  int `json:"max_correction_attempts"`
	MaxIdenticalRequests   int `json:"max_identical_requests"`
	LoopDetectionWindow    int `json:"loop_detection_window"`
	OperationHistoryCap    int `json:"operation_history_cap"`
	ReadPoolSize           int `json:"read_pool_size"`
	WritePoolSize          int `json:"write_pool_size"`
}

// ProviderConfig holds the credentials for one LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"-"` // from env only, never persisted
	APIBase string `json:"api_base,omitempty"`
}

// ProvidersConfig configures the two transports the core ships: Anthropic
// and OpenAI-compatible chat completions.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic,omitempty"`
	OpenAI    ProviderConfig `json:"openai,omitempty"`
}

// ExecApprovalConfig gates how aggressively the exec tool's deny-list applies.
type ExecApprovalConfig struct {
	Security string `json:"security,omitempty"` // "full" (default) or "relaxed"
}

// ToolsConfig configures the tool registry and default policy.
type ToolsConfig struct {
	ExecTimeoutSec int                 `json:"exec_timeout_sec,omitempty"`
	ExecApproval   ExecApprovalConfig  `json:"exec_approval,omitempty"`
	Policy         ToolPolicySpec      `json:"policy,omitempty"`
}

// ToolPolicySpec mirrors tools.ToolPolicy for JSON configuration.
type ToolPolicySpec struct {
	Profile   string   `json:"profile,omitempty"`
	Allow     []string `json:"allow,omitempty"`
	Deny      []string `json:"deny,omitempty"`
	AlsoAllow []string `json:"also_allow,omitempty"`
}

// MCPServerConfig describes one MCP server to connect to at startup.
type MCPServerConfig struct {
	Transport  string            `json:"transport"` // "stdio", "sse", "streamable-http"
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	ToolPrefix string            `json:"tool_prefix,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty"` // default true (nil = enabled)
}

// IsEnabled returns whether this server should be connected to.
func (m *MCPServerConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// SessionConfig controls where the session transcript and metrics files live.
type SessionConfig struct {
	LogPath    string `json:"log_path,omitempty"`    // default ~/.grok/session.log
	MetricsDir string `json:"metrics_dir,omitempty"` // default <tmp>/grok-cli-logs
}

// DatabaseConfig configures the optional Postgres mirror of operation and
// tool-metric history. PostgresDSN is never read from the config file, only
// from env, since it is a secret.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Enabled     bool   `json:"enabled,omitempty"`
}

// TelemetryConfig configures OpenTelemetry span export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the hot-reload watcher to swap in a freshly parsed config.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agent = src.Agent
	c.Providers = src.Providers
	c.Tools = src.Tools
	c.MCPServers = src.MCPServers
	c.Session = src.Session
	c.Database = src.Database
	c.Telemetry = src.Telemetry
}
