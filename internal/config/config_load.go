package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

const DefaultAgentID = "default"

// Default returns a Config with sensible defaults, mirroring the
// configuration table: 400 tool rounds, 2 concurrent tool calls, a 500ms
// minimum LLM request interval, 3 retries, pools of 8 reads / 2 writes.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:           "~/.agentcore/workspace",
			RestrictToWorkspace: true,
			Provider:            "anthropic",
			Model:               "claude-sonnet-4-5-20250929",
			MaxTokens:           8192,
			Temperature:         0.7,
			ContextWindow:       200000,

			MaxToolRounds:          400,
			MaxConcurrentToolCalls: 2,
			MinRequestIntervalMs:   500,
			MaxRetries:             3,
			MaxCorrectionAttempts:  3,
			MaxIdenticalRequests:   2,
			LoopDetectionWindow:    5,
			OperationHistoryCap:    10,
			ReadPoolSize:           8,
			WritePoolSize:          2,
		},
		Tools: ToolsConfig{
			ExecTimeoutSec: 60,
			ExecApproval:   ExecApprovalConfig{Security: "full"},
			Policy:         ToolPolicySpec{Profile: "coding"},
		},
		Session: SessionConfig{
			LogPath:    "~/.grok/session.log",
			MetricsDir: filepath.Join(os.TempDir(), "grok-cli-logs"),
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error — defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; API keys and the Postgres DSN are read
// ONLY from env, never persisted to the config file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("AGENTCORE_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("AGENTCORE_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.APIBase)
	envStr("AGENTCORE_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("AGENTCORE_OPENAI_BASE_URL", &c.Providers.OpenAI.APIBase)

	envStr("AGENTCORE_PROVIDER", &c.Agent.Provider)
	envStr("AGENTCORE_MODEL", &c.Agent.Model)
	envStr("AGENTCORE_WORKSPACE", &c.Agent.Workspace)

	envStr("AGENTCORE_SESSION_LOG_PATH", &c.Session.LogPath)
	envStr("AGENTCORE_METRICS_DIR", &c.Session.MetricsDir)

	envStr("AGENTCORE_POSTGRES_DSN", &c.Database.PostgresDSN)
	if c.Database.PostgresDSN != "" {
		c.Database.Enabled = true
	}

	envStr("AGENTCORE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AGENTCORE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("AGENTCORE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AGENTCORE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTCORE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	if v := os.Getenv("AGENTCORE_MAX_TOOL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.MaxToolRounds = n
		}
	}
	if v := os.Getenv("AGENTCORE_MAX_CONCURRENT_TOOL_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.MaxConcurrentToolCalls = n
		}
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 prefix of the config, used by the hot-reload
// watcher to skip no-op reloads when a file-system event fires without an
// actual content change.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// WorkspacePath returns the expanded workspace path.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Agent.Workspace)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the
// config. Call this after a hot-reload to restore runtime secrets that are
// never persisted to the config file.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
