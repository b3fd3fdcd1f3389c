// Package config provides configuration management for the mcpchat CLI.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/llm"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/mcpbridge"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/workflow"
)

// Config holds all CLI configuration options.
type Config struct {
	UI     UIConfig     `koanf:"ui"`
	LLM    LLMConfig    `koanf:"llm"`
	Bridge BridgeConfig `koanf:"bridge"`
	Log    LogConfig    `koanf:"log"`
}

// UIConfig holds configuration for the UI server.
type UIConfig struct {
	Port               int           `koanf:"port"`
	SessionSecret      string        `koanf:"session_secret"`
	SessionIdleTimeout time.Duration `koanf:"session_idle_timeout"`
	DatastarSrc        string        `koanf:"datastar_src"`
	AutoOpen           bool          `koanf:"auto_open"`
}

// LLMConfig selects and tunes the SQL-generating model.
type LLMConfig struct {
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	Timeout     time.Duration `koanf:"timeout"`
	Temperature float64       `koanf:"temperature"`
}

// BridgeConfig describes how the MCP SQL tool is launched.
type BridgeConfig struct {
	Command        string        `koanf:"command"`
	Args           []string      `koanf:"args"`
	ConnectionFlag string        `koanf:"connection_flag"`
	ConnectionEnv  string        `koanf:"connection_env"`
	ProbeTimeout   time.Duration `koanf:"probe_timeout"`
	QueryTimeout   time.Duration `koanf:"query_timeout"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default configuration values.
const (
	DefaultPort               = 8765
	DefaultSessionIdleTimeout = 30 * time.Minute
	DefaultBridgeCommand      = "mssql-mcp"
	DefaultConnectionFlag     = "--connection-string"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"

	// DevSessionSecret signs cookies when no secret is configured.
	DevSessionSecret = "mcpchat-dev-secret-change-in-production" //nolint:gosec
)

// defaults is the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"ui.port":                 DefaultPort,
		"ui.session_secret":       "",
		"ui.session_idle_timeout": DefaultSessionIdleTimeout.String(),
		"ui.datastar_src":         "",
		"ui.auto_open":            false,
		"llm.provider":            llm.ProviderGemini,
		"llm.model":               "",
		"llm.base_url":            "",
		"llm.timeout":             workflow.DefaultLLMTimeout.String(),
		"llm.temperature":         0.0,
		"bridge.command":          DefaultBridgeCommand,
		"bridge.args":             []string{},
		"bridge.connection_flag":  DefaultConnectionFlag,
		"bridge.connection_env":   "",
		"bridge.probe_timeout":    workflow.DefaultProbeTimeout.String(),
		"bridge.query_timeout":    workflow.DefaultQueryTimeout.String(),
		"log.level":               DefaultLogLevel,
		"log.format":              DefaultLogFormat,
	}
}

// LLMProvider returns the provider settings as an llm.Config.
func (c *Config) LLMProvider() llm.Config {
	return llm.Config{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		BaseURL:     c.LLM.BaseURL,
		Timeout:     c.LLM.Timeout,
		Temperature: c.LLM.Temperature,
	}
}

// BridgeOptions returns the launcher settings.
func (c *Config) BridgeOptions(version string) mcpbridge.Options {
	return mcpbridge.Options{
		Command:        c.Bridge.Command,
		Args:           append([]string(nil), c.Bridge.Args...),
		ConnectionFlag: c.Bridge.ConnectionFlag,
		ConnectionEnv:  c.Bridge.ConnectionEnv,
		ClientVersion:  version,
	}
}

// WorkflowConfig returns the operation timeouts.
func (c *Config) WorkflowConfig() workflow.Config {
	return workflow.Config{
		LLMTimeout:   c.LLM.Timeout,
		ProbeTimeout: c.Bridge.ProbeTimeout,
		QueryTimeout: c.Bridge.QueryTimeout,
	}
}

// LogOptions returns the logger settings.
func (c *Config) LogOptions() observability.LogConfig {
	return observability.LogConfig{Level: c.Log.Level, Format: c.Log.Format}
}

// Secret returns the cookie signing secret, falling back to DevSessionSecret.
func (c *Config) Secret() string {
	if c.UI.SessionSecret != "" {
		return c.UI.SessionSecret
	}
	return DevSessionSecret
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	secret := ""
	if c.UI.SessionSecret != "" {
		secret = "***"
	}
	args := c.Bridge.Args
	if args == nil {
		args = []string{}
	}
	doc := map[string]any{
		"ui": map[string]any{
			"port":                 c.UI.Port,
			"session_secret":       secret,
			"session_idle_timeout": c.UI.SessionIdleTimeout.String(),
			"datastar_src":         c.UI.DatastarSrc,
			"auto_open":            c.UI.AutoOpen,
		},
		"llm": map[string]any{
			"provider":    c.LLM.Provider,
			"model":       c.LLM.Model,
			"base_url":    c.LLM.BaseURL,
			"timeout":     c.LLM.Timeout.String(),
			"temperature": c.LLM.Temperature,
		},
		"bridge": map[string]any{
			"command":         c.Bridge.Command,
			"args":            args,
			"connection_flag": c.Bridge.ConnectionFlag,
			"connection_env":  c.Bridge.ConnectionEnv,
			"probe_timeout":   c.Bridge.ProbeTimeout.String(),
			"query_timeout":   c.Bridge.QueryTimeout.String(),
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}
	return yaml.Marshal(doc)
}
