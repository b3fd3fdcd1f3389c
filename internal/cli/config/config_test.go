package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/llm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcpchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, DefaultPort, cfg.UI.Port)
	assert.Equal(t, DefaultSessionIdleTimeout, cfg.UI.SessionIdleTimeout)
	assert.Equal(t, llm.ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, 20*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, DefaultBridgeCommand, cfg.Bridge.Command)
	assert.Equal(t, DefaultConnectionFlag, cfg.Bridge.ConnectionFlag)
	assert.Equal(t, 45*time.Second, cfg.Bridge.ProbeTimeout)
	assert.Equal(t, 60*time.Second, cfg.Bridge.QueryTimeout)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DevSessionSecret, cfg.Secret())
}

func TestLoad_FindsFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcpchat.yml"), []byte("ui:\n  port: 9000\n"), 0600))
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "mcpchat.yml", cfg.File)
	assert.Equal(t, 9000, cfg.UI.Port)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `ui:
  port: 9100
  session_idle_timeout: 5m
llm:
  provider: OpenAI
  model: gpt-4o
  temperature: 0.2
bridge:
  command: node
  args: ["server.js", "--stdio"]
  connection_flag: ""
  connection_env: MSSQL_CONNECTION_STRING
  query_timeout: 90s
log:
  level: debug
  format: json
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, 9100, cfg.UI.Port)
	assert.Equal(t, 5*time.Minute, cfg.UI.SessionIdleTimeout)
	assert.Equal(t, llm.ProviderOpenAI, cfg.LLM.Provider, "provider is normalized")
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "node", cfg.Bridge.Command)
	assert.Equal(t, []string{"server.js", "--stdio"}, cfg.Bridge.Args)
	assert.Empty(t, cfg.Bridge.ConnectionFlag)
	assert.Equal(t, "MSSQL_CONNECTION_STRING", cfg.Bridge.ConnectionEnv)
	assert.Equal(t, 90*time.Second, cfg.Bridge.QueryTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

// TestLoad_EnvPrecedenceOverFile tests that env vars override config file.
func TestLoad_EnvPrecedenceOverFile(t *testing.T) {
	path := writeConfig(t, "ui:\n  port: 9100\nllm:\n  model: from_file\n")
	t.Setenv("MCPCHAT_UI__PORT", "9200")
	t.Setenv("MCPCHAT_LLM__MODEL", "from_env")
	t.Setenv("MCPCHAT_API_KEY", "sk-not-config")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.UI.Port)
	assert.Equal(t, "from_env", cfg.LLM.Model)
}

// TestLoad_FlagPrecedence tests that flags override env vars and config file.
func TestLoad_FlagPrecedence(t *testing.T) {
	path := writeConfig(t, "llm:\n  model: from_file\n")
	t.Setenv("MCPCHAT_LLM__MODEL", "from_env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("model", "", "model")
	flags.StringSlice("bridge-arg", nil, "bridge args")
	require.NoError(t, flags.Set("model", "from_flag"))
	require.NoError(t, flags.Set("bridge-arg", "--stdio"))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "from_flag", cfg.LLM.Model, "flag value should override config file and env var")
	assert.Equal(t, []string{"--stdio"}, cfg.Bridge.Args)
}

// TestLoad_FlagNotSetUsesEnv tests that unset flags fall back to env vars.
func TestLoad_FlagNotSetUsesEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MCPCHAT_LOG__LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "log level")
	flags.String("unrelated", "x", "not a config flag")
	require.NoError(t, flags.Set("unrelated", "y"))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level, "env var should be used when flag is not set")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			UI:     UIConfig{Port: 8765, SessionIdleTimeout: time.Minute},
			LLM:    LLMConfig{Provider: "gemini", Timeout: time.Second},
			Bridge: BridgeConfig{Command: "mssql-mcp", ProbeTimeout: time.Second, QueryTimeout: time.Second},
			Log:    LogConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errSubstr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "claude" }, `llm.provider "claude" is not supported`},
		{"empty command", func(c *Config) { c.Bridge.Command = " " }, "bridge.command is required"},
		{"zero probe timeout", func(c *Config) { c.Bridge.ProbeTimeout = 0 }, "bridge.probe_timeout must be positive"},
		{"negative query timeout", func(c *Config) { c.Bridge.QueryTimeout = -time.Second }, "bridge.query_timeout must be positive"},
		{"zero llm timeout", func(c *Config) { c.LLM.Timeout = 0 }, "llm.timeout must be positive"},
		{"zero idle timeout", func(c *Config) { c.UI.SessionIdleTimeout = 0 }, "ui.session_idle_timeout must be positive"},
		{"bad port", func(c *Config) { c.UI.Port = 70000 }, "ui.port must be between"},
		{"bad temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestLoad_InvalidRejected(t *testing.T) {
	path := writeConfig(t, "llm:\n  provider: claude\n")

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfig_YAMLMasksSecret(t *testing.T) {
	path := writeConfig(t, "ui:\n  session_secret: super-secret-value\n")
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "super-secret-value")

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "***", doc["ui"]["session_secret"])
	assert.Equal(t, "1m0s", doc["bridge"]["query_timeout"])
	assert.Equal(t, "gemini", doc["llm"]["provider"])
}

func TestConfig_Conversions(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)

	opts := cfg.BridgeOptions("1.2.3")
	assert.Equal(t, DefaultBridgeCommand, opts.Command)
	assert.Equal(t, "1.2.3", opts.ClientVersion)

	wf := cfg.WorkflowConfig()
	assert.Equal(t, cfg.Bridge.ProbeTimeout, wf.ProbeTimeout)
	assert.Equal(t, cfg.LLM.Timeout, wf.LLMTimeout)

	assert.Equal(t, llm.ProviderGemini, cfg.LLMProvider().Provider)
	assert.Equal(t, "info", cfg.LogOptions().Level)
}
