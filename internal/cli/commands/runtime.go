// Package commands implements the mcpchat CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/config"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/output"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/connstr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/llm"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/mcpbridge"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/workflow"
)

// Environment variables holding secrets. They are read by commands directly
// and never become part of the configuration.
const (
	EnvAPIKey     = "MCPCHAT_API_KEY"
	EnvDBPassword = "MCPCHAT_DB_PASSWORD"
)

// Runtime carries the pieces commands build their workflow from.
// Tests swap the provider and dial functions for fakes.
type Runtime struct {
	Version     string
	NewProvider func(cfg llm.Config) (llm.Provider, error)
	Dial        mcpbridge.DialFunc
	ReadSecret  func(prompt string) (string, error)
}

// DefaultRuntime wires the real LLM providers and stdio bridge.
func DefaultRuntime(version string) *Runtime {
	return &Runtime{
		Version:     version,
		NewProvider: llm.New,
		ReadSecret:  readSecretFromTTY,
	}
}

// Workflow builds the validation and query workflow from cfg.
func (rt *Runtime) Workflow(cfg *config.Config, metrics *observability.Metrics, cmd *cobra.Command) (*workflow.Workflow, error) {
	logger := config.GetLogger(cmd.Context())

	provider, err := rt.NewProvider(cfg.LLMProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	opts := cfg.BridgeOptions(rt.Version)
	var launcher *mcpbridge.Launcher
	if rt.Dial != nil {
		launcher = mcpbridge.NewLauncherWithDial(opts, rt.Dial, logger)
	} else {
		launcher = mcpbridge.NewLauncher(opts, logger)
	}

	return workflow.New(provider, workflow.FromLauncher(launcher), cfg.WorkflowConfig(), metrics, logger), nil
}

var errConfigNotLoaded = errors.New("configuration not loaded")

// getConfig returns the configuration loaded by the root command.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	loaded := config.GetConfig(cmd.Context())
	if loaded == nil {
		return nil, errConfigNotLoaded
	}
	return loaded.Config, nil
}

// credentials are the secrets a terminal session validates with.
type credentials struct {
	apiKey           string
	server           string
	database         string
	username         string
	password         string
	connectionString string
}

func addLLMFlags(cmd *cobra.Command, c *credentials) {
	cmd.Flags().StringVar(&c.apiKey, "api-key", "", "LLM API key (default: $"+EnvAPIKey+", else prompt)")
}

func addDBFlags(cmd *cobra.Command, c *credentials) {
	cmd.Flags().StringVar(&c.server, "server", "", "Database server host")
	cmd.Flags().StringVar(&c.database, "database", "", "Database name")
	cmd.Flags().StringVarP(&c.username, "username", "u", "", "Database user")
	cmd.Flags().StringVar(&c.password, "password", "", "Database password (default: $"+EnvDBPassword+", else prompt)")
	cmd.Flags().StringVar(&c.connectionString, "connection-string", "", "Raw connection string, overrides the fields above")
}

func (c *credentials) params() connstr.Params {
	return connstr.Params{
		Server:   c.server,
		Database: c.database,
		Username: c.username,
		Password: c.password,
		Raw:      c.connectionString,
	}
}

// resolveAPIKey fills the API key from the environment or a prompt.
func (rt *Runtime) resolveAPIKey(c *credentials) error {
	if c.apiKey == "" {
		c.apiKey = os.Getenv(EnvAPIKey)
	}
	if c.apiKey == "" && rt.ReadSecret != nil {
		key, err := rt.ReadSecret("API key: ")
		if err != nil {
			return err
		}
		c.apiKey = key
	}
	return nil
}

// resolvePassword fills the password from the environment or a prompt.
// A raw connection string carries its own password.
func (rt *Runtime) resolvePassword(c *credentials) error {
	if c.password != "" || strings.TrimSpace(c.connectionString) != "" {
		return nil
	}
	c.password = os.Getenv(EnvDBPassword)
	if c.password == "" && rt.ReadSecret != nil {
		pw, err := rt.ReadSecret("Password: ")
		if err != nil {
			return err
		}
		c.password = pw
	}
	return nil
}

// newSession starts a terminal session holding c.
func newSession(c *credentials) *session.Session {
	s := session.New("cli")
	s.SetAPIKey(c.apiKey)
	s.SetDBParams(c.params())
	return s
}

// readSecretFromTTY prompts on stderr and reads without echo. Without a
// terminal it returns an empty secret so validation reports the missing input.
func readSecretFromTTY(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	_, _ = fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// renderer returns a renderer for the command's streams.
func renderer(cmd *cobra.Command) *output.Renderer {
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// unlock validates both credentials, reporting each outcome.
func unlock(ctx context.Context, r *output.Renderer, wf *workflow.Workflow, s *session.Session) error {
	if err := wf.ValidateLLM(ctx, s); err != nil {
		return err
	}
	r.Success("✅ API key is valid.")
	if err := wf.ValidateDB(ctx, s); err != nil {
		return err
	}
	r.Success("✅ Database connection successful.")
	return nil
}

// closeSession stops the bridge subprocess of s.
func closeSession(s *session.Session, w io.Writer) {
	if err := s.Close(); err != nil {
		_, _ = fmt.Fprintf(w, "warning: %v\n", err)
	}
}
