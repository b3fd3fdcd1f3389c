package commands

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/config"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/ui"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web console",
		Long: `Start a local web server with the gated query console.

The console asks for an LLM API key and database credentials, validates
both, and only then allows queries. Credentials live in server memory for
the lifetime of the browser session and are never written to disk.`,
		Example: `  # Start on the default port
  mcpchat serve

  # Custom port, open the browser
  mcpchat serve --port 3000 --open`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, rt)
		},
	}

	cmd.Flags().Int("port", 0, fmt.Sprintf("Port to serve on (default: %d)", config.DefaultPort))
	cmd.Flags().Bool("open", false, "Open the console in a browser")
	cmd.Flags().String("datastar-src", "", "URL of the datastar client bundle")
	cmd.Flags().String("provider", "", "LLM provider: gemini or openai")
	cmd.Flags().String("model", "", "Model name")
	cmd.Flags().String("bridge-command", "", "MCP SQL tool executable")
	cmd.Flags().StringSlice("bridge-arg", nil, "Extra argument for the MCP SQL tool (repeatable)")

	return cmd
}

func runServe(cmd *cobra.Command, rt *Runtime) error {
	cfg, err := getConfig(cmd)
	if err != nil {
		return err
	}
	logger := config.GetLogger(cmd.Context())

	if cfg.UI.SessionSecret == "" {
		logger.Warn("ui.session_secret is not set, using the development secret")
	}

	metrics := observability.NewMetrics(nil)
	wf, err := rt.Workflow(cfg, metrics, cmd)
	if err != nil {
		return err
	}

	server := ui.NewServer(ui.Config{
		Workflow:      wf,
		Metrics:       metrics,
		Port:          cfg.UI.Port,
		SessionSecret: cfg.Secret(),
		IdleTimeout:   cfg.UI.SessionIdleTimeout,
		DatastarSrc:   cfg.UI.DatastarSrc,
		Logger:        logger,
	})

	r := renderer(cmd)
	go func() {
		url, ok := <-server.Ready()
		if !ok {
			return
		}
		r.Success("✅ Console running on " + url)
		r.Info("Press Ctrl+C to stop")
		if cfg.UI.AutoOpen {
			openBrowser(url)
		}
	}()

	return server.Serve(cmd.Context())
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
