// Package cli provides the command-line interface for mcpchat.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/apperr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/commands"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/config"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/output"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/observability"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(commands.DefaultRuntime(Version))
}

func newRootCmd(rt *commands.Runtime) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "mcpchat",
		Short: "mcpchat - gated SQL console over an MCP SQL bridge",
		Long: `mcpchat lets you query a SQL Server database in SQL or plain English.

Queries run through an MCP SQL tool subprocess. Nothing runs until both the
LLM API key and the database credentials have been validated.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			loaded, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger, err := observability.NewLogger(loaded.LogOptions(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if loaded.File != "" {
				logger.Debug("using config file", "path", loaded.File)
			}

			ctx := config.WithConfig(cmd.Context(), loaded)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Gated SQL console over an MCP SQL bridge
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpchat.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewServeCommand(rt))
	rootCmd.AddCommand(commands.NewCheckCommand(rt))
	rootCmd.AddCommand(commands.NewQueryCommand(rt))
	rootCmd.AddCommand(commands.NewReplCommand(rt))
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
		return err
	}
	return nil
}

// reportError prints err the way the console shows it: classified errors
// with their banner text, anything else as a plain error line.
func reportError(w io.Writer, err error) {
	var e *apperr.E
	if errors.As(err, &e) {
		output.NewRenderer(w, w).Error(apperr.UserMessage(err))
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for mcpchat.

To load completions:

Bash:
  $ source <(mcpchat completion bash)

Zsh:
  $ mcpchat completion zsh > "${fpath[1]}/_mcpchat"

Fish:
  $ mcpchat completion fish | source

PowerShell:
  PS> mcpchat completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch apperr.KindOf(err) {
	case apperr.EmptyInput:
		return 2
	default:
		return 1
	}
}
