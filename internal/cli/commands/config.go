package commands

import (
	"github.com/spf13/cobra"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file,
MCPCHAT_ environment variables and flags. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded := config.GetConfig(cmd.Context())
			if loaded == nil {
				return errConfigNotLoaded
			}
			out, err := loaded.YAML()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			file := loaded.File
			if file == "" {
				file = "none"
			}
			_, _ = w.Write([]byte("# config file: " + file + "\n"))
			_, err = w.Write(out)
			return err
		},
	}
}
