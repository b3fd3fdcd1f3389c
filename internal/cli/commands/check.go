package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate credentials without starting the console",
		Long: `Validate an LLM API key or database credentials from the terminal.

Both checks run exactly the same validation the web console runs.`,
	}
	cmd.AddCommand(newCheckLLMCommand(rt))
	cmd.AddCommand(newCheckDBCommand(rt))
	return cmd
}

func newCheckLLMCommand(rt *Runtime) *cobra.Command {
	creds := &credentials{}
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "Check that the LLM API key is accepted",
		Example: `  # Key from the environment
  MCPCHAT_API_KEY=... mcpchat check llm

  # OpenAI instead of Gemini
  mcpchat check llm --provider openai --api-key sk-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if err := rt.resolveAPIKey(creds); err != nil {
				return err
			}
			wf, err := rt.Workflow(cfg, nil, cmd)
			if err != nil {
				return err
			}

			s := newSession(creds)
			defer closeSession(s, cmd.ErrOrStderr())

			if err := wf.ValidateLLM(cmd.Context(), s); err != nil {
				return err
			}
			renderer(cmd).Success(fmt.Sprintf("✅ API key is valid (%s).", wf.Provider()))
			return nil
		},
	}
	addLLMFlags(cmd, creds)
	cmd.Flags().String("provider", "", "LLM provider: gemini or openai")
	cmd.Flags().String("model", "", "Model name")
	return cmd
}

func newCheckDBCommand(rt *Runtime) *cobra.Command {
	creds := &credentials{}
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Check that the database is reachable through the SQL bridge",
		Example: `  mcpchat check db --server myserver.database.windows.net --database sales --username app
  mcpchat check db --connection-string "Driver=...;Server=...;"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if err := rt.resolvePassword(creds); err != nil {
				return err
			}
			wf, err := rt.Workflow(cfg, nil, cmd)
			if err != nil {
				return err
			}

			s := newSession(creds)
			defer closeSession(s, cmd.ErrOrStderr())

			if err := wf.ValidateDB(cmd.Context(), s); err != nil {
				return err
			}
			r := renderer(cmd)
			if creds.connectionString == "" {
				r.Success(fmt.Sprintf("✅ Connected to %s on %s.", creds.database, creds.server))
			} else {
				r.Success("✅ Database connection successful.")
			}
			return nil
		},
	}
	addDBFlags(cmd, creds)
	cmd.Flags().String("bridge-command", "", "MCP SQL tool executable")
	cmd.Flags().StringSlice("bridge-arg", nil, "Extra argument for the MCP SQL tool (repeatable)")
	return cmd
}
