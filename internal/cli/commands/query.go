package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/apperr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/output"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/workflow"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Mode   string
	Format string
	Input  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rt *Runtime) *cobra.Command {
	opts := &QueryOptions{}
	creds := &credentials{}

	cmd := &cobra.Command{
		Use:   "query [SQL or question]",
		Short: "Run one query through the SQL bridge",
		Long: `Validate the API key and database credentials, then run a single query.

In sql mode the text is sent to the database unchanged. In ask mode the
schema is loaded first and the LLM turns the question into SQL.

The query text comes from the arguments, --input, or piped stdin.`,
		Example: `  # Literal SQL
  mcpchat query --server db --database sales -u app "SELECT TOP 5 * FROM dbo.orders"

  # Natural language question, CSV output
  mcpchat query --mode ask --format csv "How many orders were placed last week?"

  # SQL from a file
  mcpchat query -i report.sql --format md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, rt, args, opts, creds)
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", string(workflow.ModeSQL), "Query mode: sql or ask")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", FormatTable, "Output format: table, csv, md, json, html")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read the query from a file")
	cmd.Flags().String("provider", "", "LLM provider: gemini or openai")
	cmd.Flags().String("model", "", "Model name")
	cmd.Flags().Duration("query-timeout", 0, "Bridge query timeout")
	addLLMFlags(cmd, creds)
	addDBFlags(cmd, creds)

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return formats, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(workflow.ModeSQL), string(workflow.ModeAsk)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, rt *Runtime, args []string, opts *QueryOptions, creds *credentials) error {
	mode, err := workflow.ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	if err := validateFormat(opts.Format); err != nil {
		return err
	}

	// Determine query source
	var text string
	switch {
	case len(args) > 0:
		text = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		text = string(content)
	case !output.IsTerminal(cmd.InOrStdin()):
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(content)
	}
	if strings.TrimSpace(text) == "" {
		return apperr.New(apperr.EmptyInput, "Please enter a query.")
	}

	cfg, err := getConfig(cmd)
	if err != nil {
		return err
	}
	if err := rt.resolveAPIKey(creds); err != nil {
		return err
	}
	if err := rt.resolvePassword(creds); err != nil {
		return err
	}
	wf, err := rt.Workflow(cfg, nil, cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	r := renderer(cmd)
	s := newSession(creds)
	defer closeSession(s, cmd.ErrOrStderr())

	if err := unlock(ctx, r, wf, s); err != nil {
		return err
	}

	if mode == workflow.ModeAsk {
		m, err := wf.LoadSchema(ctx, s)
		if err != nil {
			return err
		}
		r.Info(fmt.Sprintf("ℹ️ Schema loaded (%d tables).", m.Len()))
	}

	out, err := wf.RunQuery(ctx, s, mode, text)
	if err != nil {
		return err
	}
	if mode == workflow.ModeAsk {
		r.Info("ℹ️ Generated SQL: " + out.SQL)
	}
	return renderResult(r, out.Result, opts.Format)
}
