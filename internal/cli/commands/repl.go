package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/apperr"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli/output"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/present"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/schema"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/workflow"
)

const (
	sqlPrompt   = "mcpchat> "
	askPrompt   = "mcpchat? "
	contPrompt  = "    ...> "
	historyName = "history"
)

// lineReader is the part of *readline.Instance the REPL loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// NewReplCommand creates the repl command.
func NewReplCommand(rt *Runtime) *cobra.Command {
	creds := &credentials{}
	var format string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive query console in the terminal",
		Long: `Validate the credentials once, then read queries interactively.

SQL statements end with a semicolon. Switch to natural language with
".mode ask", where every line is a question. Type .help for commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
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

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          sqlPrompt,
				HistoryFile:     historyFile(),
				AutoComplete:    newCompleter(nil),
				InterruptPrompt: "^C",
				EOFPrompt:       ".quit",
				Stdin:           io.NopCloser(cmd.InOrStdin()),
				Stdout:          cmd.OutOrStdout(),
				Stderr:          cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("failed to initialize REPL: %w", err)
			}
			defer func() { _ = rl.Close() }()

			repl := &replSession{
				wf:     wf,
				s:      s,
				r:      r,
				mode:   workflow.ModeSQL,
				format: format,
				onSchema: func(m *schema.Map) {
					rl.Config.AutoComplete = newCompleter(m)
				},
			}
			r.Printf("mcpchat REPL (%s)\n", wf.Provider())
			r.Println("Type .help for commands, .quit to exit")
			r.Println()
			return repl.run(ctx, rl)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatTable, "Output format: table, csv, md, json, html")
	cmd.Flags().String("provider", "", "LLM provider: gemini or openai")
	cmd.Flags().String("model", "", "Model name")
	addLLMFlags(cmd, creds)
	addDBFlags(cmd, creds)
	return cmd
}

// replSession is the state of one interactive console.
type replSession struct {
	wf       *workflow.Workflow
	s        *session.Session
	r        *output.Renderer
	mode     workflow.Mode
	format   string
	onSchema func(m *schema.Map)
}

func (p *replSession) prompt() string {
	if p.mode == workflow.ModeAsk {
		return askPrompt
	}
	return sqlPrompt
}

func (p *replSession) run(ctx context.Context, rl lineReader) error {
	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(p.prompt())
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Handle dot-commands
		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := p.dotCommand(ctx, line); quit {
				return nil
			}
			rl.SetPrompt(p.prompt())
			continue
		}

		if p.mode == workflow.ModeAsk {
			p.execute(ctx, workflow.ModeAsk, line)
			continue
		}

		// Accumulate multi-line SQL until semicolon
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString("\n")
			rl.SetPrompt(contPrompt)
			continue
		}
		rl.SetPrompt(p.prompt())

		query := strings.TrimSuffix(buf.String(), ";")
		buf.Reset()
		p.execute(ctx, workflow.ModeSQL, query)
	}
}

// execute runs one query and prints the outcome. Errors are reported and
// the loop continues.
func (p *replSession) execute(ctx context.Context, mode workflow.Mode, text string) {
	if mode == workflow.ModeAsk && p.s.Schema() == nil {
		if !p.loadSchema(ctx) {
			return
		}
	}
	out, err := p.wf.RunQuery(ctx, p.s, mode, text)
	if err != nil {
		p.report(err)
		return
	}
	if mode == workflow.ModeAsk {
		p.r.Info("ℹ️ Generated SQL: " + out.SQL)
	}
	if err := renderResult(p.r, out.Result, p.format); err != nil {
		p.report(err)
		return
	}
	if out.Result.Kind == present.KindTable {
		p.r.Success(out.Result.Message())
	}
	p.r.Println()
}

func (p *replSession) loadSchema(ctx context.Context) bool {
	m, err := p.wf.LoadSchema(ctx, p.s)
	if err != nil {
		p.report(err)
		return false
	}
	if p.onSchema != nil {
		p.onSchema(m)
	}
	p.r.Info(fmt.Sprintf("ℹ️ Schema loaded (%d tables).", m.Len()))
	return true
}

func (p *replSession) report(err error) {
	p.r.Error(apperr.UserMessage(err))
}

// dotCommand handles a console command. It returns true to quit.
func (p *replSession) dotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(p.r.Writer())

	case ".mode":
		mode, err := workflow.ParseMode(rest)
		if err != nil || rest == "" {
			p.r.Warning("Usage: .mode sql|ask")
			return false
		}
		p.mode = mode
		p.r.Info("ℹ️ Mode: " + string(mode))

	case ".format":
		if err := validateFormat(rest); err != nil {
			p.r.Warning(err.Error())
			return false
		}
		p.format = rest

	case ".ask":
		if rest == "" {
			p.r.Warning("Usage: .ask <question>")
			return false
		}
		p.execute(ctx, workflow.ModeAsk, rest)

	case ".schema":
		if !p.loadSchema(ctx) {
			return false
		}
		m := p.s.Schema()
		if m.IsRaw() {
			p.r.Println(m.Raw)
			return false
		}
		for _, table := range m.Tables() {
			p.r.Printf("%s(%s)\n", table, strings.Join(m.Columns(table), ", "))
		}

	case ".csv":
		if rest == "" {
			p.r.Warning("Usage: .csv <file>")
			return false
		}
		p.writeCSV(rest)

	case ".clear":
		p.r.Printf("\033[H\033[2J")

	default:
		p.r.Warning(fmt.Sprintf("Unknown command: %s (type .help for commands)", command))
	}
	return false
}

func (p *replSession) writeCSV(path string) {
	res, _, ok := p.s.Result()
	if !ok || res.Kind != present.KindTable {
		p.r.Warning("⚠️ No table result to export yet.")
		return
	}
	b, err := res.CSV()
	if err == nil {
		err = os.WriteFile(path, b, 0600)
	}
	if err != nil {
		p.r.Error(fmt.Sprintf("❌ Failed to write %s: %v", path, err))
		return
	}
	p.r.Success(fmt.Sprintf("✅ Wrote %d rows to %s", res.Table.Len(), path))
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help             Show this help message
  .mode sql|ask     Switch between literal SQL and natural language
  .ask <question>   Ask one question without switching mode
  .schema           Load and list tables and columns
  .format <fmt>     Output format: table, csv, md, json, html
  .csv <file>       Save the last table result as CSV
  .clear            Clear the screen
  .quit / .exit     Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for table names after .schema
`
	_, _ = fmt.Fprintln(w, help)
}

// newCompleter creates a readline completer for dot-commands and, once
// loaded, table names.
func newCompleter(m *schema.Map) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, table := range m.Tables() {
		items = append(items, readline.PcItem(table))
	}
	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".mode", readline.PcItem("sql"), readline.PcItem("ask")),
		readline.PcItem(".ask"),
		readline.PcItem(".schema"),
		readline.PcItem(".format",
			readline.PcItem(FormatTable), readline.PcItem(FormatCSV), readline.PcItem(FormatMarkdown),
			readline.PcItem(FormatJSON), readline.PcItem(FormatHTML)),
		readline.PcItem(".csv"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}

// historyFile keeps REPL history in the user cache directory.
func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "mcpchat")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return ""
	}
	return filepath.Join(dir, historyName)
}
