package mcpbridge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/connstr"
)

// DialFunc starts a subprocess and returns a client speaking MCP over its
// standard streams.
type DialFunc func(command string, env []string, args ...string) (ToolClient, error)

// Options configures how the bridge subprocess is launched.
type Options struct {
	Command string
	Args    []string
	// ConnectionFlag precedes the connection string on the command line.
	// Empty means the connection string is passed positionally.
	ConnectionFlag string
	// ConnectionEnv, when set, also exports the connection string under this name.
	ConnectionEnv string
	ClientName    string
	ClientVersion string
}

// Launcher spawns bridge subprocesses.
type Launcher struct {
	opts   Options
	dial   DialFunc
	logger *slog.Logger
}

// NewLauncher returns a launcher using the stdio MCP client.
func NewLauncher(opts Options, logger *slog.Logger) *Launcher {
	return NewLauncherWithDial(opts, stdioDial, logger)
}

// NewLauncherWithDial returns a launcher using a custom dial function.
func NewLauncherWithDial(opts Options, dial DialFunc, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ClientName == "" {
		opts.ClientName = "mcpchat"
	}
	return &Launcher{opts: opts, dial: dial, logger: logger}
}

func stdioDial(command string, env []string, args ...string) (ToolClient, error) {
	return client.NewStdioMCPClient(command, env, args...)
}

// Command returns the executable, arguments and extra environment used for connStr.
func (l *Launcher) Command(connStr string) (string, []string, []string) {
	args := append([]string(nil), l.opts.Args...)
	if l.opts.ConnectionFlag != "" {
		args = append(args, l.opts.ConnectionFlag, connStr)
	} else {
		args = append(args, connStr)
	}
	var env []string
	if l.opts.ConnectionEnv != "" {
		env = append(env, l.opts.ConnectionEnv+"="+connStr)
	}
	return l.opts.Command, args, env
}

// Launch starts a subprocess for connStr and completes the MCP handshake.
// On any failure the subprocess is closed.
func (l *Launcher) Launch(ctx context.Context, connStr string) (*Conn, error) {
	if strings.TrimSpace(connStr) == "" {
		return nil, ErrMissingConnection
	}

	command, args, env := l.Command(connStr)
	l.logger.Info("launching bridge",
		"command", command,
		"args", connstr.Mask(strings.Join(args, " ")))

	c, err := l.dial(command, env, args...)
	if err != nil {
		return nil, wrap(OpLaunch, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    l.opts.ClientName,
		Version: l.opts.ClientVersion,
	}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, wrap(OpInitialize, err)
	}

	return NewConn(c, l.logger), nil
}
