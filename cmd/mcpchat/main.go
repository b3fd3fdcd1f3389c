// Package main is the mcpchat command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	os.Exit(cli.ExitCode(err))
}
