package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cmd "github.com/dkeye/voicecall/cmd/callclient/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := cmd.RootCmd

	// Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
