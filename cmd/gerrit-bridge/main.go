package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ryo246912/gerrit-bridge/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := cli.NewApp()
	err := app.RootCommand().ExecuteContext(ctx)
	_ = app.Close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
