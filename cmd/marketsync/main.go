package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-sync/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "marketsync:", err)
	}
	return cli.ExitCode(err)
}
