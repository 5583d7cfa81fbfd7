package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/merov/graft/cmd"
)

func main() {
	// The logger must exist before the CLI parses anything, so the flag is
	// peeked here; cmd declares it for help output.
	level := slog.LevelInfo
	if slices.Contains(os.Args[1:], "--debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Root().Run(ctx, os.Args); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			slog.InfoContext(ctx, "detaching", "cause", cause)
			return
		}
		slog.Error("graft failed", "error", err)
		os.Exit(1)
	}
}
