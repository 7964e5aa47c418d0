// Package main provides the prims CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/born-ml/prims/internal/cli"
	"github.com/born-ml/prims/internal/ctxlog"
)

// main is the entrypoint for the prims application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	return cli.Run(ctx, cfg, outW)
}
