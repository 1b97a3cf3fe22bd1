package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/echodoc-ai/echodoc/internal/dotenv"
	"github.com/echodoc-ai/echodoc/internal/serve"
)

func runMain(ctx context.Context, stderr io.Writer, deps serve.Deps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadDefaults(); err != nil {
		fmt.Fprintf(stderr, "echodoc-server: %v\n", err)
		return 1
	}

	if err := serve.Run(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "echodoc-server: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, serve.DefaultDeps()))
}
