package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"corsserve/api"
	"corsserve/browser"
	"corsserve/config"
	"corsserve/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run(context.Background(), os.Stdout, browser.System))
}

// run starts the server and blocks until an interrupt. It returns the
// process exit code: 0 after a clean stop, 1 when config, bind or serving fails.
func run(ctx context.Context, out io.Writer, open browser.Opener) int {
	configPath, envPath, err := config.DefaultPaths()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer log.Close()

	server, err := api.NewServer(cfg, log)
	if err != nil {
		log.Error("Failed to create server", map[string]interface{}{
			"error": err.Error(),
			"root":  cfg.Server.Root,
		})
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Error("Failed to start server", map[string]interface{}{
			"error": err.Error(),
			"addr":  cfg.Server.Addr(),
		})
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		server.Shutdown()
		return 1
	}

	testURL := server.URL(cfg.Browser.TestPage)
	printBanner(out, server.Root(), server.URL(""), testURL)

	if cfg.Browser.Open {
		if err := browser.Launch(log, open, testURL); err != nil {
			fmt.Fprintf(out, "Please manually open: %s\n\n", testURL)
		} else {
			fmt.Fprintf(out, "Opened test page in your browser!\n\n")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Wait)
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Server stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "\nServer stopped by user\n")
	log.Info("Shutdown complete", nil)
	return 0
}

func printBanner(out io.Writer, root, serverURL, testURL string) {
	fmt.Fprintf(out, "ML Kit Pose Detection Test Server\n")
	fmt.Fprintf(out, "Serving files from: %s\n", root)
	fmt.Fprintf(out, "Server running at: %s\n", serverURL)
	fmt.Fprintf(out, "Test page: %s\n", testURL)
	fmt.Fprintf(out, "Press Ctrl+C to stop the server\n\n")
}
