package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/pdf-fieldstamp/internal/config"
	"github.com/a3tai/pdf-fieldstamp/internal/mcp"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf"
)

// Set with -ldflags at release time
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// setupLogging routes the standard logger. In stdio mode stdout carries the
// protocol, so logs go to stderr and only when debugging.
func setupLogging(cfg *config.Config) {
	switch {
	case cfg.IsStdioMode() && cfg.IsDebug():
		log.SetOutput(os.Stderr)
	case cfg.IsStdioMode():
		log.SetOutput(io.Discard)
	default:
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}

func newService(cfg *config.Config) (*pdf.Service, error) {
	return pdf.NewService(pdf.Options{
		MaxFileSize:     cfg.MaxFileSize,
		TemplateDir:     cfg.TemplateDirectory,
		OutputDir:       cfg.OutputDirectory,
		ConfidenceFloor: cfg.ConfidenceFloor,
		MaxLabelGap:     cfg.MaxLabelGap,
		CacheSize:       cfg.CacheSize,
		Logger:          log.Default(),
	})
}

// serve runs the server until it stops or, in server mode, until a
// termination signal arrives. A stdio server ends when stdin closes.
func serve(cfg *config.Config, server *mcp.Server) error {
	ctx := context.Background()
	if cfg.IsServerMode() {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer stop()
	}

	err := server.Run(ctx)
	if ctx.Err() != nil {
		log.Println("Shutdown signal received, server stopped")
		return nil
	}
	return err
}

func run() int {
	cfg, err := config.LoadFromFlags()
	if errors.Is(err, config.ErrVersionRequested) {
		printVersion(os.Stdout)
		return 0
	}
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	setupLogging(cfg)
	if version != "dev" {
		cfg.Version = version
	}
	if cfg.IsDebug() {
		log.Printf("Starting with configuration: %s", cfg)
	}

	service, err := newService(cfg)
	if err != nil {
		log.Printf("Failed to create template service: %v", err)
		return 1
	}
	server, err := mcp.NewServer(cfg, service)
	if err != nil {
		log.Printf("Failed to create MCP server: %v", err)
		return 1
	}

	if err := serve(cfg, server); err != nil {
		log.Printf("Server error: %v", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MCP PDF Fieldstamp\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
