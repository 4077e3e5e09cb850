package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/dividircuenta/split-check/internal/extraction"
	"github.com/dividircuenta/split-check/internal/logging"
	"github.com/dividircuenta/split-check/internal/splitcheck"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("split-check")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "split-check.db", "Database file path")
		anthropicKey   = fs.StringLong("anthropic-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
		anthropicModel = fs.StringLong("anthropic-model", "claude-sonnet-4-20250514", "Anthropic model name")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		maxImageSize   = fs.IntLong("max-image-size", extraction.DefaultMaxImageSize, "Size in bytes above which uploads are recompressed")
		maxDimension   = fs.IntLong("max-dimension", extraction.DefaultMaxDimension, "Longest image edge in pixels kept when recompressing")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SPLIT_CHECK"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logging.Setup()

	slog.Info("Initializing database...")
	db, err := splitcheck.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	claudeKey := *anthropicKey
	if claudeKey == "" {
		claudeKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if claudeKey == "" {
		slog.Error("Anthropic API key is required. Set --anthropic-key flag or ANTHROPIC_API_KEY environment variable")
		os.Exit(1)
	}

	googleKey := *geminiKey
	if googleKey == "" {
		googleKey = os.Getenv("GEMINI_API_KEY")
	}
	if googleKey == "" {
		slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		os.Exit(1)
	}

	slog.Info("Initializing extraction providers...", "primary", *anthropicModel, "fallback", *geminiModel)
	primary, err := extraction.NewClaude(claudeKey, *anthropicModel, "")
	if err != nil {
		slog.Error("Failed to initialize Claude provider", "error", err)
		os.Exit(1)
	}
	fallback, err := extraction.NewGemini(context.Background(), googleKey, *geminiModel)
	if err != nil {
		slog.Error("Failed to initialize Gemini provider", "error", err)
		os.Exit(1)
	}
	pipeline := extraction.NewPipeline(primary, fallback)
	defer pipeline.Close()

	service := splitcheck.NewService(db, pipeline, *maxImageSize, *maxDimension)

	basicAuth := splitcheck.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := splitcheck.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
