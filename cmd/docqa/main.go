// Docqa is the multilingual document question-answering daemon.
//
// It serves the session API over HTTP, or the same operations as MCP tools
// over stdio.
//
// Configuration is read from ~/.config/docqa/config.yaml (or -config) and
// DOCQA_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Serve the HTTP API
//	docqa
//
//	# Serve MCP tools on stdin/stdout
//	docqa mcp
//
//	# Override settings from the environment
//	DOCQA_SERVER_HTTP_PORT=9000 DOCQA_GENERATOR_PROVIDER=none docqa
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/config"
	"github.com/fyrsmithlabs/docqa/internal/embeddings"
	"github.com/fyrsmithlabs/docqa/internal/generator"
	dochttp "github.com/fyrsmithlabs/docqa/internal/http"
	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/mcp"
	"github.com/fyrsmithlabs/docqa/internal/operations"
	"github.com/fyrsmithlabs/docqa/internal/session"
	"github.com/fyrsmithlabs/docqa/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type mode string

const (
	modeHTTP mode = "http"
	modeMCP  mode = "mcp"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	m, err := parseMode(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\nUsage:\n", err)
		fmt.Fprintf(os.Stderr, "  docqa [-config path]         Serve the HTTP API\n")
		fmt.Fprintf(os.Stderr, "  docqa [-config path] mcp     Serve MCP tools on stdio\n")
		fmt.Fprintf(os.Stderr, "  docqa version                Show version information\n")
		os.Exit(2)
	}
	if m == "" {
		printVersion()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, m, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "docqa: %v\n", err)
		os.Exit(1)
	}
}

// parseMode maps positional arguments to a mode. The empty mode means
// "print the version".
func parseMode(args []string) (mode, error) {
	if len(args) == 0 {
		return modeHTTP, nil
	}
	if len(args) > 1 {
		return "", fmt.Errorf("unexpected arguments: %v", args[1:])
	}
	switch args[0] {
	case "serve", "http":
		return modeHTTP, nil
	case "mcp":
		return modeMCP, nil
	case "version":
		return "", nil
	default:
		return "", fmt.Errorf("unknown command: %s", args[0])
	}
}

func printVersion() {
	fmt.Printf("docqa by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run loads configuration, wires every service and serves until ctx is done.
func run(ctx context.Context, m mode, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := newLogger(cfg, m, tel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting docqa",
		zap.String("version", version),
		zap.String("mode", string(m)),
		zap.String("embeddings_provider", cfg.Embeddings.Provider),
		zap.String("generator_provider", cfg.Generator.Provider),
		zap.String("backend", cfg.Retrieval.Backend),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	deps, err := initDependencies(ctx, cfg, logger, tel)
	if err != nil {
		return err
	}
	defer deps.Close()

	switch m {
	case modeMCP:
		server, err := mcp.NewServer(&mcp.Config{Name: "docqa", Version: version, Logger: logger}, deps.sessions)
		if err != nil {
			return fmt.Errorf("creating mcp server: %w", err)
		}
		return server.Run(ctx)
	default:
		return serveHTTP(ctx, cfg, logger, deps.sessions)
	}
}

// newLogger builds the logger from the observability section. MCP mode logs
// to stderr since stdout carries the protocol.
func newLogger(cfg *config.Config, m mode, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Observability.LogLevel)
	if err != nil {
		return nil, err
	}
	logCfg.Level = level
	logCfg.Format = cfg.Observability.LogFormat
	if m == modeMCP {
		logCfg.Output.Stream = "stderr"
	}
	logCfg.Output.OTEL = tel.IsEnabled()
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

// dependencies holds everything the transports share.
type dependencies struct {
	provider embeddings.Provider
	natsConn *nats.Conn
	sessions *session.Manager
	logger   *logging.Logger
}

// Close releases all resources in reverse order of creation.
func (d *dependencies) Close() {
	if d.sessions != nil {
		d.sessions.Close()
	}
	if d.natsConn != nil {
		if err := d.natsConn.Drain(); err != nil {
			d.natsConn.Close()
		}
	}
	if d.provider != nil {
		if err := d.provider.Close(); err != nil {
			d.logger.Warn(context.Background(), "closing embedding provider", zap.Error(err))
		}
	}
}

// initDependencies connects the embedding provider, generator, event bus and
// session manager.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry) (_ *dependencies, err error) {
	deps := &dependencies{logger: logger}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	deps.provider, err = embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:          cfg.Embeddings.Provider,
		Model:             cfg.Embeddings.Model,
		BaseURL:           cfg.Embeddings.BaseURL,
		APIKey:            cfg.Embeddings.APIKey.Value(),
		CacheDir:          cfg.Embeddings.CacheDir,
		Dimension:         cfg.Embeddings.Dimension,
		RequestsPerSecond: cfg.Embeddings.RequestsPerSecond,
		Logger:            logger.Underlying(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	logger.Info(ctx, "embedding provider ready",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
		zap.Int("dimension", deps.provider.Dimension()),
	)

	embedder, err := embeddings.NewEmbedder(embeddings.EmbedderConfig{
		Provider:  deps.provider,
		BatchSize: cfg.Embeddings.BatchSize,
		ChunkSize: cfg.Retrieval.ChunkSize,
		Logger:    logger,
		Metrics:   embeddings.NewMetrics(logger.Underlying()),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	gen, err := generator.New(generator.Config{
		Provider:    cfg.Generator.Provider,
		BaseURL:     cfg.Generator.BaseURL,
		Model:       cfg.Generator.Model,
		APIKey:      cfg.Generator.APIKey.Value(),
		Temperature: cfg.Generator.Temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
		Timeout:     cfg.Generator.Timeout.Duration(),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}

	var publisher operations.Publisher = operations.NopPublisher{}
	if cfg.Events.Enabled {
		deps.natsConn, err = operations.Connect(ctx, cfg.Events.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		publisher = deps.natsConn
		logger.Info(ctx, "publishing operation events", zap.String("url", cfg.Events.NATSURL))
	}

	deps.sessions, err = session.NewManager(session.Config{
		Embedder:  embedder,
		Generator: gen,
		Detector:  language.NewLinguaDetector(),
		Operations: operations.NewRegistry(operations.Config{
			Publisher: publisher,
			Prefix:    cfg.Events.SubjectPrefix,
			Logger:    logger,
		}),
		Backend:     cfg.Retrieval.Backend,
		TopK:        cfg.Retrieval.TopK,
		IdleTTL:     cfg.Sessions.IdleTTL.Duration(),
		MaxSessions: cfg.Sessions.MaxSessions,
		Logger:      logger,
		Tracer:      tel.Tracer("github.com/fyrsmithlabs/docqa/internal/session"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}
	return deps, nil
}

// serveHTTP runs the HTTP API until ctx is done, then shuts down within the
// configured timeout.
func serveHTTP(ctx context.Context, cfg *config.Config, logger *logging.Logger, sessions *session.Manager) error {
	server, err := dochttp.NewServer(sessions, logger, &dochttp.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout.Duration(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}
