// Command relayd runs a standalone ActivityPub relay daemon on Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-envconfig"
	"github.com/urfave/cli/v3"
	gu "github.com/xraph/go-utils/metrics"

	relay "github.com/fedibits/relay"
	"github.com/fedibits/relay/httpapi"
	"github.com/fedibits/relay/observability"
	"github.com/fedibits/relay/protocol"
	"github.com/fedibits/relay/signature"
	"github.com/fedibits/relay/store/redis"
)

type config struct {
	Domain         string `env:"RELAY_DOMAIN, required"`
	ListenAddr     string `env:"RELAY_LISTEN_ADDR, default=0.0.0.0:8080"`
	Protocol       string `env:"RELAY_PROTOCOL, default=direct"`
	RedisAddr      string `env:"RELAY_REDIS_ADDR, default=localhost:6379"`
	RedisPassword  string `env:"RELAY_REDIS_PASSWORD"`
	RedisDB        int    `env:"RELAY_REDIS_DB, default=0"`
	PrivateKeyFile string `env:"RELAY_PRIVATE_KEY_FILE"`
	Concurrency    int    `env:"RELAY_CONCURRENCY, default=10"`
	LogLevel       string `env:"RELAY_LOG_LEVEL, default=info"`

	// DisableVerification skips HTTP signature checks on the inbox.
	// Only for local development.
	DisableVerification bool `env:"RELAY_DISABLE_VERIFICATION, default=false"`
}

func main() {
	cmd := &cli.Command{
		Name:  "relayd",
		Usage: "ActivityPub relay daemon",
		Commands: []*cli.Command{
			serveCommand(),
			keygenCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the relay server",
		Action: serve,
		Description: `
Environment variables:
	RELAY_DOMAIN               (required)
	RELAY_LISTEN_ADDR          (default: 0.0.0.0:8080)
	RELAY_PROTOCOL             direct or reciprocal (default: direct)
	RELAY_REDIS_ADDR           (default: localhost:6379)
	RELAY_REDIS_PASSWORD
	RELAY_REDIS_DB             (default: 0)
	RELAY_PRIVATE_KEY_FILE     PEM file; generated if unset
	RELAY_CONCURRENCY          (default: 10)
	RELAY_LOG_LEVEL            (default: info)
	RELAY_DISABLE_VERIFICATION (default: false)
`,
	}
}

func serve(ctx context.Context, _ *cli.Command) error {
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	proto, err := protocol.Parse(cfg.Protocol)
	if err != nil {
		return err
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	st := redis.New(client)
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	defer st.Close()

	opts := []relay.Option{
		relay.WithStore(st),
		relay.WithDomain(cfg.Domain),
		relay.WithProtocol(proto),
		relay.WithConcurrency(cfg.Concurrency),
		relay.WithLogger(logger),
		relay.WithMetrics(observability.NewMetrics(gu.NewMetricsCollector("relay"))),
		relay.WithTracer(observability.NewTracer()),
	}

	if cfg.PrivateKeyFile != "" {
		pem, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("read private key: %w", err)
		}
		opts = append(opts, relay.WithPrivateKeyPEM(pem))
	} else {
		logger.Warn("no private key file configured, generating an ephemeral key")
	}

	rly, err := relay.New(opts...)
	if err != nil {
		return err
	}

	var verifier httpapi.Verifier
	if cfg.DisableVerification {
		logger.Warn("inbox signature verification is disabled")
	} else {
		verifier = signature.NewVerifier(rly.Resolver())
	}

	handler := httpapi.New(httpapi.Config{
		Relay:    rly,
		Verifier: verifier,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rly.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening",
			"addr", cfg.ListenAddr,
			"domain", cfg.Domain,
			"protocol", string(proto),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	rly.Stop(shutdownCtx)
	return nil
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:      "keygen",
		Usage:     "generate an RSA signing key in PEM format",
		ArgsUsage: "<output file>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			out := cmd.Args().First()
			if out == "" {
				return errors.New("output file required")
			}
			key, err := signature.GenerateKey()
			if err != nil {
				return err
			}
			return os.WriteFile(out, signature.EncodePrivateKeyPEM(key), 0o600)
		},
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
