package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upb/dataguardian/app"
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/internal/auth"
	"github.com/upb/dataguardian/internal/observability"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/routes"
	"github.com/upb/dataguardian/services/schema"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// bootstrap loads configuration and builds the logger shared by every command
func bootstrap(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address, overrides SERVER_HOST and PORT"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			addr := cfg.Server.Address()
			if c.String("addr") != "" {
				addr = c.String("addr")
			}
			return runServer(ctx, cfg, logger, addr)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, addr string) error {
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.Error("shutdown incomplete", zap.Error(err))
		}
	}()

	if cfg.Cleanup.Interval > 0 {
		if err := deps.Sweeper.Start(cfg.Cleanup.Interval); err != nil {
			return err
		}
		logger.Info("cleanup sweeper started", zap.Duration("interval", cfg.Cleanup.Interval))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           routes.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("environment", cfg.Environment))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// inferResult is what infer prints
type inferResult struct {
	ContentHash string               `json:"content_hash"`
	RowCount    int                  `json:"row_count"`
	Schema      []models.Column      `json:"schema"`
	Stats       *models.DatasetStats `json:"stats"`
}

func inferCommand() *cli.Command {
	return &cli.Command{
		Name:      "infer",
		Usage:     "Print the inferred schema and statistics of a CSV file",
		ArgsUsage: "<file.csv | ->",
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("a CSV file argument is required")
			}

			// the privacy policy is the only configuration inference needs
			policy, err := config.LoadPrivacyPolicy(os.Getenv("PRIVACY_POLICY_FILE"))
			if err != nil {
				return err
			}
			result, err := infer(ctx, path, schema.NewInferencer(policy))
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, result)
		},
	}
}

func infer(ctx context.Context, path string, inferencer *schema.Inferencer) (*inferResult, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	table, err := schema.Parse(data)
	if err != nil {
		return nil, err
	}
	columns, stats, err := inferencer.Infer(ctx, table)
	if err != nil {
		return nil, err
	}
	return &inferResult{
		ContentHash: schema.ContentHash(data),
		RowCount:    len(table.Rows),
		Schema:      columns,
		Stats:       stats,
	}, nil
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Run one cleanup sweep against the configured store and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			deps, err := app.NewDependencies(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(context.Background()) }()

			report, err := deps.Sweeper.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, report)
		},
	}
}

func actorTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "actor-token",
		Usage: "Mint an actor JWT for the owner API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "role", Value: string(auth.RoleCitizen), Usage: "citizen, app or admin"},
			&cli.StringFlag{Name: "subject", Required: true, Usage: "who the token identifies"},
			&cli.DurationFlag{Name: "ttl", Usage: "lifetime, defaults to JWT_TTL"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.New(ctx)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("JWT_SECRET must be set to mint actor tokens")
			}
			issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}

			ttl := c.Duration("ttl")
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := issuer.Mint(c.String("subject"), auth.Role(c.String("role")), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
