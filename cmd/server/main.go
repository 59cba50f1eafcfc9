package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trash2action-backend/internal/config"
	"trash2action-backend/internal/database"
	"trash2action-backend/internal/discord"
	"trash2action-backend/internal/model"
	"trash2action-backend/internal/repository"
	"trash2action-backend/internal/repository/memory"
	"trash2action-backend/internal/server"
	"trash2action-backend/internal/service"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func main() {
	var (
		configPath string
		cfg        *config.Config
	)

	app := &cli.Command{
		Name:    "trash2action",
		Usage:   "Messaging and notification backend for Trash2Action",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to an optional YAML config file",
				Sources:     cli.EnvVars("CONFIG_FILE"),
				Destination: &configPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			loaded, err := config.Load(configPath)
			if err != nil {
				return ctx, err
			}
			cfg = loaded
			if err := setupLogger(cfg.LogLevel, cfg.IsProduction(), os.Stderr); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 0 {
				return fmt.Errorf("unknown command %q. Run 'trash2action --help' for usage", c.Args().First())
			}
			return serve(ctx, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP and WebSocket server (default)",
				Action: func(ctx context.Context, c *cli.Command) error {
					return serve(ctx, cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations and optionally seed identities",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "seed", Usage: "YAML identity seed file to upsert"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return migrate(ctx, cfg, c.String("seed"))
				},
			},
			{
				Name:  "token",
				Usage: "issue a development access token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sub", Usage: "identity id", Required: true},
					&cli.StringFlag{Name: "name", Usage: "display name"},
					&cli.StringFlag{Name: "role", Usage: "user or responder", Value: string(model.RoleUser)},
					&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: 24 * time.Hour},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					tokens := service.NewTokenService(cfg.JWTSecret)
					token, err := tokens.Issue(model.IssueTokenRequest{
						Subject: c.String("sub"),
						Name:    c.String("name"),
						Role:    model.Role(c.String("role")),
					}, c.Duration("ttl"))
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.Root().Writer, token)
					return err
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func setupLogger(level string, production bool, out io.Writer) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	output := out
	if !production {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	log.Logger = zerolog.New(output).Level(parsedLevel).With().Timestamp().Logger()
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := server.OpenStores(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	relay, err := discord.NewRelay(log.Logger, cfg.Discord.BotToken, cfg.Discord.ChannelID)
	if err != nil {
		return err
	}

	opts := server.Options{Relay: relay}
	webhook, err := discord.NewWebhook(log.Logger, cfg.Discord.WebhookURL)
	if err != nil {
		return err
	}
	if webhook != nil {
		opts.Sinks = append(opts.Sinks, webhook)
	}

	srv, err := server.New(cfg, log.Logger, stores, opts)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.App.Listen(":" + cfg.Port)
	}()

	started := time.Now()
	log.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Env).
		Str("store", cfg.Store).
		Str("max_message", humanize.Comma(int64(cfg.Chat.MaxMessageLength))+" chars").
		Msg("Trash2Action backend running")

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info().Str("started", humanize.RelTime(started, time.Now(), "ago", "from now")).Msg("shutting down")
	if err := srv.Shutdown(5 * time.Second); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}

func migrate(ctx context.Context, cfg *config.Config, seedPath string) error {
	pool, err := database.NewPool(ctx, log.Logger, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, log.Logger, pool); err != nil {
		return err
	}
	log.Info().Msg("migrations applied")

	if seedPath == "" {
		return nil
	}

	seed, err := memory.LoadDirectory(seedPath)
	if err != nil {
		return err
	}
	identities := repository.NewIdentityRepository(pool)
	count := 0
	for _, ident := range seed.All() {
		if err := identities.Upsert(ctx, ident); err != nil {
			return err
		}
		count++
	}
	log.Info().Int("identities", count).Str("seed", seedPath).Msg("seed applied")
	return nil
}
