package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"canvassync/internal/auth"
	"canvassync/internal/canvas"
	"canvassync/internal/config"
	"canvassync/internal/google"
	"canvassync/internal/icloud"
	"canvassync/internal/syncer"
	"canvassync/internal/ticktick"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "canvassync",
		Usage: "Sync open Canvas assignments into a task manager.",
		Commands: []*cli.Command{
			authCommand(),
			syncCommand(),
			configCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize a task manager account and store its token.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "provider", Value: config.SinkTickTick, Usage: "ticktick or google"},
		},
		Action: func(c *cli.Context) error {
			env := config.LoadEnv()
			logger := setupLogger(env.LogLevel)
			provider := strings.ToLower(c.String("provider"))

			oauthConfig, err := oauthConfigFor(provider, env)
			if err != nil {
				return err
			}
			logger.Info("Starting authentication flow.", "provider", provider)

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code (or paste the URL you were redirected to): \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			input, _ := reader.ReadString('\n')

			token, err := auth.TokenFromWeb(c.Context, oauthConfig, authCode(input))
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			tokenFile := auth.TokenFile(provider)
			if err := auth.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Copy open Canvas assignments into the configured task manager.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.StringFlag{Name: "config", Value: config.DefaultPath, Usage: "Path to the rule file."},
			&cli.IntFlag{Name: "watch", Usage: "Run sync every N seconds."},
		},
		Action: func(c *cli.Context) error {
			env := config.LoadEnv()
			logger := setupLogger(env.LogLevel)

			if err := env.Validate(); err != nil {
				return err
			}
			cfg, err := config.Load(c.String("config"), logger)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			dryRun := c.Bool("dry-run")
			if dryRun {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			canvasAuth, err := canvas.ResolveAuth(logger, env.CanvasToken, env.CanvasSessionCookie, env.CanvasStateFile)
			if err != nil {
				return err
			}
			source, err := canvas.NewClient(logger, env.CanvasURL, canvasAuth)
			if err != nil {
				return fmt.Errorf("failed to create canvas client: %w", err)
			}

			sink, err := buildSink(c.Context, logger, env)
			if err != nil {
				return fmt.Errorf("failed to create %s client: %w", env.Sink, err)
			}

			s, err := syncer.NewSyncer(logger, source, syncer.NewBreakerSink(sink, logger, syncer.DefaultBreakerConfig()), cfg)
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}

			if !c.IsSet("watch") {
				logger.Info("Running a single sync cycle.")
				stats, err := s.Sync(c.Context, dryRun)
				if err != nil {
					return fmt.Errorf("sync cycle failed: %w", err)
				}
				fmt.Println(stats.String())
				return nil
			}

			interval := time.Duration(c.Int("watch")) * time.Second
			if interval <= 0 {
				return fmt.Errorf("--watch must be a positive number of seconds")
			}
			logger.Info("Starting watcher.", "interval", interval)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				stats, err := s.Sync(c.Context, dryRun)
				if err != nil {
					logger.Error("Sync cycle failed", "error", err)
				} else {
					fmt.Println(stats.String())
				}

				select {
				case <-c.Context.Done():
					logger.Info("Watcher stopped.")
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the rule file.",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write the default rule file.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Value: config.DefaultPath, Usage: "Path to the rule file."},
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file."},
				},
				Action: func(c *cli.Context) error {
					logger := setupLogger(config.LoadEnv().LogLevel)
					path := c.String("config")

					if _, err := os.Stat(path); err == nil && !c.Bool("force") {
						return fmt.Errorf("%s already exists, use --force to overwrite it", path)
					} else if err != nil && !errors.Is(err, os.ErrNotExist) {
						return err
					}
					if err := config.Save(path, config.DefaultConfig()); err != nil {
						return fmt.Errorf("failed to write config: %w", err)
					}
					logger.Info("Wrote default config.", "path", path)
					return nil
				},
			},
		},
	}
}

func oauthConfigFor(provider string, env config.Env) (*oauth2.Config, error) {
	switch provider {
	case config.SinkTickTick:
		return ticktick.OAuthConfig(env.TickTickClientID, env.TickTickClientSecret)
	case config.SinkGoogle:
		return google.OAuthConfig(env.GoogleClientID, env.GoogleClientSecret)
	default:
		return nil, fmt.Errorf("unsupported provider %q: use %s or %s", provider, config.SinkTickTick, config.SinkGoogle)
	}
}

func buildSink(ctx context.Context, logger *slog.Logger, env config.Env) (syncer.TaskSink, error) {
	switch env.Sink {
	case config.SinkCalDAV:
		return icloud.NewClient(ctx, logger, env.CalDAVEndpoint, env.CalDAVUsername, env.CalDAVPassword, env.CalDAVDefaultList)
	case config.SinkTickTick, config.SinkGoogle:
	default:
		return nil, fmt.Errorf("unknown TASK_SINK %q", env.Sink)
	}

	oauthConfig, err := oauthConfigFor(env.Sink, env)
	if err != nil {
		return nil, err
	}
	httpClient, err := auth.HTTPClient(ctx, oauthConfig, auth.TokenFile(env.Sink))
	if err != nil {
		return nil, err
	}
	if env.Sink == config.SinkGoogle {
		return google.NewClient(ctx, logger, option.WithHTTPClient(httpClient))
	}
	return ticktick.NewClient(logger, httpClient, ticktick.DefaultBaseURL), nil
}

// authCode accepts either the bare code or the full redirect URL carrying it.
func authCode(input string) string {
	input = strings.TrimSpace(input)
	if u, err := url.Parse(input); err == nil && u.Scheme != "" {
		if code := u.Query().Get("code"); code != "" {
			return code
		}
	}
	return input
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
