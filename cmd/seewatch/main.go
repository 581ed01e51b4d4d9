package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/seewatch/internal/adapter/driven/github"
	"github.com/ericfisherdev/seewatch/internal/adapter/driven/notify"
	"github.com/ericfisherdev/seewatch/internal/adapter/driven/portal"
	sqliteadapter "github.com/ericfisherdev/seewatch/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/seewatch/internal/adapter/driven/sso"
	"github.com/ericfisherdev/seewatch/internal/application"
	"github.com/ericfisherdev/seewatch/internal/config"
	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", envOr("SEEWATCH_CONFIG", "config.yaml"), "path to the YAML config file")
	flag.Parse()

	// 1. Load configuration (fail fast on invalid values).
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	base := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(base)
	slog.Info("config loaded",
		"config", *configPath,
		"db_path", cfg.DBPath,
		"pages", len(cfg.Pages),
		"lectures", cfg.LectureURL != "",
		"notifiers", cfg.Notifiers,
		"schedule", cfg.Schedule,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", db.Path())

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Debug("schema up to date", "version", version)

	// 5. Wire adapters.
	stateStore := sqliteadapter.NewStateRepo(db)
	sessionStore := sqliteadapter.NewSessionRepo(db, cfg.SecretKey)

	var noticeSource driven.NoticeSource
	if len(cfg.Pages) > 0 {
		scraper, err := portal.NewNoticeScraper(cfg.PortalURL, cfg.NoticeSelectorClass, nil)
		if err != nil {
			return err
		}
		noticeSource = scraper
	}

	var lectureSource driven.LectureSource
	if cfg.LectureURL != "" {
		encryptor, err := sso.NewEncryptor(sso.DefaultPublicKey)
		if err != nil {
			return err
		}
		auth := sso.NewAuthenticator(
			model.Credential{Username: cfg.Username, Password: cfg.Password},
			encryptor,
			sso.DefaultEndpoints(),
			cfg.CaptchaPlaceholder,
			nil,
		)
		lectureSource = portal.NewPoller(auth, cfg.LectureURL, nil)
	}

	fanout := application.NewFanout(cfg.Notifiers,
		notify.NewLocal(),
		notify.NewServerChanTurbo(cfg.SCTKey, nil),
		notify.NewServerChan3(cfg.SC3Key, nil),
		githubadapter.NewIssueNotifier(cfg.GitHubToken, cfg.GitHubRepo),
	)

	// 6. Create watch service.
	watchSvc := application.NewWatchService(noticeSource, lectureSource, stateStore, sessionStore, fanout,
		application.WatchOptions{Pages: cfg.Pages, ReportErrors: cfg.ReportErrors})

	// 7. Run once, or on the configured schedule until signalled.
	if cfg.Schedule == "" {
		return runOnce(ctx, base, watchSvc)
	}
	return runScheduled(ctx, base, cfg.Schedule, watchSvc)
}

// runOnce tags the cycle with a fresh run_id and executes it.
func runOnce(ctx context.Context, base *slog.Logger, svc *application.WatchService) error {
	slog.SetDefault(base.With("run_id", uuid.NewString()))
	defer slog.SetDefault(base)

	if err := svc.Execute(ctx); err != nil {
		return fmt.Errorf("watch cycle: %w", err)
	}
	return nil
}

func runScheduled(ctx context.Context, base *slog.Logger, spec string, svc *application.WatchService) error {
	logger := cronLogger{base.With("component", "cron")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(spec, func() {
		// Failures are already logged (and reported) by Execute.
		_ = runOnce(ctx, base, svc)
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	slog.Info("seewatch scheduled", "schedule", spec)
	c.Start()

	<-ctx.Done()
	slog.Info("shutting down")

	// Wait for a running cycle to finish.
	<-c.Stop().Done()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
