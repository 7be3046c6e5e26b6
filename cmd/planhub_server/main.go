package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vkotov/planhub/internal/auth"
	"github.com/vkotov/planhub/internal/config"
	"github.com/vkotov/planhub/internal/database"
	"github.com/vkotov/planhub/internal/email"
	"github.com/vkotov/planhub/internal/hub"
	"github.com/vkotov/planhub/internal/invite"
	"github.com/vkotov/planhub/internal/repository"
)

var (
	gitRevision = "unknown"
	gitBranch   = "unknown"
)

type App struct {
	logger *slog.Logger
	config *config.AppConfig

	dbm      *database.DatabaseManager
	users    repository.UserRepository
	hub      *hub.Hub
	invites  *invite.Manager
	verifier *auth.Verifier
}

func NewApp(cfg *config.AppConfig) *App {
	app := &App{
		logger:   slog.Default(),
		config:   cfg,
		users:    repository.NewFileUserRepo(cfg.UsersFile()),
		hub:      hub.New(),
		verifier: auth.NewVerifier(cfg.Secret()),
	}

	db, err := gorm.Open(sqlite.Open(cfg.DB()), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	if err != nil {
		app.logger.Error("db open error", slog.Any("error", err))

		return nil
	}

	// one in-memory database per connection otherwise
	if cfg.DB() == ":memory:" {
		if d, err := db.DB(); err == nil {
			d.SetMaxOpenConns(1)
		}
	}

	app.dbm = database.New(db)

	var mail email.Sender

	if addr := cfg.SMTPAddr(); addr != "" {
		mail = email.NewSMTPSender(addr, cfg.SMTPFrom())
	} else {
		mail = email.NewLogSender()
	}

	app.invites = invite.New(app.dbm, app.users, mail, cfg.InviteTTL(), cfg.InviteSweep(), cfg.BaseURL())

	return app
}

func (app *App) Run(ctx context.Context) error {
	if err := app.dbm.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if err := app.users.Start(); err != nil {
		return fmt.Errorf("users: %w", err)
	}

	defer app.users.Stop()

	app.hub.Start()
	defer app.hub.Stop()

	app.invites.Start(ctx)

	api := NewAPI(app, app.config.Address())

	go func() {
		if err := api.Listen(); err != nil {
			app.logger.Error("http error", slog.Any("error", err))
		}
	}()

	app.logger.Info("server started", slog.String("addr", app.config.Address()))

	<-ctx.Done()
	app.logger.Info("exiting")

	return api.Shutdown()
}

func main() {
	fmt.Printf("version %s %s\n", gitRevision, gitBranch)

	debug := flag.Bool("debug", false, "debug logging")
	conf := flag.String("config", "planhub.yml", "name of config file")
	flag.Parse()

	cfg := config.NewAppConfig()
	cfg.Load(*conf)

	if err := cfg.LoadEnv("PLANHUB_"); err != nil {
		panic(err)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}

	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))

	if len(cfg.Secret()) == 0 {
		slog.Error("no token secret configured")
		os.Exit(1)
	}

	app := NewApp(cfg)

	if app == nil {
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		slog.Error("error", slog.Any("error", err))
		os.Exit(1)
	}
}
