package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vedaverse/followerbot/internal/api"
	"github.com/vedaverse/followerbot/internal/backend"
	"github.com/vedaverse/followerbot/internal/flow"
	"github.com/vedaverse/followerbot/internal/messaging"
	"github.com/vedaverse/followerbot/internal/models"
	"github.com/vedaverse/followerbot/internal/session"
	"github.com/vedaverse/followerbot/internal/telegram"
	"github.com/vedaverse/followerbot/internal/util"
)

// Default configuration constants
const (
	// DefaultAPIAddr is the default listen address for the HTTP API
	DefaultAPIAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown of the HTTP server
	DefaultShutdownTimeout = 10 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if *flags.botToken == "" {
		slog.Error("TELEGRAM_BOT_TOKEN is required")
		os.Exit(1)
	}
	if *flags.backendURL == "" {
		slog.Error("BACKEND_URL is required")
		os.Exit(1)
	}

	slog.Info("Bootstrapping follower bot")
	if err := run(flags); err != nil {
		slog.Error("Follower bot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Follower bot exited successfully")
}

// Config holds environment configuration
type Config struct {
	BotToken       string
	BotName        string
	BackendURL     string
	BackendAPIKey  string
	APIAddr        string
	ResumeAtField  bool
	RequestTimeout time.Duration
}

// Flags holds command line flag values
type Flags struct {
	botToken       *string
	botName        *string
	backendURL     *string
	backendAPIKey  *string
	apiAddr        *string
	resumeAtField  *bool
	requestTimeout *time.Duration
}

// initializeLogger sets up structured logging with the level taken from LOG_LEVEL
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		BotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		BotName:        os.Getenv("BOT_NAME"),
		BackendURL:     os.Getenv("BACKEND_URL"),
		BackendAPIKey:  os.Getenv("BACKEND_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		ResumeAtField:  util.ParseBoolEnv("RESUME_AT_MISSING_FIELD", false),
		RequestTimeout: util.ParseDurationEnv("BACKEND_TIMEOUT", backend.DefaultRequestTimeout),
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}
	return config
}

// parseCommandLineFlags parses flags with environment values as defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		botToken:       flag.String("bot-token", config.BotToken, "Telegram bot token (env TELEGRAM_BOT_TOKEN)"),
		botName:        flag.String("bot-name", config.BotName, "Bot username used in generated deep links (env BOT_NAME)"),
		backendURL:     flag.String("backend-url", config.BackendURL, "Base URL of the content backend (env BACKEND_URL)"),
		backendAPIKey:  flag.String("backend-api-key", config.BackendAPIKey, "Bearer token for the content backend (env BACKEND_API_KEY)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "HTTP API listen address (env API_ADDR)"),
		resumeAtField:  flag.Bool("resume-at-missing-field", config.ResumeAtField, "Resume partial interviews at the first unanswered question (env RESUME_AT_MISSING_FIELD)"),
		requestTimeout: flag.Duration("backend-timeout", config.RequestTimeout, "Per-request backend timeout (env BACKEND_TIMEOUT)"),
	}
	flag.Parse()
	return flags
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tg, err := telegram.NewClient(telegram.WithToken(*flags.botToken))
	if err != nil {
		return err
	}
	me, err := tg.GetMe(ctx)
	if err != nil {
		return err
	}
	botName := *flags.botName
	if botName == "" {
		botName = me.Username
	}
	slog.Info("Telegram identity confirmed", "bot_id", me.ID, "bot_username", me.Username)

	gateway, err := backend.NewClient(
		backend.WithBaseURL(*flags.backendURL),
		backend.WithAPIKey(*flags.backendAPIKey),
		backend.WithTimeout(*flags.requestTimeout),
	)
	if err != nil {
		return err
	}

	svc := messaging.NewTelegramService(tg)

	flowOpts := []flow.Option{
		flow.WithAvatarCapture(avatarCapture(tg, gateway)),
	}
	if *flags.resumeAtField {
		flowOpts = append(flowOpts, flow.WithResumeAtMissing())
	}
	engine := flow.NewEngine(session.New(), gateway, svc, flowOpts...)
	dispatcher := messaging.NewDispatcher(engine)

	if err := svc.Start(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{Addr: *flags.apiAddr, Handler: api.NewServer(botName).Router()}
	httpErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", *flags.apiAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	dispatchDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx, svc.Events())
		close(dispatchDone)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-httpErr:
		stop()
		slog.Error("HTTP API failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP API shutdown incomplete", "error", err)
	}
	if err := svc.Stop(); err != nil {
		slog.Warn("Messaging service stop failed", "error", err)
	}
	<-dispatchDone
	dispatcher.Wait()
	return nil
}

// avatarCapture downloads a user's primary profile photo and uploads it to
// the backend. Failures are swallowed; registration never depends on the
// avatar making it across.
func avatarCapture(tg *telegram.Client, gateway *backend.Client) flow.AvatarFunc {
	return func(ctx context.Context, userID models.UserID) (int64, bool) {
		data, filename, ok, err := tg.ProfilePhoto(ctx, int64(userID))
		if err != nil {
			slog.Warn("Profile photo download failed", "user_id", userID, "error", err)
			return 0, false
		}
		if !ok {
			return 0, false
		}
		mediaID, err := gateway.UploadImage(ctx, filename, data)
		if err != nil {
			slog.Warn("Profile photo upload failed", "user_id", userID, "error", err)
			return 0, false
		}
		return mediaID, true
	}
}
