package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahdev/chatgate/internal/auth"
	"github.com/ahdev/chatgate/internal/server"
	"github.com/ahdev/chatgate/internal/store"
	"github.com/ahdev/chatgate/pkg/config"
	"github.com/ahdev/chatgate/pkg/logging"
	"github.com/ahdev/chatgate/pkg/state"
	"github.com/ahdev/chatgate/pkg/state/statemanager"
	"github.com/ahdev/chatgate/pkg/token"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.Logging.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	directory := store.NewDirectory()
	for _, u := range cfg.Users {
		perms, err := config.CompilePermissions(u.Permissions)
		if err != nil {
			logger.Error("Invalid permissions for configured user", slog.Int64("userID", u.ID), slog.Any("error", err))
			os.Exit(1)
		}
		directory.Add(state.Identity{UserID: u.ID, Username: u.Username, Permissions: perms}, u.Active)
	}
	logger.Info("User directory seeded", slog.Int("users", len(cfg.Users)))

	codec := token.New(cfg.Server.Auth.EncryptionSecret)
	authenticator := auth.New(logger, codec, []byte(cfg.Server.Auth.JWTSecret), directory)
	manager := statemanager.NewInMemoryManager(logger, state.DropPolicy(cfg.Chat.DropPolicy))

	var msgStore store.MessageStore
	switch cfg.Store.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to connect to redis", slog.String("addr", cfg.Store.Redis.Addr), slog.Any("error", err))
			os.Exit(1)
		}
		msgStore = store.NewRedisStore(rdb, logger, cfg.Store.Redis.KeyPrefix)
		logger.Info("Message store ready", slog.String("backend", "redis"), slog.String("addr", cfg.Store.Redis.Addr))
	default:
		msgStore = store.NewMemoryStore()
		logger.Info("Message store ready", slog.String("backend", "memory"))
	}

	app := server.NewApp(logger, ctx, cfg, manager, msgStore, authenticator)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
