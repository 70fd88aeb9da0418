package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.auth.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("server.connectionLimit.maxPerUser", 0)
	v.SetDefault("server.connectionLimit.mode", "reject")
	v.SetDefault("transport.readTimeout", "0s")
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("chat.room", "global_chat")
	v.SetDefault("chat.maxMessageLength", 1000)
	v.SetDefault("chat.dropPolicy", "skip")
	v.SetDefault("chat.historyLimit", 50)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.keyPrefix", "chatgate")

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("CHATGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Auth.EncryptionSecret == "" {
		cfg.Server.Auth.EncryptionSecret = cfg.Server.Auth.JWTSecret
	}

	switch cfg.Chat.DropPolicy {
	case "skip", "disconnect":
	default:
		return nil, fmt.Errorf("invalid chat.dropPolicy '%s': must be 'skip' or 'disconnect'", cfg.Chat.DropPolicy)
	}

	for _, name := range cfg.Permissions {
		if err := RegisterPermission(name); err != nil {
			return nil, err
		}
	}
	logger.Info("Permission registry loaded", "total_permissions", len(GetAllRegistered()))

	return &cfg, nil
}
