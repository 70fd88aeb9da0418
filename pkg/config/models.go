package config

import "time"

type Config struct {
	Logging     LoggingConfig
	Server      ServerConfig
	Transport   TransportConfig
	Chat        ChatConfig
	Store       StoreConfig
	Users       []UserConfig `mapstructure:"users"`
	Permissions []string     `mapstructure:"permissions"`
}

type LoggingConfig struct {
	Level string
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	// JWTSecret signs and verifies the access tokens themselves.
	JWTSecret string `mapstructure:"jwtSecret"`
	// EncryptionSecret feeds the token codec's key derivation. Falls back
	// to JWTSecret when unset.
	EncryptionSecret string `mapstructure:"encryptionSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

type ChatConfig struct {
	Room             string `mapstructure:"room"`
	MaxMessageLength int    `mapstructure:"maxMessageLength"`
	// DropPolicy decides what happens to a recipient whose outbound buffer
	// is full when an event is published: "skip" or "disconnect".
	DropPolicy   string `mapstructure:"dropPolicy"`
	HistoryLimit int    `mapstructure:"historyLimit"`
}

type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // "memory" or "redis"
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"keyPrefix"`
}

// UserConfig seeds the in-process user directory. In a full deployment the
// directory would be backed by the accounts service instead.
type UserConfig struct {
	ID          int64    `mapstructure:"id"`
	Username    string   `mapstructure:"username"`
	Active      bool     `mapstructure:"active"`
	Permissions []string `mapstructure:"permissions"`
}
