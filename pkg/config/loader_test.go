package config_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/ahdev/chatgate/pkg/config"
	"github.com/ahdev/chatgate/pkg/state"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(newTestLogger(), "no-such-config-file")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("server.address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.Chat.Room != "global_chat" || cfg.Chat.MaxMessageLength != 1000 {
		t.Errorf("unexpected chat defaults: %+v", cfg.Chat)
	}
	if cfg.Chat.DropPolicy != "skip" {
		t.Errorf("chat.dropPolicy = %q, want skip", cfg.Chat.DropPolicy)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store.backend = %q, want memory", cfg.Store.Backend)
	}
	// The codec secret falls back to the JWT secret when unset.
	if cfg.Server.Auth.EncryptionSecret != cfg.Server.Auth.JWTSecret {
		t.Errorf("encryptionSecret = %q, want fallback to jwtSecret", cfg.Server.Auth.EncryptionSecret)
	}
}

func TestLoadRejectsInvalidDropPolicy(t *testing.T) {
	t.Setenv("CHATGATE_CHAT_DROPPOLICY", "bogus")
	if _, err := config.Load(newTestLogger(), "no-such-config-file"); err == nil {
		t.Error("Load accepted an invalid drop policy")
	}
}

func TestPermissionRegistry(t *testing.T) {
	if err := config.RegisterPermission("chat:admin"); err == nil {
		t.Error("RegisterPermission accepted a reserved built-in name")
	}

	if err := config.RegisterPermission("chat:moderate"); err != nil {
		t.Fatalf("RegisterPermission failed: %v", err)
	}
	if err := config.RegisterPermission("chat:moderate"); err == nil {
		t.Error("RegisterPermission accepted a duplicate name")
	}

	perms, err := config.CompilePermissions([]string{"chat:read", "chat:admin"})
	if err != nil {
		t.Fatalf("CompilePermissions failed: %v", err)
	}
	if !perms.Has(state.PermChatRead) || !perms.Has(state.PermChatAdmin) {
		t.Errorf("compiled bitmap %b is missing expected bits", perms)
	}
	if perms.Has(state.PermChatWrite) {
		t.Errorf("compiled bitmap %b has an unexpected bit", perms)
	}

	if _, err := config.CompilePermissions([]string{"chat:unknown"}); err == nil {
		t.Error("CompilePermissions accepted an unregistered name")
	}
}
