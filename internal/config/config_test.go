package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("ACCOUNTS_DATABASE_DSN", "postgres://localhost/accounts")
	t.Setenv("ACCOUNTS_SESSION_TTL", "2h")
	t.Setenv("ACCOUNTS_RATELIMIT_BURST", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "postgres://localhost/accounts" {
		t.Fatalf("dsn not taken from env: %q", cfg.Database.DSN)
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Fatalf("unexpected ttl: %v", cfg.Session.TTL)
	}
	if cfg.RateLimit.Burst != 7 {
		t.Fatalf("unexpected burst: %d", cfg.RateLimit.Burst)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Session.CookieName != "user_session" || !cfg.Security.RevokeSessionsOnReset {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")
	content := `
store: memory
mail:
  mode: smtp
  smtp_host: smtp.example.com
  smtp_port: 2525
cors:
  allowed_origins:
    - https://app.example.com
security:
  revoke_sessions_on_reset: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store != "memory" || cfg.Mail.SMTPPort != 2525 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://app.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Security.RevokeSessionsOnReset {
		t.Fatal("expected revoke_sessions_on_reset=false from file")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("ACCOUNTS_STORE", "postgres")
	t.Setenv("ACCOUNTS_DATABASE_DSN", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected missing dsn error")
	}

	t.Setenv("ACCOUNTS_STORE", "memory")
	t.Setenv("ACCOUNTS_MAIL_MODE", "pigeon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected invalid mail mode error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
