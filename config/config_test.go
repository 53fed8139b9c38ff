package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig("")
	if cfg.Server.Listen != ":8080" {
		t.Fatalf("unexpected listen default: %q", cfg.Server.Listen)
	}
	if cfg.Server.SessionTTL != 24*time.Hour {
		t.Fatalf("unexpected session ttl default: %s", cfg.Server.SessionTTL)
	}
	if cfg.Storage.MaxUploadBytes != 25<<20 {
		t.Fatalf("unexpected max upload default: %d", cfg.Storage.MaxUploadBytes)
	}
	if cfg.Storage.CleanupCron != "@daily" {
		t.Fatalf("unexpected cleanup cron default: %q", cfg.Storage.CleanupCron)
	}
	if cfg.Dify.Timeout != 120*time.Second {
		t.Fatalf("unexpected dify timeout default: %s", cfg.Dify.Timeout)
	}
	if cfg.OCR.TokenTTL != 10*time.Minute {
		t.Fatalf("unexpected token ttl default: %s", cfg.OCR.TokenTTL)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{URL: "postgres://u:p@h:5432/db?sslmode=disable"}
	dsn, err := p.DSN()
	if err != nil || dsn != p.URL {
		t.Fatalf("expected explicit URL preferred, got %q, %v", dsn, err)
	}

	p = PostgresConfig{Host: "localhost", User: "u", Password: "p", DBName: "docpilot"}
	dsn, err = p.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if dsn != "postgres://u:p@localhost:5432/docpilot?sslmode=disable" {
		t.Fatalf("unexpected dsn: %q", dsn)
	}

	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Fatalf("expected error for unconfigured postgres")
	}
}

func TestDifyValidate(t *testing.T) {
	if err := (DifyConfig{BaseURL: "http://dify", APIKey: "k"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (DifyConfig{APIKey: "k"}).Validate(); err == nil {
		t.Fatalf("expected error for missing base url")
	}
	if err := (DifyConfig{BaseURL: "http://dify"}).Validate(); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}
