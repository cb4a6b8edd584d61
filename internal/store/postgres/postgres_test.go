package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/capitalize-ai/healthassist/internal/store"
	"github.com/capitalize-ai/healthassist/internal/store/storetest"
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dsn, PoolOptions{MaxConns: 2})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(pool.Close)

	storetest.Run(t, func(t *testing.T, now store.Clock) store.Store {
		s, err := New(ctx, pool, now)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := pool.Exec(ctx, "TRUNCATE messages, conversations"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/chat", "postgres://u:p@localhost:5432/chat"},
		{"postgresql+asyncpg://u:p@db/chat", "postgresql://u:p@db/chat"},
		{"  postgres+pgx://u@db/chat ", "postgres://u@db/chat"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeDSN(tt.in); got != tt.want {
			t.Errorf("normalizeDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig("postgres+pgx://u:p@db:5432/chat", PoolOptions{
		MaxConns:        12,
		MaxConnIdleTime: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}

	if cfg.MaxConns != 12 {
		t.Errorf("MaxConns = %d, want 12", cfg.MaxConns)
	}
	if cfg.MaxConnIdleTime != 30*time.Second {
		t.Errorf("MaxConnIdleTime = %v", cfg.MaxConnIdleTime)
	}
	if cfg.MaxConnLifetime <= 0 {
		t.Errorf("MaxConnLifetime = %v, want the pgx default", cfg.MaxConnLifetime)
	}
	if cfg.ConnConfig.Host != "db" || cfg.ConnConfig.Database != "chat" {
		t.Errorf("conn = %s/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	}
}

func TestPoolConfigRejectsGarbage(t *testing.T) {
	if _, err := poolConfig("postgres://u:p@db:notaport/chat", PoolOptions{}); err == nil {
		t.Fatal("poolConfig accepted an invalid port")
	}
}
