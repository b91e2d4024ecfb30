package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"campaign-dialer/internal/audit"
	"campaign-dialer/internal/calls"
	"campaign-dialer/internal/config"
	"campaign-dialer/internal/dnc"
	"campaign-dialer/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// CallReader is the read side of the call ledger.
type CallReader interface {
	Get(ctx context.Context, id string) (calls.Call, error)
	ListByInstance(ctx context.Context, instanceID string) ([]calls.Call, error)
}

type store struct {
	dnc   *dnc.Registry
	calls CallReader
	close func()
}

type opener func(ctx context.Context, dsn string) (*store, error)

// postgresStore opens the production tables. An empty dsn is built from the
// DB_* variables (a .env file is honored).
func postgresStore(ctx context.Context, dsn string) (*store, error) {
	if dsn == "" {
		var err error
		if dsn, err = dsnFromEnv(); err != nil {
			return nil, err
		}
	}
	db, err := utils.OpenPostgres(ctx, dsn, utils.PostgresPoolConfig{MaxOpenConns: 2})
	if err != nil {
		return nil, err
	}
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	return &store{
		dnc:   dnc.NewRegistry(dnc.NewPostgresRepo(db), auditSvc),
		calls: calls.NewPostgresRepo(db),
		close: func() { _ = db.Close() },
	}, nil
}

func dsnFromEnv() (string, error) {
	config.LoadDotEnv()
	c := config.Config{DB: config.DBConfig{
		Host:     strings.TrimSpace(os.Getenv("DB_HOST")),
		User:     strings.TrimSpace(os.Getenv("DB_USER")),
		Password: os.Getenv("DB_PASSWORD"),
		Name:     strings.TrimSpace(os.Getenv("DB_NAME")),
		SSLMode:  strings.TrimSpace(os.Getenv("DB_SSLMODE")),
		Port:     5432,
	}}
	if p := strings.TrimSpace(os.Getenv("DB_PORT")); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &c.DB.Port); err != nil {
			return "", fmt.Errorf("DB_PORT must be an integer, got %q", p)
		}
	}
	if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
		return "", fmt.Errorf("pass --dsn or set DB_HOST, DB_USER and DB_NAME")
	}
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	return c.PostgresDSN(), nil
}
