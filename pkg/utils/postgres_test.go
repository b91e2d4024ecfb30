package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(wrapped) {
		t.Fatalf("expected unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("x")) {
		t.Fatalf("plain error is not a unique violation")
	}
}

func TestPoolDefaults(t *testing.T) {
	p := PostgresPoolConfig{MaxOpenConns: 5, MaxIdleConns: 50}.withDefaults()
	if p.MaxIdleConns != 5 {
		t.Fatalf("idle conns should be capped at open conns, got %d", p.MaxIdleConns)
	}
	if p.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout %v", p.PingTimeout)
	}
}

func TestNullHelpers(t *testing.T) {
	if NullString("").Valid || !NullString("x").Valid {
		t.Fatalf("unexpected NullString validity")
	}
	if NullTime(time.Time{}).Valid || !NullTime(time.Unix(1, 0)).Valid {
		t.Fatalf("unexpected NullTime validity")
	}
}
