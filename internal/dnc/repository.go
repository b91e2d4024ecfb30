package dnc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository persists DNC entries. Insert reports whether a row was created.
type Repository interface {
	Insert(ctx context.Context, e Entry) (bool, error)
	Delete(ctx context.Context, phone string) (bool, error)
	Get(ctx context.Context, phone string) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
}

// PostgresRepo stores entries in dnc_entries (phone primary key).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, e Entry) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO dnc_entries (phone, reason, added_at)
VALUES ($1, $2, $3)
ON CONFLICT (phone) DO NOTHING`, e.Phone, e.Reason, e.AddedAt)
	if err != nil {
		return false, fmt.Errorf("insert dnc entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, phone string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dnc_entries WHERE phone = $1`, phone)
	if err != nil {
		return false, fmt.Errorf("delete dnc entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) Get(ctx context.Context, phone string) (Entry, error) {
	var e Entry
	err := r.db.QueryRowContext(ctx, `SELECT phone, reason, added_at FROM dnc_entries WHERE phone = $1`, phone).
		Scan(&e.Phone, &e.Reason, &e.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get dnc entry: %w", err)
	}
	return e, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT phone, reason, added_at FROM dnc_entries ORDER BY added_at, phone`)
	if err != nil {
		return nil, fmt.Errorf("list dnc entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Phone, &e.Reason, &e.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
