package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campaign-dialer/pkg/utils"
)

// Repository is the persistence contract for calls.
type Repository interface {
	Insert(ctx context.Context, c Call) error
	Get(ctx context.Context, id string) (Call, error)
	GetByProviderID(ctx context.Context, providerCallID string) (Call, error)
	// BindProviderID sets provider_call_id on an unbound call.
	// Returns ErrProviderIDTaken if another call already holds the id.
	BindProviderID(ctx context.Context, id, provider, providerCallID string, at time.Time) error
	Update(ctx context.Context, c Call) error
	LatestByPhone(ctx context.Context, phone string) (Call, error)
	ListByInstance(ctx context.Context, instanceID string) ([]Call, error)
}

// PostgresRepo stores calls in Postgres.
//
// Assumes a calls table whose columns mirror Call, with
// UNIQUE (provider_call_id) where provider_call_id IS NOT NULL
// and an index on (to_number, created_at).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `id, provider_call_id, provider, agent_instance_id, lead_id, to_number,
status, outcome, sentiment, opted_out, duration, transcript, summary, recording_url,
cost_minor, ended_reason, failure_reason, report_attached, created_at, updated_at,
connected_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c                    Call
		providerCallID       sql.NullString
		instanceID           sql.NullString
		connectedAt, endedAt sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&providerCallID,
		&c.Provider,
		&instanceID,
		&c.LeadID,
		&c.ToNumber,
		&c.Status,
		&c.Outcome,
		&c.Sentiment,
		&c.OptedOut,
		&c.DurationSeconds,
		&c.Transcript,
		&c.Summary,
		&c.RecordingURL,
		&c.CostMinor,
		&c.EndedReason,
		&c.FailureReason,
		&c.ReportAttached,
		&c.CreatedAt,
		&c.UpdatedAt,
		&connectedAt,
		&endedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	c.ProviderCallID = providerCallID.String
	c.AgentInstanceID = instanceID.String
	c.ConnectedAt = connectedAt.Time
	c.EndedAt = endedAt.Time
	return c, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID,
		utils.NullString(c.ProviderCallID),
		c.Provider,
		utils.NullString(c.AgentInstanceID),
		c.LeadID,
		c.ToNumber,
		c.Status,
		c.Outcome,
		c.Sentiment,
		c.OptedOut,
		c.DurationSeconds,
		c.Transcript,
		c.Summary,
		c.RecordingURL,
		c.CostMinor,
		c.EndedReason,
		c.FailureReason,
		c.ReportAttached,
		c.CreatedAt,
		c.UpdatedAt,
		utils.NullTime(c.ConnectedAt),
		utils.NullTime(c.EndedAt),
	)
	if utils.IsUniqueViolation(err) {
		return ErrProviderIDTaken
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetByProviderID(ctx context.Context, providerCallID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE provider_call_id = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, providerCallID))
}

func (r *PostgresRepo) BindProviderID(ctx context.Context, id, provider, providerCallID string, at time.Time) error {
	const q = `
UPDATE calls
SET provider_call_id = $1,
    provider = CASE WHEN $2 = '' THEN provider ELSE $2 END,
    updated_at = $3
WHERE id = $4 AND provider_call_id IS NULL
`
	res, err := r.db.ExecContext(ctx, q, providerCallID, provider, at, id)
	if err != nil {
		if utils.IsUniqueViolation(err) {
			return ErrProviderIDTaken
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or bound concurrently by another writer.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrProviderIDTaken
	}
	return nil
}

func (r *PostgresRepo) Update(ctx context.Context, c Call) error {
	const q = `
UPDATE calls SET
  status = $2, outcome = $3, sentiment = $4, opted_out = $5, duration = $6,
  transcript = $7, summary = $8, recording_url = $9, cost_minor = $10,
  ended_reason = $11, failure_reason = $12, report_attached = $13,
  updated_at = $14, connected_at = $15, ended_at = $16
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		c.ID,
		c.Status,
		c.Outcome,
		c.Sentiment,
		c.OptedOut,
		c.DurationSeconds,
		c.Transcript,
		c.Summary,
		c.RecordingURL,
		c.CostMinor,
		c.EndedReason,
		c.FailureReason,
		c.ReportAttached,
		c.UpdatedAt,
		utils.NullTime(c.ConnectedAt),
		utils.NullTime(c.EndedAt),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) LatestByPhone(ctx context.Context, phone string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE to_number = $1 ORDER BY created_at DESC LIMIT 1`
	return scanCall(r.db.QueryRowContext(ctx, q, phone))
}

func (r *PostgresRepo) ListByInstance(ctx context.Context, instanceID string) ([]Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE agent_instance_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
