package audit

import (
	"context"
	"database/sql"
	"fmt"

	"campaign-dialer/pkg/utils"
)

// PostgresRepo appends to audit_events.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_events (id, type, actor_user_id, actor_role, ip_address, phone, agent_instance_id, call_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, string(e.Type),
		utils.NullString(e.ActorUserID), utils.NullString(e.ActorRole), utils.NullString(e.IPAddress),
		utils.NullString(e.Phone), utils.NullString(e.AgentInstanceID), utils.NullString(e.CallID),
		utils.NullString(e.Message), utils.NullString(e.Metadata), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
