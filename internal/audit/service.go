package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogDNCAdded records a phone entering the do-not-call registry.
func (s *Service) LogDNCAdded(ctx context.Context, actor Actor, phone, reason string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeDNCAdded,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		Phone:       phone,
		Message:     reason,
	})
}

// LogDNCRemoved records an explicit removal from the registry.
func (s *Service) LogDNCRemoved(ctx context.Context, actor Actor, phone string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeDNCRemoved,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		Phone:       phone,
		Message:     "removed",
	})
}

// LogCampaignControl records an operator lifecycle action on an agent instance.
func (s *Service) LogCampaignControl(ctx context.Context, actor Actor, instanceID, action string) error {
	return s.Append(ctx, Event{
		Type:            EventTypeCampaignControl,
		ActorUserID:     actor.UserID,
		ActorRole:       actor.Role,
		IPAddress:       actor.IP,
		AgentInstanceID: instanceID,
		Message:         action,
	})
}
