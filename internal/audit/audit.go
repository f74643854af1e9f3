package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventLoginFailed       = "auth.login_failed"
	EventInviteCreated     = "invite.created"
	EventInviteResent      = "invite.resent"
	EventInviteRevoked     = "invite.revoked"
	EventInviteAccepted    = "invite.accepted"
	EventProjectCreated    = "project.created"
	EventProjectUpdated    = "project.updated"
	EventMilestoneCreated  = "milestone.created"
	EventMilestoneUpdated  = "milestone.updated"
	EventOwnerBootstrapped = "account.owner_bootstrapped"
)

// Event represents an audit log entry.
type Event struct {
	ID          uuid.UUID              `db:"id"`
	ActorUserID uuid.NullUUID          `db:"actor_user_id"`
	Action      string                 `db:"action"`
	Meta        map[string]interface{} `db:"meta"`
	CreatedAt   time.Time              `db:"created_at"`
}

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (actor_user_id, action, meta)
		VALUES ($1, $2, $3)
	`

	_, err := w.pool.Exec(ctx, query, toNullUUID(params.ActorUserID), params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]interface{}{
			"email": email,
			"ip":    ip,
		},
	})
}

func (w *Writer) LogInviteCreated(ctx context.Context, actorUserID, inviteID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventInviteCreated,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
			"email":     email,
		},
	})
}

func (w *Writer) LogInviteResent(ctx context.Context, actorUserID, inviteID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventInviteResent,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
		},
	})
}

func (w *Writer) LogInviteRevoked(ctx context.Context, actorUserID, inviteID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventInviteRevoked,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
		},
	})
}

func (w *Writer) LogInviteAccepted(ctx context.Context, newUserID, inviteID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &newUserID,
		Action:      EventInviteAccepted,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
		},
	})
}

func (w *Writer) LogProjectCreated(ctx context.Context, actorUserID, projectID, clientUserID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventProjectCreated,
		Meta: map[string]interface{}{
			"project_id":     projectID.String(),
			"client_user_id": clientUserID.String(),
		},
	})
}

func (w *Writer) LogProjectUpdated(ctx context.Context, actorUserID, projectID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventProjectUpdated,
		Meta: map[string]interface{}{
			"project_id": projectID.String(),
		},
	})
}

func (w *Writer) LogMilestoneCreated(ctx context.Context, actorUserID, projectID, milestoneID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventMilestoneCreated,
		Meta: map[string]interface{}{
			"project_id":   projectID.String(),
			"milestone_id": milestoneID.String(),
		},
	})
}

func (w *Writer) LogMilestoneUpdated(ctx context.Context, actorUserID, milestoneID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorUserID,
		Action:      EventMilestoneUpdated,
		Meta: map[string]interface{}{
			"milestone_id": milestoneID.String(),
		},
	})
}

func (w *Writer) LogOwnerBootstrapped(ctx context.Context, userID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventOwnerBootstrapped,
		Meta: map[string]interface{}{
			"email": email,
		},
	})
}
