package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"zapdesk/internal/ports"
	apperrors "zapdesk/pkg/errors"
	"zapdesk/platform/logger"
)

type messageMappingRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewMessageMappingRepository(db *sqlx.DB, logger *logger.Logger) ports.MessageMappingRepository {
	return &messageMappingRepository{
		db:     db,
		logger: logger,
	}
}

type messageMappingModel struct {
	UpdatedAt        time.Time      `db:"updatedAt"`
	CreatedAt        time.Time      `db:"createdAt"`
	Timestamp        time.Time      `db:"timestamp"`
	ID               string         `db:"id"`
	Instance         string         `db:"instance"`
	MsgID            string         `db:"msgId"`
	ChatJID          string         `db:"chatJid"`
	SenderJID        string         `db:"senderJid"`
	MessageType      string         `db:"messageType"`
	SyncStatus       string         `db:"syncStatus"`
	Content          sql.NullString `db:"content"`
	CwMessageID      sql.NullInt64  `db:"cwMessageId"`
	CwConversationID sql.NullInt64  `db:"cwConversationId"`
	CwInboxID        sql.NullInt64  `db:"cwInboxId"`
	FromMe           bool           `db:"fromMe"`
	IsRead           bool           `db:"isRead"`
}

func (r *messageMappingRepository) Create(ctx context.Context, mapping *ports.MessageMapping) error {
	model := r.toModel(mapping)

	query := `
		INSERT INTO "zdMessages" (
			id, instance, "msgId", "fromMe", "chatJid", "senderJid",
			"messageType", content, "timestamp", "cwMessageId",
			"cwConversationId", "cwInboxId", "isRead", "syncStatus",
			"createdAt", "updatedAt"
		) VALUES (
			:id, :instance, :msgId, :fromMe, :chatJid, :senderJid,
			:messageType, :content, :timestamp, :cwMessageId,
			:cwConversationId, :cwInboxId, :isRead, :syncStatus,
			:createdAt, :updatedAt
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, model)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperrors.ErrRaceLost
		}
		return fmt.Errorf("failed to create message mapping: %w", err)
	}

	return nil
}

func (r *messageMappingRepository) GetByNativeID(ctx context.Context, instance, msgID string, fromMe bool) (*ports.MessageMapping, error) {
	var model messageMappingModel
	query := `SELECT * FROM "zdMessages" WHERE instance = $1 AND "msgId" = $2 AND "fromMe" = $3`

	err := r.db.GetContext(ctx, &model, query, instance, msgID, fromMe)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get message mapping: %w", err)
	}

	return r.fromModel(&model)
}

func (r *messageMappingRepository) GetByChatwootMessageID(ctx context.Context, instance string, cwMessageID int) (*ports.MessageMapping, error) {
	var model messageMappingModel
	query := `SELECT * FROM "zdMessages" WHERE instance = $1 AND "cwMessageId" = $2`

	err := r.db.GetContext(ctx, &model, query, instance, cwMessageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get message mapping by chatwoot id: %w", err)
	}

	return r.fromModel(&model)
}

// SetChatwootIDs fills the remote side of a mapping after Chatwoot accepted
// the message. The row must already exist; the bridge polls on
// ErrMappingNotFound to absorb the recorder write race.
func (r *messageMappingRepository) SetChatwootIDs(ctx context.Context, instance, msgID string, fromMe bool, cwMessageID, cwConversationID, cwInboxID int) error {
	query := `
		UPDATE "zdMessages"
		SET "cwMessageId" = $4, "cwConversationId" = $5, "cwInboxId" = $6,
		    "syncStatus" = $7, "updatedAt" = NOW()
		WHERE instance = $1 AND "msgId" = $2 AND "fromMe" = $3
	`

	result, err := r.db.ExecContext(ctx, query, instance, msgID, fromMe,
		cwMessageID, cwConversationID, cwInboxID, ports.SyncStatusSynced)
	if err != nil {
		return fmt.Errorf("failed to set chatwoot ids: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrMappingNotFound
	}

	return nil
}

func (r *messageMappingRepository) SetSyncStatus(ctx context.Context, instance, msgID string, fromMe bool, status string) error {
	query := `
		UPDATE "zdMessages"
		SET "syncStatus" = $4, "updatedAt" = NOW()
		WHERE instance = $1 AND "msgId" = $2 AND "fromMe" = $3
	`

	result, err := r.db.ExecContext(ctx, query, instance, msgID, fromMe, status)
	if err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrMappingNotFound
	}

	return nil
}

func (r *messageMappingRepository) MarkRead(ctx context.Context, instance, msgID string) error {
	query := `
		UPDATE "zdMessages"
		SET "isRead" = TRUE, "updatedAt" = NOW()
		WHERE instance = $1 AND "msgId" = $2
	`

	result, err := r.db.ExecContext(ctx, query, instance, msgID)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrMappingNotFound
	}

	return nil
}

func (r *messageMappingRepository) DeleteByChatwootMessageID(ctx context.Context, instance string, cwMessageID int) error {
	query := `DELETE FROM "zdMessages" WHERE instance = $1 AND "cwMessageId" = $2`

	_, err := r.db.ExecContext(ctx, query, instance, cwMessageID)
	if err != nil {
		return fmt.Errorf("failed to delete message mapping: %w", err)
	}

	return nil
}

func (r *messageMappingRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM "zdMessages" WHERE "createdAt" < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old message mappings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func (r *messageMappingRepository) toModel(mapping *ports.MessageMapping) *messageMappingModel {
	model := &messageMappingModel{
		ID:          mapping.ID.String(),
		Instance:    mapping.Instance,
		MsgID:       mapping.MsgID,
		FromMe:      mapping.FromMe,
		ChatJID:     mapping.ChatJID,
		SenderJID:   mapping.SenderJID,
		MessageType: mapping.MessageType,
		Timestamp:   mapping.Timestamp,
		IsRead:      mapping.IsRead,
		SyncStatus:  mapping.SyncStatus,
		CreatedAt:   mapping.CreatedAt,
		UpdatedAt:   mapping.UpdatedAt,
	}

	if mapping.Content != nil {
		model.Content = sql.NullString{String: *mapping.Content, Valid: true}
	}
	if mapping.CwMessageID != nil {
		model.CwMessageID = sql.NullInt64{Int64: int64(*mapping.CwMessageID), Valid: true}
	}
	if mapping.CwConversationID != nil {
		model.CwConversationID = sql.NullInt64{Int64: int64(*mapping.CwConversationID), Valid: true}
	}
	if mapping.CwInboxID != nil {
		model.CwInboxID = sql.NullInt64{Int64: int64(*mapping.CwInboxID), Valid: true}
	}

	return model
}

func (r *messageMappingRepository) fromModel(model *messageMappingModel) (*ports.MessageMapping, error) {
	id, err := uuid.Parse(model.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid mapping ID: %w", err)
	}

	mapping := &ports.MessageMapping{
		ID:          id,
		Instance:    model.Instance,
		MsgID:       model.MsgID,
		FromMe:      model.FromMe,
		ChatJID:     model.ChatJID,
		SenderJID:   model.SenderJID,
		MessageType: model.MessageType,
		Timestamp:   model.Timestamp,
		IsRead:      model.IsRead,
		SyncStatus:  model.SyncStatus,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}

	if model.Content.Valid {
		mapping.Content = &model.Content.String
	}
	if model.CwMessageID.Valid {
		v := int(model.CwMessageID.Int64)
		mapping.CwMessageID = &v
	}
	if model.CwConversationID.Valid {
		v := int(model.CwConversationID.Int64)
		mapping.CwConversationID = &v
	}
	if model.CwInboxID.Valid {
		v := int(model.CwInboxID.Int64)
		mapping.CwInboxID = &v
	}

	return mapping, nil
}
