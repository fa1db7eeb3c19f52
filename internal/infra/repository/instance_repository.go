package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

type instanceRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewInstanceRepository(db *sqlx.DB, logger *logger.Logger) ports.InstanceRepository {
	return &instanceRepository{
		db:     db,
		logger: logger,
	}
}

type instanceModel struct {
	ID         string         `db:"id"`
	Instance   string         `db:"instance"`
	DeviceJID  sql.NullString `db:"deviceJid"`
	Connected  bool           `db:"connected"`
	LastSeenAt sql.NullTime   `db:"lastSeenAt"`
	CreatedAt  time.Time      `db:"createdAt"`
	UpdatedAt  time.Time      `db:"updatedAt"`
}

func (r *instanceRepository) Upsert(ctx context.Context, instance *ports.WhatsAppInstance) error {
	r.logger.InfoWithFields("Upserting whatsapp instance", map[string]interface{}{
		"instance": instance.Instance,
	})

	model := r.toModel(instance)

	query := `
		INSERT INTO "zdInstances" (
			id, instance, "deviceJid", connected, "lastSeenAt", "createdAt", "updatedAt"
		) VALUES (
			:id, :instance, :deviceJid, :connected, :lastSeenAt, :createdAt, :updatedAt
		)
		ON CONFLICT (instance) DO UPDATE
		SET "deviceJid" = EXCLUDED."deviceJid",
		    connected = EXCLUDED.connected,
		    "lastSeenAt" = EXCLUDED."lastSeenAt",
		    "updatedAt" = EXCLUDED."updatedAt"
	`

	if _, err := r.db.NamedExecContext(ctx, query, model); err != nil {
		return fmt.Errorf("failed to upsert instance: %w", err)
	}

	return nil
}

func (r *instanceRepository) GetByName(ctx context.Context, instance string) (*ports.WhatsAppInstance, error) {
	var model instanceModel
	query := `SELECT * FROM "zdInstances" WHERE instance = $1`

	err := r.db.GetContext(ctx, &model, query, instance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return r.fromModel(&model)
}

func (r *instanceRepository) List(ctx context.Context) ([]*ports.WhatsAppInstance, error) {
	var models []instanceModel
	query := `SELECT * FROM "zdInstances" ORDER BY "createdAt"`

	if err := r.db.SelectContext(ctx, &models, query); err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*ports.WhatsAppInstance, 0, len(models))
	for i := range models {
		instance, err := r.fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

func (r *instanceRepository) SetDeviceJID(ctx context.Context, instance, deviceJID string) error {
	query := `
		UPDATE "zdInstances"
		SET "deviceJid" = $2, "updatedAt" = NOW()
		WHERE instance = $1
	`

	result, err := r.db.ExecContext(ctx, query, instance, deviceJID)
	if err != nil {
		return fmt.Errorf("failed to set device jid: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ports.ErrInstanceNotFound
	}

	return nil
}

func (r *instanceRepository) SetConnected(ctx context.Context, instance string, connected bool) error {
	query := `
		UPDATE "zdInstances"
		SET connected = $2, "lastSeenAt" = NOW(), "updatedAt" = NOW()
		WHERE instance = $1
	`

	result, err := r.db.ExecContext(ctx, query, instance, connected)
	if err != nil {
		return fmt.Errorf("failed to set connected: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ports.ErrInstanceNotFound
	}

	return nil
}

func (r *instanceRepository) DeleteByName(ctx context.Context, instance string) error {
	r.logger.InfoWithFields("Deleting whatsapp instance", map[string]interface{}{
		"instance": instance,
	})

	result, err := r.db.ExecContext(ctx, `DELETE FROM "zdInstances" WHERE instance = $1`, instance)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ports.ErrInstanceNotFound
	}

	return nil
}

func (r *instanceRepository) toModel(instance *ports.WhatsAppInstance) *instanceModel {
	id := instance.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	now := time.Now()
	createdAt := instance.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	model := &instanceModel{
		ID:        id.String(),
		Instance:  instance.Instance,
		Connected: instance.Connected,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	if instance.DeviceJID != nil {
		model.DeviceJID = sql.NullString{String: *instance.DeviceJID, Valid: true}
	}
	if instance.LastSeenAt != nil {
		model.LastSeenAt = sql.NullTime{Time: *instance.LastSeenAt, Valid: true}
	}

	return model
}

func (r *instanceRepository) fromModel(model *instanceModel) (*ports.WhatsAppInstance, error) {
	id, err := uuid.Parse(model.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid instance ID: %w", err)
	}

	instance := &ports.WhatsAppInstance{
		ID:        id,
		Instance:  model.Instance,
		Connected: model.Connected,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}

	if model.DeviceJID.Valid {
		instance.DeviceJID = &model.DeviceJID.String
	}
	if model.LastSeenAt.Valid {
		instance.LastSeenAt = &model.LastSeenAt.Time
	}

	return instance, nil
}
