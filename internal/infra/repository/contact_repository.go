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
	"zapdesk/platform/logger"
)

type contactMappingRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewContactMappingRepository(db *sqlx.DB, logger *logger.Logger) ports.ContactMappingRepository {
	return &contactMappingRepository{
		db:     db,
		logger: logger,
	}
}

type contactMappingModel struct {
	UpdatedAt   time.Time      `db:"updatedAt"`
	CreatedAt   time.Time      `db:"createdAt"`
	ID          string         `db:"id"`
	Instance    string         `db:"instance"`
	Phone       string         `db:"phone"`
	Name        string         `db:"name"`
	AvatarURL   sql.NullString `db:"avatarUrl"`
	CwContactID int            `db:"cwContactId"`
}

// GetByPhones returns the mapping matching any of the given phone forms.
// Variant-tolerant lookup: the caller passes every normalized form of the
// number.
func (r *contactMappingRepository) GetByPhones(ctx context.Context, instance string, phones []string) (*ports.ContactMapping, error) {
	if len(phones) == 0 {
		return nil, ports.ErrContactNotFound
	}

	var model contactMappingModel
	query := `SELECT * FROM "zdContacts" WHERE instance = $1 AND phone = ANY($2) ORDER BY LENGTH(phone) DESC LIMIT 1`

	err := r.db.GetContext(ctx, &model, query, instance, pq.Array(phones))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact mapping: %w", err)
	}

	return r.fromModel(&model), nil
}

func (r *contactMappingRepository) Upsert(ctx context.Context, mapping *ports.ContactMapping) error {
	model := r.toModel(mapping)

	query := `
		INSERT INTO "zdContacts" (
			id, instance, phone, "cwContactId", name, "avatarUrl",
			"createdAt", "updatedAt"
		) VALUES (
			:id, :instance, :phone, :cwContactId, :name, :avatarUrl,
			:createdAt, :updatedAt
		)
		ON CONFLICT (instance, phone) DO UPDATE
		SET "cwContactId" = EXCLUDED."cwContactId",
		    name = EXCLUDED.name,
		    "avatarUrl" = EXCLUDED."avatarUrl",
		    "updatedAt" = NOW()
	`

	_, err := r.db.NamedExecContext(ctx, query, model)
	if err != nil {
		return fmt.Errorf("failed to upsert contact mapping: %w", err)
	}

	return nil
}

func (r *contactMappingRepository) DeleteByInstance(ctx context.Context, instance string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM "zdContacts" WHERE instance = $1`, instance)
	if err != nil {
		return fmt.Errorf("failed to delete contact mappings: %w", err)
	}

	return nil
}

func (r *contactMappingRepository) toModel(mapping *ports.ContactMapping) *contactMappingModel {
	model := &contactMappingModel{
		ID:          mapping.ID.String(),
		Instance:    mapping.Instance,
		Phone:       mapping.Phone,
		CwContactID: mapping.CwContactID,
		Name:        mapping.Name,
		CreatedAt:   mapping.CreatedAt,
		UpdatedAt:   mapping.UpdatedAt,
	}

	if mapping.AvatarURL != nil {
		model.AvatarURL = sql.NullString{String: *mapping.AvatarURL, Valid: true}
	}

	return model
}

func (r *contactMappingRepository) fromModel(model *contactMappingModel) *ports.ContactMapping {
	id, _ := uuid.Parse(model.ID)

	mapping := &ports.ContactMapping{
		ID:          id,
		Instance:    model.Instance,
		Phone:       model.Phone,
		CwContactID: model.CwContactID,
		Name:        model.Name,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}

	if model.AvatarURL.Valid {
		mapping.AvatarURL = &model.AvatarURL.String
	}

	return mapping
}
