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

type chatwootConfigRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewChatwootConfigRepository(db *sqlx.DB, logger *logger.Logger) ports.ChatwootConfigRepository {
	return &chatwootConfigRepository{
		db:     db,
		logger: logger,
	}
}

type chatwootConfigModel struct {
	UpdatedAt           time.Time      `db:"updatedAt"`
	CreatedAt           time.Time      `db:"createdAt"`
	SignDelimiter       string         `db:"signDelimiter"`
	Instance            string         `db:"instance"`
	URL                 string         `db:"url"`
	Token               string         `db:"token"`
	AccountID           string         `db:"accountId"`
	ID                  string         `db:"id"`
	InboxID             sql.NullString `db:"inboxId"`
	InboxName           sql.NullString `db:"inboxName"`
	Organization        sql.NullString `db:"organization"`
	Logo                sql.NullString `db:"logo"`
	Number              sql.NullString `db:"number"`
	IgnoreJids          pq.StringArray `db:"ignoreJids"`
	Enabled             bool           `db:"enabled"`
	AutoCreateInbox     bool           `db:"autoCreateInbox"`
	SignMessages        bool           `db:"signMessages"`
	ReopenConversation  bool           `db:"reopenConversation"`
	ConversationPending bool           `db:"conversationPending"`
	MergeBrazilContacts bool           `db:"mergeBrazilContacts"`
}

func (r *chatwootConfigRepository) Create(ctx context.Context, config *ports.ChatwootConfig) error {
	r.logger.InfoWithFields("Creating chatwoot config", map[string]interface{}{
		"config_id": config.ID.String(),
		"instance":  config.Instance,
	})

	model := r.toModel(config)

	query := `
		INSERT INTO "zdChatwoot" (
			id, instance, url, token, "accountId", "inboxId", "inboxName",
			enabled, "autoCreateInbox", "signMessages", "signDelimiter",
			"reopenConversation", "conversationPending", "mergeBrazilContacts",
			number, organization, logo, "ignoreJids", "createdAt", "updatedAt"
		) VALUES (
			:id, :instance, :url, :token, :accountId, :inboxId, :inboxName,
			:enabled, :autoCreateInbox, :signMessages, :signDelimiter,
			:reopenConversation, :conversationPending, :mergeBrazilContacts,
			:number, :organization, :logo, :ignoreJids, :createdAt, :updatedAt
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, model)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ports.ErrConfigExists
		}
		return fmt.Errorf("failed to create chatwoot config: %w", err)
	}

	return nil
}

func (r *chatwootConfigRepository) GetByInstance(ctx context.Context, instance string) (*ports.ChatwootConfig, error) {
	var model chatwootConfigModel
	query := `SELECT * FROM "zdChatwoot" WHERE instance = $1`

	err := r.db.GetContext(ctx, &model, query, instance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get chatwoot config: %w", err)
	}

	return r.fromModel(&model)
}

func (r *chatwootConfigRepository) Update(ctx context.Context, config *ports.ChatwootConfig) error {
	model := r.toModel(config)
	model.UpdatedAt = time.Now()

	query := `
		UPDATE "zdChatwoot"
		SET url = :url, token = :token, "accountId" = :accountId,
		    "inboxId" = :inboxId, "inboxName" = :inboxName, enabled = :enabled,
		    "autoCreateInbox" = :autoCreateInbox, "signMessages" = :signMessages,
		    "signDelimiter" = :signDelimiter, "reopenConversation" = :reopenConversation,
		    "conversationPending" = :conversationPending,
		    "mergeBrazilContacts" = :mergeBrazilContacts, number = :number,
		    organization = :organization, logo = :logo, "ignoreJids" = :ignoreJids,
		    "updatedAt" = :updatedAt
		WHERE instance = :instance
	`

	result, err := r.db.NamedExecContext(ctx, query, model)
	if err != nil {
		return fmt.Errorf("failed to update chatwoot config: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ports.ErrConfigNotFound
	}

	return nil
}

func (r *chatwootConfigRepository) DeleteByInstance(ctx context.Context, instance string) error {
	r.logger.InfoWithFields("Deleting chatwoot config", map[string]interface{}{
		"instance": instance,
	})

	result, err := r.db.ExecContext(ctx, `DELETE FROM "zdChatwoot" WHERE instance = $1`, instance)
	if err != nil {
		return fmt.Errorf("failed to delete chatwoot config: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ports.ErrConfigNotFound
	}

	return nil
}

func (r *chatwootConfigRepository) List(ctx context.Context) ([]*ports.ChatwootConfig, error) {
	var models []chatwootConfigModel
	query := `SELECT * FROM "zdChatwoot" ORDER BY "createdAt"`

	if err := r.db.SelectContext(ctx, &models, query); err != nil {
		return nil, fmt.Errorf("failed to list chatwoot configs: %w", err)
	}

	configs := make([]*ports.ChatwootConfig, 0, len(models))
	for i := range models {
		config, err := r.fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}

	return configs, nil
}

func (r *chatwootConfigRepository) toModel(config *ports.ChatwootConfig) *chatwootConfigModel {
	model := &chatwootConfigModel{
		ID:                  config.ID.String(),
		Instance:            config.Instance,
		URL:                 config.URL,
		Token:               config.Token,
		AccountID:           config.AccountID,
		Enabled:             config.Enabled,
		AutoCreateInbox:     config.AutoCreateInbox,
		SignMessages:        config.SignMessages,
		SignDelimiter:       config.SignDelimiter,
		ReopenConversation:  config.ReopenConversation,
		ConversationPending: config.ConversationPending,
		MergeBrazilContacts: config.MergeBrazilContacts,
		IgnoreJids:          pq.StringArray(config.IgnoreJids),
		CreatedAt:           config.CreatedAt,
		UpdatedAt:           config.UpdatedAt,
	}

	if config.InboxID != nil {
		model.InboxID = sql.NullString{String: *config.InboxID, Valid: true}
	}
	if config.InboxName != nil {
		model.InboxName = sql.NullString{String: *config.InboxName, Valid: true}
	}
	if config.Organization != nil {
		model.Organization = sql.NullString{String: *config.Organization, Valid: true}
	}
	if config.Logo != nil {
		model.Logo = sql.NullString{String: *config.Logo, Valid: true}
	}
	if config.Number != nil {
		model.Number = sql.NullString{String: *config.Number, Valid: true}
	}

	return model
}

func (r *chatwootConfigRepository) fromModel(model *chatwootConfigModel) (*ports.ChatwootConfig, error) {
	id, err := uuid.Parse(model.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid config ID: %w", err)
	}

	config := &ports.ChatwootConfig{
		ID:                  id,
		Instance:            model.Instance,
		URL:                 model.URL,
		Token:               model.Token,
		AccountID:           model.AccountID,
		Enabled:             model.Enabled,
		AutoCreateInbox:     model.AutoCreateInbox,
		SignMessages:        model.SignMessages,
		SignDelimiter:       model.SignDelimiter,
		ReopenConversation:  model.ReopenConversation,
		ConversationPending: model.ConversationPending,
		MergeBrazilContacts: model.MergeBrazilContacts,
		IgnoreJids:          []string(model.IgnoreJids),
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}

	if model.InboxID.Valid {
		config.InboxID = &model.InboxID.String
	}
	if model.InboxName.Valid {
		config.InboxName = &model.InboxName.String
	}
	if model.Organization.Valid {
		config.Organization = &model.Organization.String
	}
	if model.Logo.Valid {
		config.Logo = &model.Logo.String
	}
	if model.Number.Valid {
		config.Number = &model.Number.String
	}

	return config, nil
}
