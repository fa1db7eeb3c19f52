package chatwoot

import (
	"context"
	"fmt"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

// Service manages per-instance bridge configuration. The HTTP layer talks
// to it; the integration layer reads the resolved config through the
// manager instead.
type Service struct {
	logger  *logger.Logger
	configs ports.ChatwootConfigRepository
	manager ports.ChatwootManager
}

func NewService(logger *logger.Logger, configs ports.ChatwootConfigRepository, manager ports.ChatwootManager) *Service {
	return &Service{
		logger:  logger,
		configs: configs,
		manager: manager,
	}
}

func (s *Service) CreateConfig(ctx context.Context, instance string, req *CreateConfigRequest) (*Config, error) {
	config := NewConfig(instance, req.URL, req.Token, req.AccountID)
	config.Apply(req)

	if !config.IsConfigured() {
		return nil, fmt.Errorf("url, token and account ID are required")
	}

	if err := s.configs.Create(ctx, toPortConfig(config)); err != nil {
		return nil, err
	}

	s.manager.InvalidateInstance(instance)

	s.logger.InfoWithFields("Chatwoot config created", map[string]interface{}{
		"instance":   instance,
		"url":        config.URL,
		"account_id": config.AccountID,
	})

	return config, nil
}

func (s *Service) GetConfig(ctx context.Context, instance string) (*Config, error) {
	stored, err := s.configs.GetByInstance(ctx, instance)
	if err != nil {
		return nil, err
	}

	return fromPortConfig(stored), nil
}

func (s *Service) UpdateConfig(ctx context.Context, instance string, req *CreateConfigRequest) (*Config, error) {
	stored, err := s.configs.GetByInstance(ctx, instance)
	if err != nil {
		return nil, err
	}

	config := fromPortConfig(stored)
	config.Apply(req)

	if err := s.configs.Update(ctx, toPortConfig(config)); err != nil {
		return nil, err
	}

	s.manager.InvalidateInstance(instance)

	return config, nil
}

func (s *Service) DeleteConfig(ctx context.Context, instance string) error {
	if err := s.configs.DeleteByInstance(ctx, instance); err != nil {
		return err
	}

	s.manager.InvalidateInstance(instance)
	return nil
}

// TestConnection verifies the stored credentials by listing inboxes on the
// remote account.
func (s *Service) TestConnection(ctx context.Context, instance string) error {
	client, err := s.manager.GetClient(ctx, instance)
	if err != nil {
		return err
	}

	if _, err := client.ListInboxes(ctx); err != nil {
		return fmt.Errorf("chatwoot connection test failed: %w", err)
	}

	return nil
}

func toPortConfig(c *Config) *ports.ChatwootConfig {
	return &ports.ChatwootConfig{
		ID:                  c.ID,
		Instance:            c.Instance,
		URL:                 c.URL,
		Token:               c.Token,
		AccountID:           c.AccountID,
		InboxID:             c.InboxID,
		InboxName:           c.InboxName,
		Enabled:             c.Enabled,
		AutoCreateInbox:     c.AutoCreateInbox,
		SignMessages:        c.SignMessages,
		SignDelimiter:       c.SignDelimiter,
		ReopenConversation:  c.ReopenConversation,
		ConversationPending: c.ConversationPending,
		MergeBrazilContacts: c.MergeBrazilContacts,
		Number:              c.Number,
		Organization:        c.Organization,
		Logo:                c.Logo,
		IgnoreJids:          c.IgnoreJids,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func fromPortConfig(c *ports.ChatwootConfig) *Config {
	return &Config{
		ID:                  c.ID,
		Instance:            c.Instance,
		URL:                 c.URL,
		Token:               c.Token,
		AccountID:           c.AccountID,
		InboxID:             c.InboxID,
		InboxName:           c.InboxName,
		Enabled:             c.Enabled,
		AutoCreateInbox:     c.AutoCreateInbox,
		SignMessages:        c.SignMessages,
		SignDelimiter:       c.SignDelimiter,
		ReopenConversation:  c.ReopenConversation,
		ConversationPending: c.ConversationPending,
		MergeBrazilContacts: c.MergeBrazilContacts,
		Number:              c.Number,
		Organization:        c.Organization,
		Logo:                c.Logo,
		IgnoreJids:          c.IgnoreJids,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}
