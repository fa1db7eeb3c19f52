package chatwoot

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

// Manager hands out per-instance Chatwoot clients and resolved
// configuration. Clients are built lazily and cached until the config
// changes.
type Manager struct {
	configRepo ports.ChatwootConfigRepository
	logger     *logger.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	configs map[string]*ports.ChatwootInstanceConfig
}

func NewManager(configRepo ports.ChatwootConfigRepository, logger *logger.Logger) *Manager {
	return &Manager{
		configRepo: configRepo,
		logger:     logger.WithModule("chatwoot-manager"),
		clients:    make(map[string]*Client),
		configs:    make(map[string]*ports.ChatwootInstanceConfig),
	}
}

func (m *Manager) GetClient(ctx context.Context, instance string) (ports.ChatwootClient, error) {
	m.mu.RLock()
	client, ok := m.clients[instance]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	config, err := m.GetConfig(ctx, instance)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have built it while we loaded the config
	if client, ok := m.clients[instance]; ok {
		return client, nil
	}

	client = NewClient(config.URL, config.Token, config.AccountID, m.logger)
	m.clients[instance] = client

	return client, nil
}

func (m *Manager) GetConfig(ctx context.Context, instance string) (*ports.ChatwootInstanceConfig, error) {
	m.mu.RLock()
	config, ok := m.configs[instance]
	m.mu.RUnlock()
	if ok {
		return config, nil
	}

	stored, err := m.configRepo.GetByInstance(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to load chatwoot config for %s: %w", instance, err)
	}

	config = resolveInstanceConfig(stored)

	m.mu.Lock()
	m.configs[instance] = config
	m.mu.Unlock()

	return config, nil
}

func (m *Manager) IsEnabled(ctx context.Context, instance string) bool {
	config, err := m.GetConfig(ctx, instance)
	if err != nil {
		return false
	}
	return config.Enabled
}

// InvalidateInstance drops cached state for an instance. Called whenever
// its config is created, updated or deleted.
func (m *Manager) InvalidateInstance(instance string) {
	m.mu.Lock()
	delete(m.clients, instance)
	delete(m.configs, instance)
	m.mu.Unlock()

	m.logger.DebugWithFields("Invalidated chatwoot instance cache", map[string]interface{}{
		"instance": instance,
	})
}

// SetInboxID persists the resolved inbox for an instance so inbox
// auto-provisioning happens once.
func (m *Manager) SetInboxID(ctx context.Context, instance string, inboxID int) error {
	stored, err := m.configRepo.GetByInstance(ctx, instance)
	if err != nil {
		return fmt.Errorf("failed to load chatwoot config for %s: %w", instance, err)
	}

	inboxStr := strconv.Itoa(inboxID)
	stored.InboxID = &inboxStr
	if err := m.configRepo.Update(ctx, stored); err != nil {
		return fmt.Errorf("failed to persist inbox id: %w", err)
	}

	m.InvalidateInstance(instance)
	return nil
}

func resolveInstanceConfig(stored *ports.ChatwootConfig) *ports.ChatwootInstanceConfig {
	config := &ports.ChatwootInstanceConfig{
		Instance:            stored.Instance,
		URL:                 stored.URL,
		Token:               stored.Token,
		AccountID:           stored.AccountID,
		Enabled:             stored.Enabled,
		AutoCreateInbox:     stored.AutoCreateInbox,
		SignMessages:        stored.SignMessages,
		SignDelimiter:       stored.SignDelimiter,
		ReopenConversation:  stored.ReopenConversation,
		ConversationPending: stored.ConversationPending,
		MergeBrazilContacts: stored.MergeBrazilContacts,
		IgnoreJids:          stored.IgnoreJids,
	}

	if stored.InboxID != nil {
		if id, err := strconv.Atoi(*stored.InboxID); err == nil {
			config.InboxID = id
		}
	}
	if stored.InboxName != nil && *stored.InboxName != "" {
		config.InboxName = *stored.InboxName
	} else {
		config.InboxName = stored.Instance
	}

	return config
}
