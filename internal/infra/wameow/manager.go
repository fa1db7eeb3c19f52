package wameow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

// Manager owns one whatsmeow client per named instance and implements the
// gateway the bridge sends through. The event bridge is attached after
// construction because the Chatwoot side needs the gateway to exist first.
type Manager struct {
	container *sqlstore.Container
	instances ports.InstanceRepository
	logger    *logger.Logger

	bridge   ports.EventBridge
	bridgeMu sync.RWMutex

	clients      map[string]*Client
	clientsMutex sync.RWMutex
}

func NewManager(
	container *sqlstore.Container,
	instances ports.InstanceRepository,
	logger *logger.Logger,
) *Manager {
	return &Manager{
		container: container,
		instances: instances,
		logger:    logger,
		clients:   make(map[string]*Client),
	}
}

func (m *Manager) SetEventBridge(bridge ports.EventBridge) {
	m.bridgeMu.Lock()
	m.bridge = bridge
	m.bridgeMu.Unlock()
}

func (m *Manager) eventBridge() ports.EventBridge {
	m.bridgeMu.RLock()
	defer m.bridgeMu.RUnlock()
	return m.bridge
}

// RestoreInstances re-attaches clients for every instance that was paired on
// a previous run. Called once at startup.
func (m *Manager) RestoreInstances(ctx context.Context) error {
	records, err := m.instances.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	for _, rec := range records {
		if rec.DeviceJID == nil || *rec.DeviceJID == "" {
			continue
		}

		if err := m.Connect(ctx, rec.Instance); err != nil {
			m.logger.WarnWithFields("Failed to restore instance", map[string]interface{}{
				"instance": rec.Instance,
				"error":    err.Error(),
			})
		}
	}

	m.logger.InfoWithFields("Instance restore complete", map[string]interface{}{
		"total": len(records),
	})

	return nil
}

func (m *Manager) Connect(ctx context.Context, instance string) error {
	client, err := m.getOrCreateClient(ctx, instance)
	if err != nil {
		return err
	}

	return client.Connect()
}

func (m *Manager) Disconnect(instance string) error {
	client := m.getClient(instance)
	if client == nil {
		return ports.ErrInstanceNotFound
	}

	return client.Disconnect()
}

func (m *Manager) Logout(ctx context.Context, instance string) error {
	client := m.getClient(instance)
	if client == nil {
		return ports.ErrInstanceNotFound
	}

	if err := client.Logout(ctx); err != nil {
		return err
	}

	// The device pairing is gone; forget it so the next connect starts a
	// fresh QR flow.
	if err := m.instances.SetDeviceJID(ctx, instance, ""); err != nil {
		m.logger.WarnWithFields("Failed to clear device JID", map[string]interface{}{
			"instance": instance,
			"error":    err.Error(),
		})
	}

	m.clientsMutex.Lock()
	delete(m.clients, instance)
	m.clientsMutex.Unlock()

	return nil
}

func (m *Manager) ConnectionStatus(instance string) *ports.InstanceStatus {
	client := m.getClient(instance)
	if client == nil {
		return nil
	}

	return client.Status()
}

func (m *Manager) GetQRCode(ctx context.Context, instance string) (*ports.QRCodeResult, error) {
	client, err := m.getOrCreateClient(ctx, instance)
	if err != nil {
		return nil, err
	}

	if !client.IsConnected() && !client.IsLoggedIn() {
		if err := client.Connect(); err != nil {
			return nil, err
		}
	}

	return client.QRCode()
}

func (m *Manager) SendText(ctx context.Context, instance, toJID, body string, reply *ports.ReplyContext) (*ports.SendResult, error) {
	client, err := m.requireClient(instance)
	if err != nil {
		return nil, err
	}

	return client.SendText(ctx, toJID, body, reply)
}

func (m *Manager) SendMedia(ctx context.Context, instance, toJID string, media *ports.OutboundMedia, reply *ports.ReplyContext) (*ports.SendResult, error) {
	client, err := m.requireClient(instance)
	if err != nil {
		return nil, err
	}

	return client.SendMedia(ctx, toJID, media, reply)
}

func (m *Manager) SendReaction(ctx context.Context, instance, toJID, targetMsgID, emoji string) (*ports.SendResult, error) {
	client, err := m.requireClient(instance)
	if err != nil {
		return nil, err
	}

	return client.SendReaction(ctx, toJID, targetMsgID, emoji)
}

func (m *Manager) RevokeMessage(ctx context.Context, instance, chatJID, msgID string) error {
	client, err := m.requireClient(instance)
	if err != nil {
		return err
	}

	return client.Revoke(ctx, chatJID, msgID)
}

func (m *Manager) MarkRead(ctx context.Context, instance, chatJID, senderJID string, msgIDs []string) error {
	client, err := m.requireClient(instance)
	if err != nil {
		return err
	}

	return client.MarkRead(ctx, chatJID, senderJID, msgIDs)
}

func (m *Manager) GetProfilePictureURL(ctx context.Context, instance, jid string) (string, error) {
	client, err := m.requireClient(instance)
	if err != nil {
		return "", err
	}

	return client.ProfilePictureURL(ctx, jid)
}

// Shutdown disconnects every client. Used during graceful shutdown.
func (m *Manager) Shutdown() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for instance, client := range m.clients {
		if err := client.Disconnect(); err != nil {
			m.logger.WarnWithFields("Failed to disconnect instance", map[string]interface{}{
				"instance": instance,
				"error":    err.Error(),
			})
		}
	}
}

func (m *Manager) getClient(instance string) *Client {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return m.clients[instance]
}

func (m *Manager) requireClient(instance string) (*Client, error) {
	client := m.getClient(instance)
	if client == nil {
		return nil, fmt.Errorf("instance %s is not connected", instance)
	}
	return client, nil
}

func (m *Manager) getOrCreateClient(ctx context.Context, instance string) (*Client, error) {
	if client := m.getClient(instance); client != nil {
		return client, nil
	}

	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if client, exists := m.clients[instance]; exists {
		return client, nil
	}

	client, err := NewClient(instance, m.container, m.instances, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for instance %s: %w", instance, err)
	}

	translator := newEventTranslator(instance, client, m.eventBridge, m.instances, m.logger)
	client.AddEventHandler(translator.handle)

	if err := m.ensureInstanceRecord(ctx, instance); err != nil {
		m.logger.WarnWithFields("Failed to persist instance record", map[string]interface{}{
			"instance": instance,
			"error":    err.Error(),
		})
	}

	m.clients[instance] = client
	return client, nil
}

func (m *Manager) ensureInstanceRecord(ctx context.Context, instance string) error {
	if _, err := m.instances.GetByName(ctx, instance); err == nil {
		return nil
	}

	return m.instances.Upsert(ctx, &ports.WhatsAppInstance{
		ID:       uuid.New(),
		Instance: instance,
	})
}
