package chatwoot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"zapdesk/internal/infra/cache"
	"zapdesk/internal/ports"
	apperrors "zapdesk/pkg/errors"
	"zapdesk/platform/logger"
)

const (
	// sourceIDPrefix tags every Chatwoot message the bridge creates so the
	// webhook can tell its own messages from agent ones.
	sourceIDPrefix = "WAID:"

	mappingSetAttempts = 5
	mappingSetInterval = 200 * time.Millisecond

	avatarCacheTTL = 24 * time.Hour
)

// InboundBridge turns WhatsApp events into Chatwoot contacts, conversations
// and messages. It implements ports.EventBridge.
type InboundBridge struct {
	manager   ports.ChatwootManager
	contacts  *ContactSync
	resolver  *ConversationResolver
	media     *MediaFetcher
	messages  ports.MessageMappingRepository
	deletions *DeletionCoordinator
	gateway   ports.WhatsAppGateway
	cache     *cache.Cache
	logger    *logger.Logger
}

func NewInboundBridge(
	manager ports.ChatwootManager,
	contacts *ContactSync,
	resolver *ConversationResolver,
	media *MediaFetcher,
	messages ports.MessageMappingRepository,
	deletions *DeletionCoordinator,
	gateway ports.WhatsAppGateway,
	c *cache.Cache,
	logger *logger.Logger,
) *InboundBridge {
	return &InboundBridge{
		manager:   manager,
		contacts:  contacts,
		resolver:  resolver,
		media:     media,
		messages:  messages,
		deletions: deletions,
		gateway:   gateway,
		cache:     c,
		logger:    logger.WithModule("inbound-bridge"),
	}
}

func (b *InboundBridge) IsEnabled(ctx context.Context, instance string) bool {
	return b.manager.IsEnabled(ctx, instance)
}

// HandleMessage bridges one WhatsApp message. Replays are detected through
// the mapping table, so delivering the same event twice is harmless.
func (b *InboundBridge) HandleMessage(ctx context.Context, evt *ports.MessageEvent) error {
	if IsStatusBroadcast(evt.ChatJID) {
		return nil
	}

	config, err := b.enabledConfig(ctx, evt.Instance)
	if err != nil || config == nil {
		return err
	}
	if jidIgnored(config.IgnoreJids, evt.ChatJID) {
		b.logger.DebugWithFields("Chat jid ignored by config", map[string]interface{}{
			"instance": evt.Instance,
			"chat_jid": evt.ChatJID,
		})
		return nil
	}

	if evt.Edit != nil {
		return b.processEdit(ctx, config, evt)
	}
	if evt.Reaction != nil {
		return b.processReaction(ctx, config, evt)
	}

	bridged, retry, err := b.deliveryState(ctx, evt.Instance, evt.MessageID, evt.FromMe)
	if err != nil {
		return err
	}
	if bridged {
		return nil
	}

	client, cfg, conversationID, err := b.resolveDestination(ctx, config, evt)
	if err != nil {
		return err
	}

	if !retry {
		mapping := b.newMapping(evt, conversationID, cfg.InboxID)
		if err := b.messages.Create(ctx, mapping); err != nil {
			if errors.Is(err, apperrors.ErrRaceLost) {
				// Another worker picked up the same event first
				return nil
			}
			return err
		}
	}

	message, err := b.postMessage(ctx, client, cfg, conversationID, evt)
	if err != nil {
		if statusErr := b.messages.SetSyncStatus(ctx, evt.Instance, evt.MessageID, evt.FromMe, ports.SyncStatusFailed); statusErr != nil {
			b.logger.WarnWithFields("Failed to mark mapping failed", map[string]interface{}{
				"instance":   evt.Instance,
				"message_id": evt.MessageID,
				"error":      statusErr.Error(),
			})
		}
		return err
	}

	return b.setChatwootIDs(ctx, evt.Instance, evt.MessageID, evt.FromMe, message.ID, conversationID, cfg.InboxID)
}

// HandleRevoke deletes the mirrored Chatwoot message when a WhatsApp
// message is deleted for everyone.
func (b *InboundBridge) HandleRevoke(ctx context.Context, evt *ports.RevokeEvent) error {
	config, err := b.enabledConfig(ctx, evt.Instance)
	if err != nil || config == nil {
		return err
	}

	mapping, err := b.lookupEitherDirection(ctx, evt.Instance, evt.MessageID)
	if err != nil {
		if errors.Is(err, apperrors.ErrMappingNotFound) {
			return nil
		}
		return err
	}
	if mapping.CwMessageID == nil || mapping.CwConversationID == nil {
		return nil
	}

	client, err := b.manager.GetClient(ctx, evt.Instance)
	if err != nil {
		return err
	}

	outcome, err := b.deletions.Run(ctx, evt.Instance, evt.MessageID, func(ctx context.Context) error {
		if err := client.DeleteMessage(ctx, *mapping.CwConversationID, *mapping.CwMessageID); err != nil {
			return err
		}
		return b.messages.DeleteByChatwootMessageID(ctx, evt.Instance, *mapping.CwMessageID)
	})
	if outcome == DeletionAlreadyInProgress {
		return nil
	}
	return err
}

// HandleReceipt flips the read flag on mapped messages when the remote
// party reads them.
func (b *InboundBridge) HandleReceipt(ctx context.Context, evt *ports.ReceiptEvent) error {
	if evt.Type != "read" {
		return nil
	}

	config, err := b.enabledConfig(ctx, evt.Instance)
	if err != nil || config == nil {
		return err
	}

	for _, msgID := range evt.MessageIDs {
		if err := b.messages.MarkRead(ctx, evt.Instance, msgID); err != nil {
			b.logger.DebugWithFields("Failed to mark message read", map[string]interface{}{
				"instance":   evt.Instance,
				"message_id": msgID,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

// HandleConnection reacts to connection lifecycle changes. A logout drops
// all cached conversation state for the instance.
func (b *InboundBridge) HandleConnection(ctx context.Context, evt *ports.ConnectionEvent) error {
	b.logger.InfoWithFields("Connection state changed", map[string]interface{}{
		"instance": evt.Instance,
		"status":   evt.Status,
	})

	if evt.Status == ports.ConnectionStatusLoggedOut {
		evicted := b.resolver.EvictInstance(evt.Instance)
		b.logger.InfoWithFields("Evicted cached conversations after logout", map[string]interface{}{
			"instance": evt.Instance,
			"evicted":  evicted,
		})
	}
	return nil
}

// resolveDestination finds the client, inbox, contact and conversation for
// an event's chat.
func (b *InboundBridge) resolveDestination(ctx context.Context, config *ports.ChatwootInstanceConfig, evt *ports.MessageEvent) (ports.ChatwootClient, *ports.ChatwootInstanceConfig, int, error) {
	client, err := b.manager.GetClient(ctx, evt.Instance)
	if err != nil {
		return nil, nil, 0, err
	}

	cfg, err := b.ensureInbox(ctx, client, config)
	if err != nil {
		return nil, nil, 0, err
	}

	phone := CanonicalPhone(evt.ChatJID)

	// For self-sent messages the contact is still the remote party, so the
	// push name of the sender does not apply.
	name := evt.PushName
	if evt.FromMe {
		name = ""
	}

	avatar := b.profilePictureURL(ctx, evt.Instance, evt.ChatJID, phone)

	contact, err := b.contacts.ResolveContact(ctx, client, cfg, evt.ChatJID, phone, name, avatar)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to resolve contact: %w", err)
	}

	conversationID, err := b.resolver.Resolve(ctx, client, cfg, contact.ID, phone)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to resolve conversation: %w", err)
	}

	return client, cfg, conversationID, nil
}

// ensureInbox returns a config with a concrete inbox id, provisioning the
// API inbox on first use when auto-creation is enabled.
func (b *InboundBridge) ensureInbox(ctx context.Context, client ports.ChatwootClient, config *ports.ChatwootInstanceConfig) (*ports.ChatwootInstanceConfig, error) {
	if config.InboxID != 0 {
		return config, nil
	}

	inboxes, err := client.ListInboxes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list inboxes: %w", err)
	}

	var inboxID int
	for i := range inboxes {
		if inboxes[i].Name == config.InboxName {
			inboxID = inboxes[i].ID
			break
		}
	}

	if inboxID == 0 {
		if !config.AutoCreateInbox {
			return nil, apperrors.ErrChatwootNotConfigured
		}
		inbox, err := client.CreateInbox(ctx, config.InboxName, "")
		if err != nil {
			return nil, fmt.Errorf("failed to create inbox: %w", err)
		}
		inboxID = inbox.ID
		b.logger.InfoWithFields("Provisioned chatwoot inbox", map[string]interface{}{
			"instance": config.Instance,
			"inbox_id": inboxID,
			"name":     config.InboxName,
		})
	}

	if err := b.manager.SetInboxID(ctx, config.Instance, inboxID); err != nil {
		return nil, err
	}

	resolved := *config
	resolved.InboxID = inboxID

	// The operator command conversation rides along with the inbox. A
	// failure here must not hold up message bridging.
	if err := ensureCommandChannel(ctx, client, &resolved, b.logger); err != nil {
		b.logger.WarnWithFields("Failed to provision command channel", map[string]interface{}{
			"instance": config.Instance,
			"error":    err.Error(),
		})
	}

	return &resolved, nil
}

// postMessage transforms the event and creates the Chatwoot message.
func (b *InboundBridge) postMessage(ctx context.Context, client ports.ChatwootClient, cfg *ports.ChatwootInstanceConfig, conversationID int, evt *ports.MessageEvent) (*ports.ChatwootMessage, error) {
	messageType := ports.MessageTypeIncoming
	if evt.FromMe {
		messageType = ports.MessageTypeOutgoing
	}
	sourceID := sourceIDPrefix + evt.MessageID

	content := b.renderContent(evt)

	if evt.Media != nil {
		data, err := b.media.FetchInbound(ctx, evt.Media)
		switch {
		case err == nil:
			return client.CreateAttachmentMessage(ctx, conversationID, &ports.AttachmentMessageRequest{
				Content:     content,
				MessageType: messageType,
				SourceID:    sourceID,
				Attachments: []ports.AttachmentUpload{{
					Filename: attachmentFilename(evt.Media),
					MimeType: evt.Media.MimeType,
					Data:     data,
				}},
			})
		case errors.Is(err, ErrMediaTooLarge):
			content = joinContent(content, FormatMediaPlaceholder(evt.Media.Filename, evt.Media.Size, "exceeds size limit"))
		case apperrors.IsPermanent(err):
			content = joinContent(content, FormatMediaPlaceholder(evt.Media.Filename, evt.Media.Size, "media link expired"))
		default:
			return nil, err
		}
	}

	if strings.TrimSpace(content) == "" {
		content = fmt.Sprintf("Unsupported message type: %s", evt.Type)
	}

	return client.CreateMessage(ctx, conversationID, &ports.CreateMessageRequest{
		Content:     content,
		MessageType: messageType,
		SourceID:    sourceID,
	})
}

// renderContent builds the textual body for an event, quoted context
// included.
func (b *InboundBridge) renderContent(evt *ports.MessageEvent) string {
	var content string

	switch {
	case evt.Location != nil:
		content = FormatLocation(evt.Location.Latitude, evt.Location.Longitude, evt.Location.Name, evt.Location.Address)
	case evt.ContactCard != nil:
		content = FormatContactCard(evt.ContactCard.DisplayName, vcardPhone(evt.ContactCard.VCard))
	default:
		content = FormatMarkdownForChatwoot(evt.Text)
	}

	if evt.Quoted != nil && evt.Quoted.Text != "" {
		content = FormatQuotedMessage(FormatMarkdownForChatwoot(evt.Quoted.Text), content)
	}

	return content
}

// processEdit bridges a message edit as a new annotated message. Without a
// mapping for the original there is nothing to annotate, so the edit is
// dropped.
func (b *InboundBridge) processEdit(ctx context.Context, config *ports.ChatwootInstanceConfig, evt *ports.MessageEvent) error {
	original, err := b.lookupEitherDirection(ctx, evt.Instance, evt.Edit.TargetMessageID)
	if err != nil {
		if errors.Is(err, apperrors.ErrMappingNotFound) {
			return nil
		}
		return err
	}
	if original.CwConversationID == nil {
		return nil
	}

	bridged, retry, err := b.deliveryState(ctx, evt.Instance, evt.MessageID, evt.FromMe)
	if err != nil {
		return err
	}
	if bridged {
		return nil
	}

	client, err := b.manager.GetClient(ctx, evt.Instance)
	if err != nil {
		return err
	}

	messageType := ports.MessageTypeIncoming
	if evt.FromMe {
		messageType = ports.MessageTypeOutgoing
	}

	message, err := client.CreateMessage(ctx, *original.CwConversationID, &ports.CreateMessageRequest{
		Content:     FormatEditedMessage(FormatMarkdownForChatwoot(evt.Text)),
		MessageType: messageType,
		SourceID:    sourceIDPrefix + evt.MessageID,
	})
	if err != nil {
		return err
	}

	if !retry {
		mapping := b.newMapping(evt, *original.CwConversationID, config.InboxID)
		if err := b.messages.Create(ctx, mapping); err != nil && !errors.Is(err, apperrors.ErrRaceLost) {
			return err
		}
	}
	return b.setChatwootIDs(ctx, evt.Instance, evt.MessageID, evt.FromMe, message.ID, *original.CwConversationID, config.InboxID)
}

// processReaction bridges an emoji reaction as a plain message quoting the
// reacted-to text. Reaction removals (empty emoji) are dropped.
func (b *InboundBridge) processReaction(ctx context.Context, config *ports.ChatwootInstanceConfig, evt *ports.MessageEvent) error {
	if evt.Reaction.Emoji == "" {
		return nil
	}

	target, err := b.lookupEitherDirection(ctx, evt.Instance, evt.Reaction.TargetMessageID)
	if err != nil {
		if errors.Is(err, apperrors.ErrMappingNotFound) {
			return nil
		}
		return err
	}
	if target.CwConversationID == nil {
		return nil
	}

	bridged, retry, err := b.deliveryState(ctx, evt.Instance, evt.MessageID, evt.FromMe)
	if err != nil {
		return err
	}
	if bridged {
		return nil
	}

	client, err := b.manager.GetClient(ctx, evt.Instance)
	if err != nil {
		return err
	}

	messageType := ports.MessageTypeIncoming
	if evt.FromMe {
		messageType = ports.MessageTypeOutgoing
	}

	var targetText string
	if target.Content != nil {
		targetText = *target.Content
	}

	message, err := client.CreateMessage(ctx, *target.CwConversationID, &ports.CreateMessageRequest{
		Content:     FormatReaction(evt.Reaction.Emoji, targetText),
		MessageType: messageType,
		SourceID:    sourceIDPrefix + evt.MessageID,
	})
	if err != nil {
		return err
	}

	if !retry {
		mapping := b.newMapping(evt, *target.CwConversationID, config.InboxID)
		if err := b.messages.Create(ctx, mapping); err != nil && !errors.Is(err, apperrors.ErrRaceLost) {
			return err
		}
	}
	return b.setChatwootIDs(ctx, evt.Instance, evt.MessageID, evt.FromMe, message.ID, *target.CwConversationID, config.InboxID)
}

// deliveryState reports whether the event already reached Chatwoot. A row
// stuck in failed state means an earlier attempt died after inserting the
// mapping, so a redelivery of the event should retry the send instead of
// treating the row as done.
func (b *InboundBridge) deliveryState(ctx context.Context, instance, msgID string, fromMe bool) (bridged, retry bool, err error) {
	existing, err := b.messages.GetByNativeID(ctx, instance, msgID, fromMe)
	if err != nil {
		if errors.Is(err, apperrors.ErrMappingNotFound) {
			return false, false, nil
		}
		return false, false, err
	}
	if existing.SyncStatus == ports.SyncStatusFailed {
		return false, true, nil
	}
	return true, false, nil
}

// setChatwootIDs retries briefly so a mapping row committed by a parallel
// writer becomes visible before we give up.
func (b *InboundBridge) setChatwootIDs(ctx context.Context, instance, msgID string, fromMe bool, cwMessageID, cwConversationID, cwInboxID int) error {
	var lastErr error
	for attempt := 0; attempt < mappingSetAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(mappingSetInterval):
			}
		}

		err := b.messages.SetChatwootIDs(ctx, instance, msgID, fromMe, cwMessageID, cwConversationID, cwInboxID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperrors.ErrMappingNotFound) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (b *InboundBridge) newMapping(evt *ports.MessageEvent, conversationID, inboxID int) *ports.MessageMapping {
	mapping := &ports.MessageMapping{
		ID:          uuid.New(),
		Instance:    evt.Instance,
		MsgID:       evt.MessageID,
		FromMe:      evt.FromMe,
		ChatJID:     evt.ChatJID,
		SenderJID:   evt.SenderJID,
		MessageType: evt.Type,
		Timestamp:   evt.Timestamp,
		SyncStatus:  ports.SyncStatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if evt.Text != "" {
		text := evt.Text
		mapping.Content = &text
	}
	return mapping
}

// lookupEitherDirection finds a mapping regardless of who sent the original
// message. Revokes, edits and reactions can target either direction.
func (b *InboundBridge) lookupEitherDirection(ctx context.Context, instance, msgID string) (*ports.MessageMapping, error) {
	mapping, err := b.messages.GetByNativeID(ctx, instance, msgID, false)
	if err == nil {
		return mapping, nil
	}
	if !errors.Is(err, apperrors.ErrMappingNotFound) {
		return nil, err
	}
	return b.messages.GetByNativeID(ctx, instance, msgID, true)
}

// enabledConfig loads the instance config, returning nil without error when
// the instance has no bridge configured or it is disabled.
func (b *InboundBridge) enabledConfig(ctx context.Context, instance string) (*ports.ChatwootInstanceConfig, error) {
	config, err := b.manager.GetConfig(ctx, instance)
	if err != nil {
		if errors.Is(err, ports.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !config.Enabled {
		return nil, nil
	}
	return config, nil
}

// profilePictureURL memoizes the avatar lookup so contact creation does not
// hit WhatsApp on every message.
func (b *InboundBridge) profilePictureURL(ctx context.Context, instance, jid, phone string) string {
	key := fmt.Sprintf("avatar:%s:%s", instance, phone)
	if url, ok := b.cache.GetString(key); ok {
		return url
	}

	url, err := b.gateway.GetProfilePictureURL(ctx, instance, jid)
	if err != nil {
		url = ""
	}
	b.cache.Set(key, url, avatarCacheTTL)
	return url
}

func jidIgnored(patterns []string, jid string) bool {
	for _, pattern := range patterns {
		if pattern == jid {
			return true
		}
		if strings.HasPrefix(pattern, "*") && strings.HasSuffix(jid, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}
	return false
}

func joinContent(parts ...string) string {
	var nonEmpty []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func attachmentFilename(media *ports.InboundMedia) string {
	if media.Filename != "" {
		return media.Filename
	}
	ext := "bin"
	if parts := strings.SplitN(media.MimeType, "/", 2); len(parts) == 2 {
		ext = strings.SplitN(parts[1], ";", 2)[0]
	}
	return "attachment." + ext
}

var vcardTelRe = regexp.MustCompile(`TEL[^:]*:([+\d][\d\s().-]*)`)

func vcardPhone(vcard string) string {
	match := vcardTelRe.FindStringSubmatch(vcard)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}
