package chatwoot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "zapdesk/internal/domain/chatwoot"
	"zapdesk/internal/ports"
	apperrors "zapdesk/pkg/errors"
	"zapdesk/platform/logger"
)

// commandContactIdentifier marks the synthetic contact whose conversation
// acts as the operator command channel.
const commandContactIdentifier = "zapdesk-bot"

// WebhookHandler bridges Chatwoot webhook events toward WhatsApp. Every
// filter drops silently: the webhook endpoint always answers 200 so
// Chatwoot does not retry events we chose to ignore.
type WebhookHandler struct {
	manager   ports.ChatwootManager
	gateway   ports.WhatsAppGateway
	messages  ports.MessageMappingRepository
	deletions *DeletionCoordinator
	resolver  *ConversationResolver
	commands  *CommandExecutor
	media     *MediaFetcher
	logger    *logger.Logger
}

func NewWebhookHandler(
	manager ports.ChatwootManager,
	gateway ports.WhatsAppGateway,
	messages ports.MessageMappingRepository,
	deletions *DeletionCoordinator,
	resolver *ConversationResolver,
	commands *CommandExecutor,
	media *MediaFetcher,
	logger *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		manager:   manager,
		gateway:   gateway,
		messages:  messages,
		deletions: deletions,
		resolver:  resolver,
		commands:  commands,
		media:     media,
		logger:    logger.WithModule("chatwoot-webhook"),
	}
}

// ProvisionCommandChannel makes sure the operator command conversation
// exists for an instance. Called when a bridge config is created or
// updated; safe to call repeatedly.
func (h *WebhookHandler) ProvisionCommandChannel(ctx context.Context, instance string) error {
	config, err := h.manager.GetConfig(ctx, instance)
	if err != nil {
		return err
	}

	client, err := h.manager.GetClient(ctx, instance)
	if err != nil {
		return err
	}

	return ensureCommandChannel(ctx, client, config, h.logger)
}

// ProcessWebhook handles one webhook delivery for an instance.
func (h *WebhookHandler) ProcessWebhook(ctx context.Context, instance string, payload *domain.WebhookPayload) error {
	config, err := h.manager.GetConfig(ctx, instance)
	if err != nil {
		if errors.Is(err, ports.ErrConfigNotFound) {
			return nil
		}
		return err
	}
	if !config.Enabled {
		return nil
	}

	if !domain.IsHandledEvent(payload.Event) {
		return nil
	}

	switch domain.EventType(payload.Event) {
	case domain.EventMessageCreated:
		return h.handleMessageCreated(ctx, config, payload)
	case domain.EventMessageUpdated:
		if payload.IsDeleted() {
			return h.handleMessageDeleted(ctx, config, payload)
		}
		return nil
	case domain.EventConversationStatusChanged, domain.EventConversationResolved:
		return h.handleStatusChanged(config, payload)
	default:
		return nil
	}
}

func (h *WebhookHandler) handleMessageCreated(ctx context.Context, config *ports.ChatwootInstanceConfig, payload *domain.WebhookPayload) error {
	if payload.Private {
		return nil
	}

	if h.isCommandChannel(payload) {
		return h.handleCommand(ctx, config, payload)
	}

	if payload.MessageType != ports.MessageTypeOutgoing {
		return nil
	}
	if payload.SourceID != nil && strings.HasPrefix(*payload.SourceID, sourceIDPrefix) {
		// The bridge created this message itself; sending it back would loop
		return nil
	}
	if payload.Sender.Type == "agent_bot" {
		return nil
	}

	toJID := h.destinationJID(payload)
	if toJID == "" {
		return fmt.Errorf("webhook payload has no destination contact")
	}

	if _, err := h.messages.GetByChatwootMessageID(ctx, config.Instance, payload.ID); err == nil {
		// Chatwoot re-delivered the webhook
		return nil
	} else if !errors.Is(err, apperrors.ErrMappingNotFound) {
		return err
	}

	reply := h.replyContext(ctx, config.Instance, payload)
	content := h.renderOutbound(config, payload)

	result, messageType, err := h.send(ctx, config.Instance, toJID, content, reply, payload.Attachments)
	if err != nil {
		h.postFailureNote(ctx, config, payload)
		h.logger.ErrorWithFields("Failed to deliver agent message", map[string]interface{}{
			"instance":        config.Instance,
			"message_id":      payload.ID,
			"conversation_id": payload.Conversation.ID,
			"error":           err.Error(),
		})
		return nil
	}

	return h.recordMapping(ctx, config, payload, result, toJID, messageType, content)
}

// send delivers text or attachments; the caption rides on the first
// attachment when any exist.
func (h *WebhookHandler) send(ctx context.Context, instance, toJID, content string, reply *ports.ReplyContext, attachments []domain.Attachment) (*ports.SendResult, string, error) {
	if len(attachments) == 0 {
		result, err := h.gateway.SendText(ctx, instance, toJID, content, reply)
		return result, "text", err
	}

	var result *ports.SendResult
	mediaType := "text"
	for i, attachment := range attachments {
		data, mimeType, err := h.media.FetchURL(ctx, attachment.DataURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch attachment: %w", err)
		}

		caption := ""
		if i == 0 {
			caption = content
		}

		mediaType = whatsappMediaType(attachment.FileType)
		result, err = h.gateway.SendMedia(ctx, instance, toJID, &ports.OutboundMedia{
			Type:     mediaType,
			Data:     data,
			MimeType: mimeType,
			Filename: attachment.FileName,
			Caption:  caption,
		}, reply)
		if err != nil {
			return nil, "", err
		}
		reply = nil
	}

	return result, mediaType, nil
}

// recordMapping inserts the full mapping row in one write, both sides of
// the id pair populated together.
func (h *WebhookHandler) recordMapping(ctx context.Context, config *ports.ChatwootInstanceConfig, payload *domain.WebhookPayload, result *ports.SendResult, toJID, messageType, content string) error {
	cwMessageID := payload.ID
	cwConversationID := payload.Conversation.ID
	cwInboxID := config.InboxID

	mapping := &ports.MessageMapping{
		ID:               uuid.New(),
		Instance:         config.Instance,
		MsgID:            result.MessageID,
		FromMe:           true,
		ChatJID:          toJID,
		SenderJID:        toJID,
		MessageType:      messageType,
		Timestamp:        result.Timestamp,
		CwMessageID:      &cwMessageID,
		CwConversationID: &cwConversationID,
		CwInboxID:        &cwInboxID,
		SyncStatus:       ports.SyncStatusSynced,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if content != "" {
		mapping.Content = &content
	}

	if err := h.messages.Create(ctx, mapping); err != nil && !errors.Is(err, apperrors.ErrRaceLost) {
		return err
	}
	return nil
}

func (h *WebhookHandler) handleMessageDeleted(ctx context.Context, config *ports.ChatwootInstanceConfig, payload *domain.WebhookPayload) error {
	mapping, err := h.messages.GetByChatwootMessageID(ctx, config.Instance, payload.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrMappingNotFound) {
			return nil
		}
		return err
	}

	outcome, err := h.deletions.Run(ctx, config.Instance, mapping.MsgID, func(ctx context.Context) error {
		if err := h.gateway.RevokeMessage(ctx, config.Instance, mapping.ChatJID, mapping.MsgID); err != nil {
			return err
		}
		return h.messages.DeleteByChatwootMessageID(ctx, config.Instance, payload.ID)
	})
	if outcome == DeletionAlreadyInProgress {
		return nil
	}
	return err
}

func (h *WebhookHandler) handleStatusChanged(config *ports.ChatwootInstanceConfig, payload *domain.WebhookPayload) error {
	if payload.Conversation.Status != ports.ConversationStatusResolved {
		return nil
	}

	contactKey := h.contactKey(payload)
	if contactKey == "" {
		return nil
	}

	h.resolver.Evict(config.Instance, contactKey)
	h.logger.DebugWithFields("Evicted conversation cache after resolve", map[string]interface{}{
		"instance":        config.Instance,
		"conversation_id": payload.Conversation.ID,
	})
	return nil
}

// handleCommand parses and runs an operator command, posting the reply back
// into the same conversation as an incoming message.
func (h *WebhookHandler) handleCommand(ctx context.Context, config *ports.ChatwootInstanceConfig, payload *domain.WebhookPayload) error {
	if payload.MessageType != ports.MessageTypeOutgoing {
		return nil
	}
	if payload.SourceID != nil && strings.HasPrefix(*payload.SourceID, sourceIDPrefix) {
		return nil
	}

	cmd := domain.ParseCommand(payload.Content)
	if cmd == nil {
		return nil
	}

	reply := h.commands.Execute(ctx, config.Instance, cmd)

	client, err := h.manager.GetClient(ctx, config.Instance)
	if err != nil {
		return err
	}

	_, err = client.CreateMessage(ctx, payload.Conversation.ID, &ports.CreateMessageRequest{
		Content:     reply,
		MessageType: ports.MessageTypeIncoming,
	})
	return err
}

// postFailureNote leaves a private note so the agent knows the message did
// not reach the contact. Best effort only.
func (h *WebhookHandler) postFailureNote(ctx context.Context, config *ports.ChatwootInstanceConfig, payload *domain.WebhookPayload) {
	client, err := h.manager.GetClient(ctx, config.Instance)
	if err != nil {
		return
	}

	_, err = client.CreateMessage(ctx, payload.Conversation.ID, &ports.CreateMessageRequest{
		Content:     "⚠️ This message was not delivered to WhatsApp. Check the instance connection and try again.",
		MessageType: ports.MessageTypeOutgoing,
		Private:     true,
	})
	if err != nil {
		h.logger.WarnWithFields("Failed to post delivery failure note", map[string]interface{}{
			"instance":        config.Instance,
			"conversation_id": payload.Conversation.ID,
			"error":           err.Error(),
		})
	}
}

// replyContext maps the in_reply_to reference back to the native message so
// WhatsApp shows the quoted bubble.
func (h *WebhookHandler) replyContext(ctx context.Context, instance string, payload *domain.WebhookPayload) *ports.ReplyContext {
	replyTo := payload.InReplyTo()
	if replyTo == 0 {
		return nil
	}

	mapping, err := h.messages.GetByChatwootMessageID(ctx, instance, replyTo)
	if err != nil {
		return nil
	}

	reply := &ports.ReplyContext{
		MessageID:   mapping.MsgID,
		Participant: mapping.SenderJID,
	}
	if mapping.Content != nil {
		reply.Quoted = *mapping.Content
	}
	return reply
}

func (h *WebhookHandler) renderOutbound(config *ports.ChatwootInstanceConfig, payload *domain.WebhookPayload) string {
	content := FormatMarkdownForWhatsApp(payload.Content)
	if config.SignMessages && payload.Sender.Name != "" {
		content = FormatSignedMessage(content, payload.Sender.Name, config.SignDelimiter)
	}
	return content
}

func (h *WebhookHandler) isCommandChannel(payload *domain.WebhookPayload) bool {
	return payload.Conversation.Meta.Sender.Identifier == commandContactIdentifier
}

// destinationJID derives the WhatsApp chat from the conversation's contact.
// The identifier carries the full JID when the bridge created the contact.
func (h *WebhookHandler) destinationJID(payload *domain.WebhookPayload) string {
	sender := payload.Conversation.Meta.Sender
	if strings.Contains(sender.Identifier, "@") {
		return sender.Identifier
	}
	if sender.PhoneNumber != "" {
		return JIDFromPhone(CanonicalPhone(sender.PhoneNumber))
	}
	return ""
}

func (h *WebhookHandler) contactKey(payload *domain.WebhookPayload) string {
	sender := payload.Conversation.Meta.Sender
	if sender.PhoneNumber != "" {
		return CanonicalPhone(sender.PhoneNumber)
	}
	if sender.Identifier != "" {
		return CanonicalPhone(sender.Identifier)
	}
	return ""
}

func whatsappMediaType(fileType string) string {
	switch fileType {
	case "image":
		return ports.MediaTypeImage
	case "audio":
		return ports.MediaTypeAudio
	case "video":
		return ports.MediaTypeVideo
	default:
		return ports.MediaTypeDocument
	}
}
