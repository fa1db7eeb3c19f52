package wameow

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

const eventHandleTimeout = 60 * time.Second

// eventTranslator turns raw whatsmeow events into the normalized event
// types the bridge consumes. Events are processed synchronously so per-chat
// ordering is preserved.
type eventTranslator struct {
	instance  string
	client    *Client
	bridge    func() ports.EventBridge
	instances ports.InstanceRepository
	logger    *logger.Logger
}

func newEventTranslator(
	instance string,
	client *Client,
	bridge func() ports.EventBridge,
	instances ports.InstanceRepository,
	log *logger.Logger,
) *eventTranslator {
	return &eventTranslator{
		instance:  instance,
		client:    client,
		bridge:    bridge,
		instances: instances,
		logger:    log,
	}
}

func (t *eventTranslator) handle(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		t.handleMessage(evt)
	case *events.Receipt:
		t.handleReceipt(evt)
	case *events.Connected:
		t.handleConnection(ports.ConnectionStatusConnected)
	case *events.Disconnected:
		t.handleConnection(ports.ConnectionStatusDisconnected)
	case *events.LoggedOut:
		t.handleConnection(ports.ConnectionStatusLoggedOut)
	case *events.PairSuccess:
		t.handlePairSuccess(evt)
	}
}

func (t *eventTranslator) handleMessage(evt *events.Message) {
	bridge := t.bridge()
	if bridge == nil || evt.Message == nil {
		return
	}

	msg := evt.Message

	if pm := msg.GetProtocolMessage(); pm != nil {
		t.handleProtocolMessage(bridge, evt, pm)
		return
	}

	me := &ports.MessageEvent{
		Instance:  t.instance,
		MessageID: string(evt.Info.ID),
		ChatJID:   evt.Info.Chat.String(),
		SenderJID: evt.Info.Sender.String(),
		PushName:  evt.Info.PushName,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
	}

	if !t.translateContent(msg, me) {
		t.logger.DebugWithFields("Skipping message with no bridgeable content", map[string]interface{}{
			"instance":   t.instance,
			"message_id": me.MessageID,
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventHandleTimeout)
	defer cancel()

	if err := bridge.HandleMessage(ctx, me); err != nil {
		t.logger.ErrorWithFields("Bridge failed to handle message", map[string]interface{}{
			"instance":   t.instance,
			"message_id": me.MessageID,
			"error":      err.Error(),
		})
	}
}

// translateContent fills the normalized event from the wire message and
// reports whether anything usable was found.
func (t *eventTranslator) translateContent(msg *waE2E.Message, me *ports.MessageEvent) bool {
	switch {
	case msg.GetReactionMessage() != nil:
		r := msg.GetReactionMessage()
		me.Type = "reaction"
		me.Reaction = &ports.ReactionRef{
			TargetMessageID: r.GetKey().GetID(),
			Emoji:           r.GetText(),
		}

	case msg.GetConversation() != "":
		me.Type = "text"
		me.Text = msg.GetConversation()

	case msg.GetExtendedTextMessage() != nil:
		ext := msg.GetExtendedTextMessage()
		me.Type = "text"
		me.Text = ext.GetText()
		me.Quoted = quotedRefFrom(ext.GetContextInfo())

	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		me.Type = "image"
		me.Text = img.GetCaption()
		me.Media = t.inboundMedia(img.GetMimetype(), "", int64(img.GetFileLength()), img)
		me.Quoted = quotedRefFrom(img.GetContextInfo())

	case msg.GetAudioMessage() != nil:
		audio := msg.GetAudioMessage()
		me.Type = "audio"
		me.Media = t.inboundMedia(audio.GetMimetype(), "", int64(audio.GetFileLength()), audio)

	case msg.GetVideoMessage() != nil:
		video := msg.GetVideoMessage()
		me.Type = "video"
		me.Text = video.GetCaption()
		me.Media = t.inboundMedia(video.GetMimetype(), "", int64(video.GetFileLength()), video)
		me.Quoted = quotedRefFrom(video.GetContextInfo())

	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		me.Type = "document"
		me.Text = doc.GetCaption()
		me.Media = t.inboundMedia(doc.GetMimetype(), doc.GetFileName(), int64(doc.GetFileLength()), doc)

	case msg.GetStickerMessage() != nil:
		sticker := msg.GetStickerMessage()
		me.Type = "sticker"
		me.Media = t.inboundMedia(sticker.GetMimetype(), "", int64(sticker.GetFileLength()), sticker)

	case msg.GetLocationMessage() != nil:
		loc := msg.GetLocationMessage()
		me.Type = "location"
		me.Location = &ports.LocationRef{
			Latitude:  loc.GetDegreesLatitude(),
			Longitude: loc.GetDegreesLongitude(),
			Name:      loc.GetName(),
			Address:   loc.GetAddress(),
		}

	case msg.GetContactMessage() != nil:
		cm := msg.GetContactMessage()
		me.Type = "contact"
		me.ContactCard = &ports.ContactCardRef{
			DisplayName: cm.GetDisplayName(),
			VCard:       cm.GetVcard(),
		}

	default:
		return false
	}

	return true
}

func (t *eventTranslator) handleProtocolMessage(bridge ports.EventBridge, evt *events.Message, pm *waE2E.ProtocolMessage) {
	switch pm.GetType() {
	case waE2E.ProtocolMessage_REVOKE:
		ctx, cancel := context.WithTimeout(context.Background(), eventHandleTimeout)
		defer cancel()

		revoke := &ports.RevokeEvent{
			Instance:  t.instance,
			ChatJID:   evt.Info.Chat.String(),
			SenderJID: evt.Info.Sender.String(),
			MessageID: pm.GetKey().GetID(),
			FromMe:    evt.Info.IsFromMe,
		}

		if err := bridge.HandleRevoke(ctx, revoke); err != nil {
			t.logger.ErrorWithFields("Bridge failed to handle revoke", map[string]interface{}{
				"instance":   t.instance,
				"message_id": revoke.MessageID,
				"error":      err.Error(),
			})
		}

	case waE2E.ProtocolMessage_MESSAGE_EDIT:
		edited := pm.GetEditedMessage()
		if edited == nil {
			return
		}

		me := &ports.MessageEvent{
			Instance:  t.instance,
			MessageID: string(evt.Info.ID),
			ChatJID:   evt.Info.Chat.String(),
			SenderJID: evt.Info.Sender.String(),
			PushName:  evt.Info.PushName,
			FromMe:    evt.Info.IsFromMe,
			Timestamp: evt.Info.Timestamp,
			Type:      "text",
			Text:      textOf(edited),
			Edit:      &ports.EditRef{TargetMessageID: pm.GetKey().GetID()},
		}

		ctx, cancel := context.WithTimeout(context.Background(), eventHandleTimeout)
		defer cancel()

		if err := bridge.HandleMessage(ctx, me); err != nil {
			t.logger.ErrorWithFields("Bridge failed to handle edit", map[string]interface{}{
				"instance":   t.instance,
				"message_id": me.MessageID,
				"error":      err.Error(),
			})
		}
	}
}

func (t *eventTranslator) handleReceipt(evt *events.Receipt) {
	bridge := t.bridge()
	if bridge == nil || evt.Type != types.ReceiptTypeRead {
		return
	}

	ids := make([]string, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		ids = append(ids, string(id))
	}
	if len(ids) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventHandleTimeout)
	defer cancel()

	receipt := &ports.ReceiptEvent{
		Instance:   t.instance,
		ChatJID:    evt.Chat.String(),
		SenderJID:  evt.Sender.String(),
		MessageIDs: ids,
		Type:       "read",
		Timestamp:  evt.Timestamp,
	}

	if err := bridge.HandleReceipt(ctx, receipt); err != nil {
		t.logger.ErrorWithFields("Bridge failed to handle receipt", map[string]interface{}{
			"instance": t.instance,
			"error":    err.Error(),
		})
	}
}

func (t *eventTranslator) handleConnection(status string) {
	t.logger.InfoWithFields("Connection state changed", map[string]interface{}{
		"instance": t.instance,
		"status":   status,
	})

	ctx, cancel := context.WithTimeout(context.Background(), eventHandleTimeout)
	defer cancel()

	connected := status == ports.ConnectionStatusConnected
	if err := t.instances.SetConnected(ctx, t.instance, connected); err != nil {
		t.logger.WarnWithFields("Failed to persist connection state", map[string]interface{}{
			"instance": t.instance,
			"error":    err.Error(),
		})
	}

	bridge := t.bridge()
	if bridge == nil {
		return
	}

	evt := &ports.ConnectionEvent{Instance: t.instance, Status: status}
	if err := bridge.HandleConnection(ctx, evt); err != nil {
		t.logger.ErrorWithFields("Bridge failed to handle connection event", map[string]interface{}{
			"instance": t.instance,
			"status":   status,
			"error":    err.Error(),
		})
	}
}

func (t *eventTranslator) handlePairSuccess(evt *events.PairSuccess) {
	t.logger.InfoWithFields("Device paired", map[string]interface{}{
		"instance":   t.instance,
		"device_jid": evt.ID.String(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), eventHandleTimeout)
	defer cancel()

	if err := t.instances.SetDeviceJID(ctx, t.instance, evt.ID.String()); err != nil {
		t.logger.ErrorWithFields("Failed to persist device JID", map[string]interface{}{
			"instance":   t.instance,
			"device_jid": evt.ID.String(),
			"error":      err.Error(),
		})
	}
}

// inboundMedia wraps an encrypted attachment with a lazy download closure so
// the bytes are only pulled when the bridge decides to forward them.
func (t *eventTranslator) inboundMedia(mimetype, filename string, size int64, downloadable whatsmeow.DownloadableMessage) *ports.InboundMedia {
	return &ports.InboundMedia{
		MimeType: mimetype,
		Filename: filename,
		Size:     size,
		Download: func(ctx context.Context) ([]byte, error) {
			return t.client.wa.Download(ctx, downloadable)
		},
	}
}

func quotedRefFrom(info *waE2E.ContextInfo) *ports.QuotedRef {
	if info == nil || info.GetStanzaID() == "" {
		return nil
	}

	return &ports.QuotedRef{
		MessageID:   info.GetStanzaID(),
		Participant: info.GetParticipant(),
		Text:        textOf(info.GetQuotedMessage()),
	}
}

func textOf(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if msg.GetConversation() != "" {
		return msg.GetConversation()
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if video := msg.GetVideoMessage(); video != nil {
		return video.GetCaption()
	}
	return ""
}
