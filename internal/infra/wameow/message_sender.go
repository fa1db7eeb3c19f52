package wameow

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"zapdesk/internal/ports"
)

func (c *Client) SendText(ctx context.Context, to, body string, reply *ports.ReplyContext) (*ports.SendResult, error) {
	if !c.wa.IsLoggedIn() {
		return nil, fmt.Errorf("client is not logged in")
	}

	jid, err := ParseJID(to)
	if err != nil {
		return nil, fmt.Errorf("invalid JID: %w", err)
	}

	var message *waE2E.Message
	if reply != nil {
		message = &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text:        proto.String(body),
				ContextInfo: buildContextInfo(reply),
			},
		}
	} else {
		message = &waE2E.Message{
			Conversation: proto.String(body),
		}
	}

	c.logger.InfoWithFields("Sending text message", map[string]interface{}{
		"instance":  c.instance,
		"to":        to,
		"has_reply": reply != nil,
	})

	resp, err := c.wa.SendMessage(ctx, jid, message)
	if err != nil {
		c.logger.ErrorWithFields("Failed to send text message", map[string]interface{}{
			"instance": c.instance,
			"to":       to,
			"error":    err.Error(),
		})
		return nil, err
	}

	return &ports.SendResult{MessageID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

func (c *Client) SendMedia(ctx context.Context, to string, media *ports.OutboundMedia, reply *ports.ReplyContext) (*ports.SendResult, error) {
	if !c.wa.IsLoggedIn() {
		return nil, fmt.Errorf("client is not logged in")
	}
	if media == nil || len(media.Data) == 0 {
		return nil, fmt.Errorf("media payload is empty")
	}

	jid, err := ParseJID(to)
	if err != nil {
		return nil, fmt.Errorf("invalid JID: %w", err)
	}

	uploadType, err := uploadTypeFor(media.Type)
	if err != nil {
		return nil, err
	}

	uploaded, err := c.wa.Upload(ctx, media.Data, uploadType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", media.Type, err)
	}

	message := buildMediaMessage(media, uploaded, buildContextInfo(reply))

	c.logger.InfoWithFields("Sending media message", map[string]interface{}{
		"instance":   c.instance,
		"to":         to,
		"media_type": media.Type,
		"file_size":  len(media.Data),
		"has_reply":  reply != nil,
	})

	resp, err := c.wa.SendMessage(ctx, jid, message)
	if err != nil {
		c.logger.ErrorWithFields("Failed to send media message", map[string]interface{}{
			"instance": c.instance,
			"to":       to,
			"error":    err.Error(),
		})
		return nil, err
	}

	return &ports.SendResult{MessageID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

func (c *Client) SendReaction(ctx context.Context, to, messageID, emoji string) (*ports.SendResult, error) {
	if !c.wa.IsLoggedIn() {
		return nil, fmt.Errorf("client is not logged in")
	}
	if messageID == "" {
		return nil, fmt.Errorf("message ID is required")
	}

	jid, err := ParseJID(to)
	if err != nil {
		return nil, fmt.Errorf("invalid JID: %w", err)
	}

	message := c.wa.BuildReaction(jid, jid, types.MessageID(messageID), emoji)

	resp, err := c.wa.SendMessage(ctx, jid, message)
	if err != nil {
		c.logger.ErrorWithFields("Failed to send reaction", map[string]interface{}{
			"instance":   c.instance,
			"to":         to,
			"message_id": messageID,
			"error":      err.Error(),
		})
		return nil, err
	}

	return &ports.SendResult{MessageID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

func (c *Client) Revoke(ctx context.Context, to, messageID string) error {
	if !c.wa.IsLoggedIn() {
		return fmt.Errorf("client is not logged in")
	}
	if messageID == "" {
		return fmt.Errorf("message ID is required")
	}

	jid, err := ParseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}

	c.logger.InfoWithFields("Revoking message", map[string]interface{}{
		"instance":   c.instance,
		"to":         to,
		"message_id": messageID,
	})

	message := c.wa.BuildRevoke(jid, types.EmptyJID, types.MessageID(messageID))

	if _, err := c.wa.SendMessage(ctx, jid, message); err != nil {
		c.logger.ErrorWithFields("Failed to revoke message", map[string]interface{}{
			"instance":   c.instance,
			"to":         to,
			"message_id": messageID,
			"error":      err.Error(),
		})
		return err
	}

	return nil
}

func (c *Client) MarkRead(ctx context.Context, chatJID, senderJID string, messageIDs []string) error {
	if !c.wa.IsLoggedIn() {
		return fmt.Errorf("client is not logged in")
	}
	if len(messageIDs) == 0 {
		return fmt.Errorf("at least one message ID is required")
	}

	chat, err := ParseJID(chatJID)
	if err != nil {
		return fmt.Errorf("invalid chat JID: %w", err)
	}

	sender := chat
	if senderJID != "" {
		if parsed, parseErr := ParseJID(senderJID); parseErr == nil {
			sender = parsed
		}
	}

	ids := make([]types.MessageID, 0, len(messageIDs))
	for _, id := range messageIDs {
		ids = append(ids, types.MessageID(id))
	}

	if err := c.wa.MarkRead(ids, time.Now(), chat, sender, ""); err != nil {
		c.logger.ErrorWithFields("Failed to mark messages as read", map[string]interface{}{
			"instance": c.instance,
			"chat":     chatJID,
			"count":    len(ids),
			"error":    err.Error(),
		})
		return err
	}

	return nil
}

func (c *Client) ProfilePictureURL(ctx context.Context, jidStr string) (string, error) {
	if !c.wa.IsLoggedIn() {
		return "", fmt.Errorf("client is not logged in")
	}

	jid, err := ParseJID(jidStr)
	if err != nil {
		return "", fmt.Errorf("invalid JID: %w", err)
	}

	info, err := c.wa.GetProfilePictureInfo(jid, &whatsmeow.GetProfilePictureParams{Preview: true})
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}

	return info.URL, nil
}

func buildContextInfo(reply *ports.ReplyContext) *waE2E.ContextInfo {
	if reply == nil {
		return nil
	}

	info := &waE2E.ContextInfo{
		StanzaID:      proto.String(reply.MessageID),
		QuotedMessage: &waE2E.Message{Conversation: proto.String(reply.Quoted)},
	}

	if reply.Participant != "" {
		info.Participant = proto.String(reply.Participant)
	}

	return info
}

func uploadTypeFor(mediaType string) (whatsmeow.MediaType, error) {
	switch mediaType {
	case ports.MediaTypeImage:
		return whatsmeow.MediaImage, nil
	case ports.MediaTypeAudio:
		return whatsmeow.MediaAudio, nil
	case ports.MediaTypeVideo:
		return whatsmeow.MediaVideo, nil
	case ports.MediaTypeDocument:
		return whatsmeow.MediaDocument, nil
	case ports.MediaTypeSticker:
		// Stickers ride on the image media channel
		return whatsmeow.MediaImage, nil
	default:
		return "", fmt.Errorf("unsupported media type: %s", mediaType)
	}
}

func buildMediaMessage(media *ports.OutboundMedia, uploaded whatsmeow.UploadResponse, contextInfo *waE2E.ContextInfo) *waE2E.Message {
	switch media.Type {
	case ports.MediaTypeImage:
		mimetype := mimetypeOr(media.MimeType, "image/jpeg")
		return &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{
				Caption:       proto.String(media.Caption),
				URL:           &uploaded.URL,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				Mimetype:      &mimetype,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &uploaded.FileLength,
				ContextInfo:   contextInfo,
			},
		}
	case ports.MediaTypeAudio:
		mimetype := mimetypeOr(media.MimeType, "audio/ogg; codecs=opus")
		return &waE2E.Message{
			AudioMessage: &waE2E.AudioMessage{
				URL:           &uploaded.URL,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				Mimetype:      &mimetype,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &uploaded.FileLength,
				ContextInfo:   contextInfo,
			},
		}
	case ports.MediaTypeVideo:
		mimetype := mimetypeOr(media.MimeType, "video/mp4")
		return &waE2E.Message{
			VideoMessage: &waE2E.VideoMessage{
				Caption:       proto.String(media.Caption),
				URL:           &uploaded.URL,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				Mimetype:      &mimetype,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &uploaded.FileLength,
				ContextInfo:   contextInfo,
			},
		}
	case ports.MediaTypeSticker:
		mimetype := mimetypeOr(media.MimeType, "image/webp")
		return &waE2E.Message{
			StickerMessage: &waE2E.StickerMessage{
				URL:           &uploaded.URL,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				Mimetype:      &mimetype,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &uploaded.FileLength,
			},
		}
	default:
		mimetype := mimetypeOr(media.MimeType, "application/octet-stream")
		filename := media.Filename
		if filename == "" {
			filename = "document"
		}
		return &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				Title:         proto.String(filename),
				FileName:      proto.String(filename),
				Caption:       proto.String(media.Caption),
				URL:           &uploaded.URL,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				Mimetype:      &mimetype,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &uploaded.FileLength,
				ContextInfo:   contextInfo,
			},
		}
	}
}

func mimetypeOr(mimetype, fallback string) string {
	if mimetype == "" {
		return fallback
	}
	return mimetype
}
