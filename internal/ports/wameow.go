package ports

import (
	"context"
	"time"
)

// WhatsAppGateway is what the bridge needs from the WhatsApp side. The
// wameow package implements it over whatsmeow.
type WhatsAppGateway interface {
	SendText(ctx context.Context, instance, toJID, body string, reply *ReplyContext) (*SendResult, error)
	SendMedia(ctx context.Context, instance, toJID string, media *OutboundMedia, reply *ReplyContext) (*SendResult, error)
	SendReaction(ctx context.Context, instance, toJID, targetMsgID, emoji string) (*SendResult, error)
	RevokeMessage(ctx context.Context, instance, chatJID, msgID string) error
	MarkRead(ctx context.Context, instance, chatJID, senderJID string, msgIDs []string) error
	GetProfilePictureURL(ctx context.Context, instance, jid string) (string, error)

	Connect(ctx context.Context, instance string) error
	Disconnect(instance string) error
	Logout(ctx context.Context, instance string) error
	ConnectionStatus(instance string) *InstanceStatus
	GetQRCode(ctx context.Context, instance string) (*QRCodeResult, error)
}

type SendResult struct {
	MessageID string
	Timestamp time.Time
}

// ReplyContext quotes a previous message in an outgoing send.
type ReplyContext struct {
	MessageID   string
	Participant string
	Quoted      string
}

type OutboundMedia struct {
	Type     string
	Data     []byte
	MimeType string
	Filename string
	Caption  string
}

const (
	MediaTypeImage    = "image"
	MediaTypeAudio    = "audio"
	MediaTypeVideo    = "video"
	MediaTypeDocument = "document"
	MediaTypeSticker  = "sticker"
)

type InstanceStatus struct {
	Instance  string `json:"instance"`
	Connected bool   `json:"connected"`
	LoggedIn  bool   `json:"logged_in"`
	JID       string `json:"jid,omitempty"`
}

type QRCodeResult struct {
	Code      string    `json:"code"`
	PNGBase64 string    `json:"png_base64"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MessageEvent is a normalized inbound WhatsApp message, already detached
// from the whatsmeow event types.
type MessageEvent struct {
	Instance    string
	MessageID   string
	ChatJID     string
	SenderJID   string
	PushName    string
	FromMe      bool
	Timestamp   time.Time
	Type        string
	Text        string
	Media       *InboundMedia
	Quoted      *QuotedRef
	Reaction    *ReactionRef
	Location    *LocationRef
	ContactCard *ContactCardRef
	Edit        *EditRef
}

// InboundMedia describes an attachment on an inbound message. Download
// pulls the decrypted bytes from WhatsApp; URL is set instead when the
// media is served over plain HTTP.
type InboundMedia struct {
	MimeType string
	Filename string
	Size     int64
	URL      string
	Download func(ctx context.Context) ([]byte, error)
}

type QuotedRef struct {
	MessageID   string
	Participant string
	Text        string
}

type ReactionRef struct {
	TargetMessageID string
	Emoji           string
}

type LocationRef struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

type ContactCardRef struct {
	DisplayName string
	VCard       string
}

// EditRef marks a message event as an edit of a previously sent message.
type EditRef struct {
	TargetMessageID string
}

type RevokeEvent struct {
	Instance  string
	ChatJID   string
	SenderJID string
	MessageID string
	FromMe    bool
}

type ReceiptEvent struct {
	Instance   string
	ChatJID    string
	SenderJID  string
	MessageIDs []string
	Type       string
	Timestamp  time.Time
}

type ConnectionEvent struct {
	Instance string
	Status   string
}

const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusDisconnected = "disconnected"
	ConnectionStatusLoggedOut    = "logged_out"
)

// EventBridge receives normalized WhatsApp events. The Chatwoot integration
// implements it; the wameow event handler drives it.
type EventBridge interface {
	IsEnabled(ctx context.Context, instance string) bool
	HandleMessage(ctx context.Context, evt *MessageEvent) error
	HandleRevoke(ctx context.Context, evt *RevokeEvent) error
	HandleReceipt(ctx context.Context, evt *ReceiptEvent) error
	HandleConnection(ctx context.Context, evt *ConnectionEvent) error
}
