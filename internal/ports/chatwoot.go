package ports

import (
	"context"
)

// ChatwootClient is the subset of the Chatwoot API the bridge talks to.
// Implementations carry the account scope and access token.
type ChatwootClient interface {
	CreateInbox(ctx context.Context, name, webhookURL string) (*ChatwootInbox, error)
	ListInboxes(ctx context.Context) ([]ChatwootInbox, error)

	SearchContacts(ctx context.Context, query string) ([]ChatwootContact, error)
	CreateContact(ctx context.Context, req *CreateContactRequest) (*ChatwootContact, error)
	UpdateContact(ctx context.Context, contactID int, req *UpdateContactRequest) (*ChatwootContact, error)
	MergeContacts(ctx context.Context, baseContactID, mergeeContactID int) error

	ListContactConversations(ctx context.Context, contactID int) ([]ChatwootConversation, error)
	CreateConversation(ctx context.Context, req *CreateConversationRequest) (*ChatwootConversation, error)
	GetConversation(ctx context.Context, conversationID int) (*ChatwootConversation, error)
	ToggleConversationStatus(ctx context.Context, conversationID int, status string) error

	CreateMessage(ctx context.Context, conversationID int, req *CreateMessageRequest) (*ChatwootMessage, error)
	CreateAttachmentMessage(ctx context.Context, conversationID int, req *AttachmentMessageRequest) (*ChatwootMessage, error)
	DeleteMessage(ctx context.Context, conversationID, messageID int) error
}

// ChatwootManager hands out per-instance clients and configuration.
type ChatwootManager interface {
	GetClient(ctx context.Context, instance string) (ChatwootClient, error)
	GetConfig(ctx context.Context, instance string) (*ChatwootInstanceConfig, error)
	IsEnabled(ctx context.Context, instance string) bool
	InvalidateInstance(instance string)
	SetInboxID(ctx context.Context, instance string, inboxID int) error
}

type ChatwootInbox struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	ChannelType string `json:"channel_type"`
	WebhookURL  string `json:"webhook_url,omitempty"`
}

type ChatwootContact struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Identifier  string `json:"identifier,omitempty"`
	Email       string `json:"email,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

type ChatwootConversation struct {
	ID        int    `json:"id"`
	InboxID   int    `json:"inbox_id"`
	Status    string `json:"status"`
	ContactID int    `json:"contact_id,omitempty"`
}

type ChatwootMessage struct {
	ID             int    `json:"id"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
	ConversationID int    `json:"conversation_id"`
	SourceID       string `json:"source_id,omitempty"`
	Private        bool   `json:"private"`
}

type CreateContactRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Identifier  string `json:"identifier,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	InboxID     int    `json:"inbox_id,omitempty"`
}

type UpdateContactRequest struct {
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type CreateConversationRequest struct {
	ContactID int    `json:"contact_id"`
	InboxID   int    `json:"inbox_id"`
	SourceID  string `json:"source_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// CreateMessageRequest posts a single message into a conversation. SourceID
// carries the native message id so bridge-created messages can be recognized
// when they come back through the webhook.
type CreateMessageRequest struct {
	Content           string                 `json:"content"`
	MessageType       string                 `json:"message_type"`
	Private           bool                   `json:"private,omitempty"`
	SourceID          string                 `json:"source_id,omitempty"`
	ContentAttributes map[string]interface{} `json:"content_attributes,omitempty"`
}

// AttachmentMessageRequest posts a message with binary attachments via
// multipart upload.
type AttachmentMessageRequest struct {
	Content     string
	MessageType string
	SourceID    string
	Attachments []AttachmentUpload
}

type AttachmentUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

// ChatwootInstanceConfig is the resolved bridge configuration for one
// WhatsApp instance, as the integration layer consumes it.
type ChatwootInstanceConfig struct {
	Instance            string
	URL                 string
	Token               string
	AccountID           string
	InboxID             int
	InboxName           string
	Enabled             bool
	AutoCreateInbox     bool
	SignMessages        bool
	SignDelimiter       string
	ReopenConversation  bool
	ConversationPending bool
	MergeBrazilContacts bool
	IgnoreJids          []string
}

const (
	MessageTypeIncoming = "incoming"
	MessageTypeOutgoing = "outgoing"

	ConversationStatusOpen     = "open"
	ConversationStatusPending  = "pending"
	ConversationStatusResolved = "resolved"
)
