package ports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConfigNotFound   = errors.New("chatwoot config not found")
	ErrConfigExists     = errors.New("chatwoot config already exists")
	ErrContactNotFound  = errors.New("contact mapping not found")
	ErrInstanceNotFound = errors.New("instance not found")
)

// MessageMapping links one native WhatsApp message to its Chatwoot
// counterpart. A row is created before the Chatwoot ids are known; they are
// filled in once the remote side confirms.
type MessageMapping struct {
	ID               uuid.UUID  `json:"id"`
	Instance         string     `json:"instance"`
	MsgID            string     `json:"msg_id"`
	FromMe           bool       `json:"from_me"`
	ChatJID          string     `json:"chat_jid"`
	SenderJID        string     `json:"sender_jid"`
	MessageType      string     `json:"message_type"`
	Content          *string    `json:"content,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
	CwMessageID      *int       `json:"cw_message_id,omitempty"`
	CwConversationID *int       `json:"cw_conversation_id,omitempty"`
	CwInboxID        *int       `json:"cw_inbox_id,omitempty"`
	IsRead           bool       `json:"is_read"`
	SyncStatus       string     `json:"sync_status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusFailed  = "failed"
)

// MessageMappingRepository persists message mappings. GetBy* return
// pkg/errors.ErrMappingNotFound when no row matches; SetChatwootIDs returns
// the same error when the row has not been created yet.
type MessageMappingRepository interface {
	Create(ctx context.Context, mapping *MessageMapping) error
	GetByNativeID(ctx context.Context, instance, msgID string, fromMe bool) (*MessageMapping, error)
	GetByChatwootMessageID(ctx context.Context, instance string, cwMessageID int) (*MessageMapping, error)
	SetChatwootIDs(ctx context.Context, instance, msgID string, fromMe bool, cwMessageID, cwConversationID, cwInboxID int) error
	SetSyncStatus(ctx context.Context, instance, msgID string, fromMe bool, status string) error
	MarkRead(ctx context.Context, instance, msgID string) error
	DeleteByChatwootMessageID(ctx context.Context, instance string, cwMessageID int) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ContactMapping caches the Chatwoot contact resolved for a canonical phone
// number so repeated inbound messages skip the remote search.
type ContactMapping struct {
	ID          uuid.UUID `json:"id"`
	Instance    string    `json:"instance"`
	Phone       string    `json:"phone"`
	CwContactID int       `json:"cw_contact_id"`
	Name        string    `json:"name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ContactMappingRepository interface {
	GetByPhones(ctx context.Context, instance string, phones []string) (*ContactMapping, error)
	Upsert(ctx context.Context, mapping *ContactMapping) error
	DeleteByInstance(ctx context.Context, instance string) error
}

// WhatsAppInstance records a named WhatsApp connection and the device it
// paired with, so restarts can re-attach clients to their devices.
type WhatsAppInstance struct {
	ID         uuid.UUID  `json:"id"`
	Instance   string     `json:"instance"`
	DeviceJID  *string    `json:"device_jid,omitempty"`
	Connected  bool       `json:"connected"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type InstanceRepository interface {
	Upsert(ctx context.Context, instance *WhatsAppInstance) error
	GetByName(ctx context.Context, instance string) (*WhatsAppInstance, error)
	List(ctx context.Context) ([]*WhatsAppInstance, error)
	SetDeviceJID(ctx context.Context, instance, deviceJID string) error
	SetConnected(ctx context.Context, instance string, connected bool) error
	DeleteByName(ctx context.Context, instance string) error
}

// ChatwootConfigRepository persists per-instance bridge configuration.
type ChatwootConfigRepository interface {
	Create(ctx context.Context, config *ChatwootConfig) error
	GetByInstance(ctx context.Context, instance string) (*ChatwootConfig, error)
	Update(ctx context.Context, config *ChatwootConfig) error
	DeleteByInstance(ctx context.Context, instance string) error
	List(ctx context.Context) ([]*ChatwootConfig, error)
}

// ChatwootConfig is the persisted form of a per-instance bridge
// configuration.
type ChatwootConfig struct {
	ID                  uuid.UUID `json:"id"`
	Instance            string    `json:"instance"`
	URL                 string    `json:"url"`
	Token               string    `json:"token"`
	AccountID           string    `json:"account_id"`
	InboxID             *string   `json:"inbox_id,omitempty"`
	InboxName           *string   `json:"inbox_name,omitempty"`
	Enabled             bool      `json:"enabled"`
	AutoCreateInbox     bool      `json:"auto_create_inbox"`
	SignMessages        bool      `json:"sign_messages"`
	SignDelimiter       string    `json:"sign_delimiter"`
	ReopenConversation  bool      `json:"reopen_conversation"`
	ConversationPending bool      `json:"conversation_pending"`
	MergeBrazilContacts bool      `json:"merge_brazil_contacts"`
	Number              *string   `json:"number,omitempty"`
	Organization        *string   `json:"organization,omitempty"`
	Logo                *string   `json:"logo,omitempty"`
	IgnoreJids          []string  `json:"ignore_jids"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
