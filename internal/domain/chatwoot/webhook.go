package chatwoot

// WebhookPayload mirrors the payload Chatwoot actually posts: message
// fields sit flat at the top level next to the conversation and sender
// objects.
type WebhookPayload struct {
	Event   string  `json:"event"`
	Account Account `json:"account"`

	Conversation WebhookConversation `json:"conversation"`
	Sender       WebhookSender       `json:"sender"`

	ID          int     `json:"id"`
	Content     string  `json:"content"`
	ContentType string  `json:"content_type"`
	MessageType string  `json:"message_type"`
	Private     bool    `json:"private"`
	SourceID    *string `json:"source_id"`

	ContentAttributes map[string]interface{} `json:"content_attributes"`
	Attachments       []Attachment           `json:"attachments"`
	Inbox             map[string]interface{} `json:"inbox"`
}

type Account struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type WebhookConversation struct {
	ID     int    `json:"id"`
	InboxID int   `json:"inbox_id"`
	Status string `json:"status"`
	Meta   struct {
		Sender struct {
			ID          int    `json:"id"`
			Name        string `json:"name"`
			PhoneNumber string `json:"phone_number"`
			Identifier  string `json:"identifier"`
		} `json:"sender"`
	} `json:"meta"`
}

type WebhookSender struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Email       *string `json:"email"`
	Identifier  *string `json:"identifier"`
	PhoneNumber string  `json:"phone_number"`
	Thumbnail   string  `json:"thumbnail"`
}

type Attachment struct {
	ID       int    `json:"id"`
	FileType string `json:"file_type"`
	DataURL  string `json:"data_url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

type EventType string

const (
	EventMessageCreated            EventType = "message_created"
	EventMessageUpdated            EventType = "message_updated"
	EventConversationCreated       EventType = "conversation_created"
	EventConversationStatusChanged EventType = "conversation_status_changed"
	EventConversationResolved      EventType = "conversation_resolved"
	EventContactUpdated            EventType = "contact_updated"
)

func IsHandledEvent(eventType string) bool {
	switch EventType(eventType) {
	case EventMessageCreated,
		EventMessageUpdated,
		EventConversationStatusChanged,
		EventConversationResolved:
		return true
	default:
		return false
	}
}

// IsDeleted reports whether a message_updated payload carries the deletion
// marker Chatwoot sets when an agent deletes a message.
func (p *WebhookPayload) IsDeleted() bool {
	if p.ContentAttributes == nil {
		return false
	}
	deleted, ok := p.ContentAttributes["deleted"].(bool)
	return ok && deleted
}

// InReplyTo returns the Chatwoot message id this message replies to, or 0.
func (p *WebhookPayload) InReplyTo() int {
	if p.ContentAttributes == nil {
		return 0
	}
	switch v := p.ContentAttributes["in_reply_to"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
