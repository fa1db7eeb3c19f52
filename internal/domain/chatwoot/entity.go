package chatwoot

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config is the per-instance bridge configuration entity.
type Config struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Instance  string    `json:"instance" db:"instance"`
	URL       string    `json:"url" db:"url"`
	Token     string    `json:"token" db:"token"`
	AccountID string    `json:"accountId" db:"accountId"`
	InboxID   *string   `json:"inboxId,omitempty" db:"inboxId"`
	Enabled   bool      `json:"enabled" db:"enabled"`

	InboxName           *string  `json:"inboxName,omitempty" db:"inboxName"`
	AutoCreateInbox     bool     `json:"autoCreateInbox" db:"autoCreateInbox"`
	SignMessages        bool     `json:"signMessages" db:"signMessages"`
	SignDelimiter       string   `json:"signDelimiter" db:"signDelimiter"`
	ReopenConversation  bool     `json:"reopenConversation" db:"reopenConversation"`
	ConversationPending bool     `json:"conversationPending" db:"conversationPending"`
	MergeBrazilContacts bool     `json:"mergeBrazilContacts" db:"mergeBrazilContacts"`
	Organization        *string  `json:"organization,omitempty" db:"organization"`
	Logo                *string  `json:"logo,omitempty" db:"logo"`
	Number              *string  `json:"number,omitempty" db:"number"`
	IgnoreJids          []string `json:"ignoreJids,omitempty" db:"ignoreJids"`

	CreatedAt time.Time `json:"createdAt" db:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" db:"updatedAt"`
}

var (
	ErrConfigNotFound       = errors.New("chatwoot config not found")
	ErrConfigDisabled       = errors.New("chatwoot integration disabled")
	ErrContactNotFound      = errors.New("chatwoot contact not found")
	ErrConversationNotFound = errors.New("chatwoot conversation not found")
	ErrMessageNotFound      = errors.New("chatwoot message not found")
	ErrInvalidToken         = errors.New("invalid chatwoot access token")
	ErrInvalidAccountID     = errors.New("invalid chatwoot account ID")
)

// NewConfig builds a config with the defaults a fresh instance gets.
func NewConfig(instance, url, token, accountID string) *Config {
	now := time.Now()
	return &Config{
		ID:                  uuid.New(),
		Instance:            instance,
		URL:                 strings.TrimRight(url, "/"),
		Token:               token,
		AccountID:           accountID,
		Enabled:             true,
		AutoCreateInbox:     true,
		SignDelimiter:       "\n",
		ReopenConversation:  true,
		MergeBrazilContacts: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func (c *Config) IsConfigured() bool {
	return c.URL != "" && c.Token != "" && c.AccountID != ""
}

// ShouldIgnoreJid reports whether messages from the given JID are excluded
// from bridging. Entries support a trailing wildcard ("@g.us" style suffix
// matches are expressed as "*@g.us").
func (c *Config) ShouldIgnoreJid(jid string) bool {
	for _, pattern := range c.IgnoreJids {
		if pattern == jid {
			return true
		}
		if strings.HasPrefix(pattern, "*") && strings.HasSuffix(jid, pattern[1:]) {
			return true
		}
	}
	return false
}

type CreateConfigRequest struct {
	URL       string  `json:"url" validate:"required,url"`
	Token     string  `json:"token" validate:"required"`
	AccountID string  `json:"accountId" validate:"required"`
	InboxID   *string `json:"inboxId,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`

	InboxName           *string  `json:"inboxName,omitempty"`
	AutoCreateInbox     *bool    `json:"autoCreateInbox,omitempty"`
	SignMessages        *bool    `json:"signMessages,omitempty"`
	SignDelimiter       *string  `json:"signDelimiter,omitempty"`
	ReopenConversation  *bool    `json:"reopenConversation,omitempty"`
	ConversationPending *bool    `json:"conversationPending,omitempty"`
	MergeBrazilContacts *bool    `json:"mergeBrazilContacts,omitempty"`
	Organization        *string  `json:"organization,omitempty"`
	Logo                *string  `json:"logo,omitempty"`
	Number              *string  `json:"number,omitempty"`
	IgnoreJids          []string `json:"ignoreJids,omitempty"`
}

// Apply overlays the request onto the config, leaving absent fields alone.
func (c *Config) Apply(req *CreateConfigRequest) {
	c.URL = strings.TrimRight(req.URL, "/")
	c.Token = req.Token
	c.AccountID = req.AccountID
	if req.InboxID != nil {
		c.InboxID = req.InboxID
	}
	if req.Enabled != nil {
		c.Enabled = *req.Enabled
	}
	if req.InboxName != nil {
		c.InboxName = req.InboxName
	}
	if req.AutoCreateInbox != nil {
		c.AutoCreateInbox = *req.AutoCreateInbox
	}
	if req.SignMessages != nil {
		c.SignMessages = *req.SignMessages
	}
	if req.SignDelimiter != nil {
		c.SignDelimiter = *req.SignDelimiter
	}
	if req.ReopenConversation != nil {
		c.ReopenConversation = *req.ReopenConversation
	}
	if req.ConversationPending != nil {
		c.ConversationPending = *req.ConversationPending
	}
	if req.MergeBrazilContacts != nil {
		c.MergeBrazilContacts = *req.MergeBrazilContacts
	}
	if req.Organization != nil {
		c.Organization = req.Organization
	}
	if req.Logo != nil {
		c.Logo = req.Logo
	}
	if req.Number != nil {
		c.Number = req.Number
	}
	if req.IgnoreJids != nil {
		c.IgnoreJids = req.IgnoreJids
	}
	c.UpdatedAt = time.Now()
}
