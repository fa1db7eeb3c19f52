package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"zapdesk/internal/ports"
	apperrors "zapdesk/pkg/errors"
	"zapdesk/platform/logger"
)

// Client implements ports.ChatwootClient against one Chatwoot account.
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	baseURL    string
	token      string
	accountID  string
}

func NewClient(baseURL, token, accountID string, logger *logger.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		token:     token,
		accountID: accountID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) CreateInbox(ctx context.Context, name, webhookURL string) (*ports.ChatwootInbox, error) {
	payload := map[string]interface{}{
		"name": name,
		"channel": map[string]interface{}{
			"type":        "api",
			"webhook_url": webhookURL,
		},
	}

	var inbox ports.ChatwootInbox
	if err := c.makeRequest(ctx, "POST", "/inboxes", payload, &inbox); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}

	return &inbox, nil
}

func (c *Client) ListInboxes(ctx context.Context) ([]ports.ChatwootInbox, error) {
	var response struct {
		Payload []ports.ChatwootInbox `json:"payload"`
	}

	if err := c.makeRequest(ctx, "GET", "/inboxes", nil, &response); err != nil {
		return nil, fmt.Errorf("failed to list inboxes: %w", err)
	}

	return response.Payload, nil
}

func (c *Client) SearchContacts(ctx context.Context, query string) ([]ports.ChatwootContact, error) {
	var response struct {
		Payload []ports.ChatwootContact `json:"payload"`
	}

	endpoint := fmt.Sprintf("/contacts/search?q=%s", url.QueryEscape(query))
	if err := c.makeRequest(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to search contacts: %w", err)
	}

	return response.Payload, nil
}

func (c *Client) CreateContact(ctx context.Context, req *ports.CreateContactRequest) (*ports.ChatwootContact, error) {
	// Chatwoot wraps the created contact in payload.contact
	var response struct {
		Payload struct {
			Contact ports.ChatwootContact `json:"contact"`
		} `json:"payload"`
	}

	if err := c.makeRequest(ctx, "POST", "/contacts", req, &response); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	return &response.Payload.Contact, nil
}

func (c *Client) UpdateContact(ctx context.Context, contactID int, req *ports.UpdateContactRequest) (*ports.ChatwootContact, error) {
	var contact ports.ChatwootContact
	endpoint := fmt.Sprintf("/contacts/%d", contactID)
	if err := c.makeRequest(ctx, "PUT", endpoint, req, &contact); err != nil {
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}

	return &contact, nil
}

func (c *Client) MergeContacts(ctx context.Context, baseContactID, mergeeContactID int) error {
	c.logger.InfoWithFields("Merging chatwoot contacts", map[string]interface{}{
		"base_contact_id":   baseContactID,
		"mergee_contact_id": mergeeContactID,
	})

	payload := map[string]interface{}{
		"base_contact_id":   baseContactID,
		"mergee_contact_id": mergeeContactID,
	}

	if err := c.makeRequest(ctx, "POST", "/actions/contact_merge", payload, nil); err != nil {
		return fmt.Errorf("failed to merge contacts: %w", err)
	}

	return nil
}

func (c *Client) ListContactConversations(ctx context.Context, contactID int) ([]ports.ChatwootConversation, error) {
	var response struct {
		Payload []ports.ChatwootConversation `json:"payload"`
	}

	endpoint := fmt.Sprintf("/contacts/%d/conversations", contactID)
	if err := c.makeRequest(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to list contact conversations: %w", err)
	}

	return response.Payload, nil
}

func (c *Client) CreateConversation(ctx context.Context, req *ports.CreateConversationRequest) (*ports.ChatwootConversation, error) {
	var conversation ports.ChatwootConversation
	if err := c.makeRequest(ctx, "POST", "/conversations", req, &conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return &conversation, nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID int) (*ports.ChatwootConversation, error) {
	var conversation ports.ChatwootConversation
	endpoint := fmt.Sprintf("/conversations/%d", conversationID)
	if err := c.makeRequest(ctx, "GET", endpoint, nil, &conversation); err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conversation, nil
}

func (c *Client) ToggleConversationStatus(ctx context.Context, conversationID int, status string) error {
	payload := map[string]interface{}{
		"status": status,
	}

	endpoint := fmt.Sprintf("/conversations/%d/toggle_status", conversationID)
	if err := c.makeRequest(ctx, "POST", endpoint, payload, nil); err != nil {
		return fmt.Errorf("failed to toggle conversation status: %w", err)
	}

	return nil
}

func (c *Client) CreateMessage(ctx context.Context, conversationID int, req *ports.CreateMessageRequest) (*ports.ChatwootMessage, error) {
	var message ports.ChatwootMessage
	endpoint := fmt.Sprintf("/conversations/%d/messages", conversationID)
	if err := c.makeRequest(ctx, "POST", endpoint, req, &message); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return &message, nil
}

// CreateAttachmentMessage posts a message with binary attachments. Chatwoot
// only accepts attachments as multipart form data, not JSON.
func (c *Client) CreateAttachmentMessage(ctx context.Context, conversationID int, req *ports.AttachmentMessageRequest) (*ports.ChatwootMessage, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if req.Content != "" {
		if err := writer.WriteField("content", req.Content); err != nil {
			return nil, fmt.Errorf("failed to write content field: %w", err)
		}
	}
	if err := writer.WriteField("message_type", req.MessageType); err != nil {
		return nil, fmt.Errorf("failed to write message_type field: %w", err)
	}
	if req.SourceID != "" {
		if err := writer.WriteField("source_id", req.SourceID); err != nil {
			return nil, fmt.Errorf("failed to write source_id field: %w", err)
		}
	}

	for _, attachment := range req.Attachments {
		part, err := writer.CreateFormFile("attachments[]", attachment.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(attachment.Data); err != nil {
			return nil, fmt.Errorf("failed to write attachment data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("/conversations/%d/messages", conversationID)
	reqURL := fmt.Sprintf("%s/api/v1/accounts/%s%s", c.baseURL, c.accountID, endpoint)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", reqURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("api_access_token", c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Transient("chatwoot attachment upload", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var message ports.ChatwootMessage
	if err := json.NewDecoder(resp.Body).Decode(&message); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &message, nil
}

func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID int) error {
	endpoint := fmt.Sprintf("/conversations/%d/messages/%d", conversationID, messageID)
	if err := c.makeRequest(ctx, "DELETE", endpoint, nil, nil); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, result interface{}) error {
	reqURL := fmt.Sprintf("%s/api/v1/accounts/%s%s", c.baseURL, c.accountID, endpoint)

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transient("chatwoot request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// checkStatus classifies non-2xx responses: 5xx and 429 are worth
// retrying, everything else in the 4xx range is not.
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	bodyBytes, readErr := io.ReadAll(resp.Body)
	detail := string(bodyBytes)
	if readErr != nil {
		detail = "(unreadable body)"
	}

	err := fmt.Errorf("chatwoot API returned status %d: %s", resp.StatusCode, detail)

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.Transient("chatwoot request", err)
	}
	return apperrors.Permanent("chatwoot request", err)
}
