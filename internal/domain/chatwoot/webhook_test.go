package chatwoot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHandledEvent(t *testing.T) {
	assert.True(t, IsHandledEvent("message_created"))
	assert.True(t, IsHandledEvent("message_updated"))
	assert.True(t, IsHandledEvent("conversation_status_changed"))
	assert.True(t, IsHandledEvent("conversation_resolved"))

	assert.False(t, IsHandledEvent("conversation_created"))
	assert.False(t, IsHandledEvent("contact_updated"))
	assert.False(t, IsHandledEvent(""))
}

func TestWebhookPayloadDecoding(t *testing.T) {
	raw := `{
		"event": "message_created",
		"id": 42,
		"content": "hello from the agent",
		"message_type": "outgoing",
		"private": false,
		"source_id": null,
		"conversation": {
			"id": 7,
			"inbox_id": 3,
			"status": "open",
			"meta": {
				"sender": {
					"id": 11,
					"name": "Alice",
					"phone_number": "+5511999999999",
					"identifier": "5511999999999@s.whatsapp.net"
				}
			}
		},
		"sender": {"id": 1, "name": "Agent Smith", "type": "user"}
	}`

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	assert.Equal(t, "message_created", payload.Event)
	assert.Equal(t, 42, payload.ID)
	assert.Equal(t, "outgoing", payload.MessageType)
	assert.Equal(t, 7, payload.Conversation.ID)
	assert.Equal(t, "5511999999999@s.whatsapp.net", payload.Conversation.Meta.Sender.Identifier)
	assert.Nil(t, payload.SourceID)
}

func TestIsDeleted(t *testing.T) {
	payload := &WebhookPayload{}
	assert.False(t, payload.IsDeleted())

	payload.ContentAttributes = map[string]interface{}{"deleted": true}
	assert.True(t, payload.IsDeleted())

	payload.ContentAttributes = map[string]interface{}{"deleted": "yes"}
	assert.False(t, payload.IsDeleted())
}

func TestInReplyTo(t *testing.T) {
	payload := &WebhookPayload{}
	assert.Equal(t, 0, payload.InReplyTo())

	// json decoding hands numbers over as float64
	payload.ContentAttributes = map[string]interface{}{"in_reply_to": float64(99)}
	assert.Equal(t, 99, payload.InReplyTo())

	payload.ContentAttributes = map[string]interface{}{"in_reply_to": 17}
	assert.Equal(t, 17, payload.InReplyTo())
}
