package chatwoot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "zapdesk/internal/domain/chatwoot"
	"zapdesk/internal/infra/cache"
	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

type webhookFixture struct {
	handler  *WebhookHandler
	client   *fakeClient
	manager  *fakeManager
	messages *fakeMessageRepo
	gateway  *fakeGateway
	resolver *ConversationResolver
}

func newWebhookFixture(config *ports.ChatwootInstanceConfig) *webhookFixture {
	log := logger.NewWithConfig(logger.TestConfig())
	client := newFakeClient()
	manager := &fakeManager{client: client, config: config}
	messages := newFakeMessageRepo()
	contacts := newFakeContactRepo()
	gateway := &fakeGateway{}
	c := cache.New()

	resolver := NewConversationResolver(c, log)

	handler := NewWebhookHandler(
		manager,
		gateway,
		messages,
		NewDeletionCoordinator(c, log),
		resolver,
		NewCommandExecutor(gateway, resolver, contacts, log),
		NewMediaFetcher(40*1024*1024, log),
		log,
	)

	return &webhookFixture{
		handler:  handler,
		client:   client,
		manager:  manager,
		messages: messages,
		gateway:  gateway,
		resolver: resolver,
	}
}

func agentMessagePayload() *domain.WebhookPayload {
	payload := &domain.WebhookPayload{
		Event:       string(domain.EventMessageCreated),
		ID:          4242,
		Content:     "**hi** there",
		MessageType: ports.MessageTypeOutgoing,
	}
	payload.Conversation.ID = 500
	payload.Conversation.Status = ports.ConversationStatusOpen
	payload.Conversation.Meta.Sender.PhoneNumber = "+5511999999999"
	payload.Conversation.Meta.Sender.Identifier = "5511999999999@s.whatsapp.net"
	payload.Sender.Name = "Agent Smith"
	payload.Sender.Type = "user"
	return payload
}

func TestWebhookSendsAgentMessage(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())
	payload := agentMessagePayload()

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))

	require.Len(t, f.gateway.sentTexts, 1)
	sent := f.gateway.sentTexts[0]
	assert.Equal(t, "5511999999999@s.whatsapp.net", sent.ToJID)
	assert.Equal(t, "*hi* there", sent.Body)

	mapping, err := f.messages.GetByChatwootMessageID(context.Background(), "acme", 4242)
	require.NoError(t, err)
	assert.True(t, mapping.FromMe)
	assert.Equal(t, ports.SyncStatusSynced, mapping.SyncStatus)
	require.NotNil(t, mapping.CwConversationID)
	assert.Equal(t, 500, *mapping.CwConversationID)
}

func TestWebhookRoutesGroupReplyToGroupJid(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())

	payload := agentMessagePayload()
	payload.Conversation.Meta.Sender.PhoneNumber = ""
	payload.Conversation.Meta.Sender.Identifier = "123456789012345678-1609459200@g.us"

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))

	require.Len(t, f.gateway.sentTexts, 1)
	assert.Equal(t, "123456789012345678-1609459200@g.us", f.gateway.sentTexts[0].ToJID)
}

func TestWebhookSignsMessageWhenConfigured(t *testing.T) {
	config := testInstanceConfig()
	config.SignMessages = true
	config.SignDelimiter = "\n"
	f := newWebhookFixture(config)

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", agentMessagePayload()))

	require.Len(t, f.gateway.sentTexts, 1)
	assert.Equal(t, "*Agent Smith:*\n*hi* there", f.gateway.sentTexts[0].Body)
}

func TestWebhookDropsPrivateMessage(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())
	payload := agentMessagePayload()
	payload.Private = true

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))
	assert.Empty(t, f.gateway.sentTexts)
}

func TestWebhookDropsIncomingMessage(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())
	payload := agentMessagePayload()
	payload.MessageType = ports.MessageTypeIncoming

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))
	assert.Empty(t, f.gateway.sentTexts)
}

func TestWebhookDropsBridgeEcho(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())
	payload := agentMessagePayload()
	sourceID := "WAID:3EB0AAAA1111"
	payload.SourceID = &sourceID

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))
	assert.Empty(t, f.gateway.sentTexts)
}

func TestWebhookDropsBotSender(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())
	payload := agentMessagePayload()
	payload.Sender.Type = "agent_bot"

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))
	assert.Empty(t, f.gateway.sentTexts)
}

func TestWebhookDropsUnknownInstance(t *testing.T) {
	f := newWebhookFixture(nil)
	f.manager.configErr = ports.ErrConfigNotFound

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "ghost", agentMessagePayload()))
	assert.Empty(t, f.gateway.sentTexts)
}

func TestWebhookDropsUnhandledEvent(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())
	payload := agentMessagePayload()
	payload.Event = "contact_updated"

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))
	assert.Empty(t, f.gateway.sentTexts)
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())
	payload := agentMessagePayload()

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))
	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))

	assert.Len(t, f.gateway.sentTexts, 1)
}

func TestWebhookReplyContext(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())

	// An earlier inbound message already mapped
	content := "original question"
	cwMessageID := 1001
	require.NoError(t, f.messages.Create(context.Background(), &ports.MessageMapping{
		Instance:    "acme",
		MsgID:       "3EB0CCCC3333",
		FromMe:      false,
		ChatJID:     "5511999999999@s.whatsapp.net",
		SenderJID:   "5511999999999@s.whatsapp.net",
		Content:     &content,
		CwMessageID: &cwMessageID,
		Timestamp:   time.Now(),
	}))

	payload := agentMessagePayload()
	payload.ContentAttributes = map[string]interface{}{"in_reply_to": float64(1001)}

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))

	require.Len(t, f.gateway.sentTexts, 1)
	reply := f.gateway.sentTexts[0].Reply
	require.NotNil(t, reply)
	assert.Equal(t, "3EB0CCCC3333", reply.MessageID)
	assert.Equal(t, "original question", reply.Quoted)
}

func TestWebhookSendFailurePostsPrivateNote(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())
	f.gateway.sendErr = errors.New("not connected")

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", agentMessagePayload()))

	msg := f.client.lastMessage()
	require.NotNil(t, msg)
	require.NotNil(t, msg.Request)
	assert.True(t, msg.Request.Private)
	assert.Contains(t, msg.Request.Content, "not delivered")
	assert.Equal(t, 500, msg.ConversationID)

	// No mapping row for an undelivered message
	_, err := f.messages.GetByChatwootMessageID(context.Background(), "acme", 4242)
	assert.Error(t, err)
}

func TestWebhookDeletionRevokesOnWhatsApp(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", agentMessagePayload()))
	require.Len(t, f.gateway.sentTexts, 1)

	payload := agentMessagePayload()
	payload.Event = string(domain.EventMessageUpdated)
	payload.ContentAttributes = map[string]interface{}{"deleted": true}

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))

	// The revoke runs in the background after the webhook answers
	require.Eventually(t, func() bool {
		return f.gateway.revokedCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := f.messages.GetByChatwootMessageID(context.Background(), "acme", 4242)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestWebhookDeletionWithoutMappingIsSilent(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())

	payload := agentMessagePayload()
	payload.Event = string(domain.EventMessageUpdated)
	payload.ContentAttributes = map[string]interface{}{"deleted": true}

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))
	assert.Empty(t, f.gateway.revoked)
}

func TestWebhookResolvedConversationEvictsCache(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())

	// Prime the resolver cache the way the inbound path would
	f.resolver.cache.Set(conversationCacheKey("acme", "+5511999999999"), 500, time.Hour)

	payload := agentMessagePayload()
	payload.Event = string(domain.EventConversationStatusChanged)
	payload.Conversation.Status = ports.ConversationStatusResolved

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))

	_, ok := f.resolver.cache.GetInt(conversationCacheKey("acme", "+5511999999999"))
	assert.False(t, ok)
}

func TestProvisionCommandChannelIsIdempotent(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())

	require.NoError(t, f.handler.ProvisionCommandChannel(context.Background(), "acme"))
	require.NoError(t, f.handler.ProvisionCommandChannel(context.Background(), "acme"))

	// One bot contact and one conversation, no matter how often it runs
	require.Len(t, f.client.contacts, 1)
	assert.Equal(t, commandContactIdentifier, f.client.contacts[0].Identifier)
	assert.Equal(t, commandContactName, f.client.contacts[0].Name)
	assert.Equal(t, 1, f.client.createConvCalls)
}

func TestWebhookCommandDispatch(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())
	f.gateway.status = &ports.InstanceStatus{Instance: "acme", Connected: true, LoggedIn: true, JID: "5511777777777@s.whatsapp.net"}

	payload := agentMessagePayload()
	payload.Content = "/status"
	payload.Conversation.Meta.Sender.Identifier = commandContactIdentifier

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))

	// The reply lands in the same conversation as an incoming message
	msg := f.client.lastMessage()
	require.NotNil(t, msg)
	require.NotNil(t, msg.Request)
	assert.Equal(t, ports.MessageTypeIncoming, msg.Request.MessageType)
	assert.Contains(t, msg.Request.Content, "Connected: true")
	assert.Empty(t, f.gateway.sentTexts)
}

func TestWebhookCommandUnknownVerb(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())

	payload := agentMessagePayload()
	payload.Content = "/frobnicate"
	payload.Conversation.Meta.Sender.Identifier = commandContactIdentifier

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))

	msg := f.client.lastMessage()
	require.NotNil(t, msg)
	assert.Contains(t, msg.Request.Content, "Unknown command")
}

func TestWebhookCommandChannelPlainTextIgnored(t *testing.T) {
	f := newWebhookFixture(testInstanceConfig())

	payload := agentMessagePayload()
	payload.Content = "just a note"
	payload.Conversation.Meta.Sender.Identifier = commandContactIdentifier

	require.NoError(t, f.handler.ProcessWebhook(context.Background(), "acme", payload))
	assert.Empty(t, f.client.createdMessages)
	assert.Empty(t, f.gateway.sentTexts)
}
