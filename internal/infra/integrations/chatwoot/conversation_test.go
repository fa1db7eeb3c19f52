package chatwoot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapdesk/internal/infra/cache"
	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

func testInstanceConfig() *ports.ChatwootInstanceConfig {
	return &ports.ChatwootInstanceConfig{
		Instance:           "acme",
		URL:                "http://chatwoot.local",
		Token:              "token",
		AccountID:          "1",
		InboxID:            7,
		Enabled:            true,
		ReopenConversation: true,
	}
}

func newTestResolver() *ConversationResolver {
	r := NewConversationResolver(cache.New(), logger.NewWithConfig(logger.TestConfig()))
	r.pollInterval = 5 * time.Millisecond
	r.waitMax = 200 * time.Millisecond
	return r
}

func TestResolveCreatesConversationOnce(t *testing.T) {
	client := newFakeClient()
	resolver := newTestResolver()
	config := testInstanceConfig()

	first, err := resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
	require.NoError(t, err)

	second, err := resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.createConvCalls)
}

func TestResolveConcurrentSingleConversation(t *testing.T) {
	client := newFakeClient()
	resolver := newTestResolver()
	config := testInstanceConfig()

	var wg sync.WaitGroup
	ids := make([]int, 10)
	errs := make([]error, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, client.createConvCalls)
}

func TestResolveReusesExistingOpenConversation(t *testing.T) {
	client := newFakeClient()
	client.conversations[900] = &ports.ChatwootConversation{
		ID:        900,
		ContactID: 42,
		InboxID:   7,
		Status:    ports.ConversationStatusOpen,
	}
	resolver := newTestResolver()

	id, err := resolver.Resolve(context.Background(), client, testInstanceConfig(), 42, "+5511999999999")
	require.NoError(t, err)
	assert.Equal(t, 900, id)
	assert.Equal(t, 0, client.createConvCalls)
}

func TestResolveSkipsOtherInboxConversations(t *testing.T) {
	client := newFakeClient()
	client.conversations[900] = &ports.ChatwootConversation{
		ID:        900,
		ContactID: 42,
		InboxID:   99,
		Status:    ports.ConversationStatusOpen,
	}
	resolver := newTestResolver()

	id, err := resolver.Resolve(context.Background(), client, testInstanceConfig(), 42, "+5511999999999")
	require.NoError(t, err)
	assert.NotEqual(t, 900, id)
	assert.Equal(t, 1, client.createConvCalls)
}

func TestResolveReopensResolvedConversation(t *testing.T) {
	client := newFakeClient()
	client.conversations[901] = &ports.ChatwootConversation{
		ID:        901,
		ContactID: 42,
		InboxID:   7,
		Status:    ports.ConversationStatusResolved,
	}
	resolver := newTestResolver()

	id, err := resolver.Resolve(context.Background(), client, testInstanceConfig(), 42, "+5511999999999")
	require.NoError(t, err)
	assert.Equal(t, 901, id)
	assert.Equal(t, ports.ConversationStatusOpen, client.toggledStatus[901])
	assert.Equal(t, 0, client.createConvCalls)
}

func TestResolveCreatesNewWhenReopenDisabled(t *testing.T) {
	client := newFakeClient()
	client.conversations[901] = &ports.ChatwootConversation{
		ID:        901,
		ContactID: 42,
		InboxID:   7,
		Status:    ports.ConversationStatusResolved,
	}
	resolver := newTestResolver()
	config := testInstanceConfig()
	config.ReopenConversation = false

	id, err := resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
	require.NoError(t, err)
	assert.NotEqual(t, 901, id)
	assert.Equal(t, 1, client.createConvCalls)
}

func TestResolveCreatesPendingWhenConfigured(t *testing.T) {
	client := newFakeClient()
	resolver := newTestResolver()
	config := testInstanceConfig()
	config.ConversationPending = true

	id, err := resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
	require.NoError(t, err)
	assert.Equal(t, ports.ConversationStatusPending, client.conversations[id].Status)
}

func TestResolveCachedEntryValidatedAgainstLiveStatus(t *testing.T) {
	client := newFakeClient()
	resolver := newTestResolver()
	config := testInstanceConfig()
	config.ReopenConversation = false

	id, err := resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
	require.NoError(t, err)

	// Agent resolves the conversation out of band
	client.conversations[id].Status = ports.ConversationStatusResolved

	next, err := resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
}

func TestEvictForcesReresolution(t *testing.T) {
	client := newFakeClient()
	resolver := newTestResolver()
	config := testInstanceConfig()

	_, err := resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
	require.NoError(t, err)

	resolver.Evict(config.Instance, "+5511999999999")

	// The list step still finds the open conversation, so no duplicate
	id, err := resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
	require.NoError(t, err)
	assert.Equal(t, 1, client.createConvCalls)
	assert.NotZero(t, id)
}

func TestEvictInstanceDropsAllKeys(t *testing.T) {
	client := newFakeClient()
	resolver := newTestResolver()
	config := testInstanceConfig()

	_, err := resolver.Resolve(context.Background(), client, config, 42, "+5511999999999")
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), client, config, 43, "+5511888888888")
	require.NoError(t, err)

	assert.Equal(t, 2, resolver.EvictInstance(config.Instance))
}
