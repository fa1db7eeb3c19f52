package chatwoot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

func newTestContactSync(contacts ports.ContactMappingRepository) *ContactSync {
	return NewContactSync(contacts, logger.NewWithConfig(logger.TestConfig()))
}

func TestResolveContactCreatesOnMiss(t *testing.T) {
	client := newFakeClient()
	repo := newFakeContactRepo()
	sync := newTestContactSync(repo)

	contact, err := sync.ResolveContact(context.Background(), client, testInstanceConfig(), "5511999999999@s.whatsapp.net", "+5511999999999", "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, "Alice", contact.Name)
	assert.Equal(t, "+5511999999999", contact.PhoneNumber)

	// The mapping row must short-circuit the next lookup
	cached, err := repo.GetByPhones(context.Background(), "acme", []string{"+5511999999999"})
	require.NoError(t, err)
	assert.Equal(t, contact.ID, cached.CwContactID)
}

func TestResolveContactGroupKeepsGroupIdentifier(t *testing.T) {
	client := newFakeClient()
	repo := newFakeContactRepo()
	sync := newTestContactSync(repo)

	groupJID := "123456789012345678-1609459200@g.us"
	contact, err := sync.ResolveContact(context.Background(), client, testInstanceConfig(), groupJID, CanonicalPhone(groupJID), "Team Chat", "")
	require.NoError(t, err)

	// The identifier must address the group itself, not a fabricated user JID
	assert.Equal(t, groupJID, contact.Identifier)
}

func TestResolveContactUsesLocalCache(t *testing.T) {
	client := newFakeClient()
	repo := newFakeContactRepo()
	require.NoError(t, repo.Upsert(context.Background(), &ports.ContactMapping{
		Instance:    "acme",
		Phone:       "+5511999999999",
		CwContactID: 77,
		Name:        "Alice",
	}))
	sync := newTestContactSync(repo)

	contact, err := sync.ResolveContact(context.Background(), client, testInstanceConfig(), "5511999999999@s.whatsapp.net", "+5511999999999", "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, 77, contact.ID)
	assert.Empty(t, client.contacts)
}

func TestResolveContactFindsRemoteVariant(t *testing.T) {
	client := newFakeClient()
	// Stored under the short form without the ninth digit
	client.contacts = append(client.contacts, ports.ChatwootContact{
		ID:          12,
		Name:        "Bob",
		PhoneNumber: "+551188888888",
	})
	repo := newFakeContactRepo()
	sync := newTestContactSync(repo)

	contact, err := sync.ResolveContact(context.Background(), client, testInstanceConfig(), "5511988888888@s.whatsapp.net", "+5511988888888", "Bob", "")
	require.NoError(t, err)
	assert.Equal(t, 12, contact.ID)
}

func TestResolveContactMergesDuplicateVariants(t *testing.T) {
	client := newFakeClient()
	client.contacts = append(client.contacts,
		ports.ChatwootContact{ID: 21, Name: "Long", PhoneNumber: "+5511988888888"},
		ports.ChatwootContact{ID: 22, Name: "Short", PhoneNumber: "+551188888888"},
	)
	repo := newFakeContactRepo()
	sync := newTestContactSync(repo)

	config := testInstanceConfig()
	config.MergeBrazilContacts = true

	contact, err := sync.ResolveContact(context.Background(), client, config, "5511988888888@s.whatsapp.net", "+5511988888888", "Bob", "")
	require.NoError(t, err)

	// The longer form survives the merge
	assert.Equal(t, 21, contact.ID)
	require.Len(t, client.mergedPairs, 1)
	assert.Equal(t, [2]int{21, 22}, client.mergedPairs[0])
}

func TestResolveContactSkipsMergeWhenDisabled(t *testing.T) {
	client := newFakeClient()
	client.contacts = append(client.contacts,
		ports.ChatwootContact{ID: 21, Name: "Long", PhoneNumber: "+5511988888888"},
		ports.ChatwootContact{ID: 22, Name: "Short", PhoneNumber: "+551188888888"},
	)
	repo := newFakeContactRepo()
	sync := newTestContactSync(repo)

	config := testInstanceConfig()
	config.MergeBrazilContacts = false

	contact, err := sync.ResolveContact(context.Background(), client, config, "5511988888888@s.whatsapp.net", "+5511988888888", "Bob", "")
	require.NoError(t, err)
	assert.Equal(t, 21, contact.ID)
	assert.Empty(t, client.mergedPairs)
}

func TestResolveContactUpdatesPlaceholderName(t *testing.T) {
	client := newFakeClient()
	client.contacts = append(client.contacts, ports.ChatwootContact{
		ID:          31,
		Name:        "+5511999999999",
		PhoneNumber: "+5511999999999",
	})
	repo := newFakeContactRepo()
	sync := newTestContactSync(repo)

	contact, err := sync.ResolveContact(context.Background(), client, testInstanceConfig(), "5511999999999@s.whatsapp.net", "+5511999999999", "Carol", "")
	require.NoError(t, err)
	assert.Equal(t, "Carol", contact.Name)
}

func TestResolveContactKeepsAgentSetName(t *testing.T) {
	client := newFakeClient()
	client.contacts = append(client.contacts, ports.ChatwootContact{
		ID:          31,
		Name:        "VIP Customer",
		PhoneNumber: "+5511999999999",
	})
	repo := newFakeContactRepo()
	sync := newTestContactSync(repo)

	contact, err := sync.ResolveContact(context.Background(), client, testInstanceConfig(), "5511999999999@s.whatsapp.net", "+5511999999999", "Carol", "")
	require.NoError(t, err)
	assert.Equal(t, "VIP Customer", contact.Name)
}

func TestResolveContactFallsBackToPhoneAsName(t *testing.T) {
	client := newFakeClient()
	repo := newFakeContactRepo()
	sync := newTestContactSync(repo)

	contact, err := sync.ResolveContact(context.Background(), client, testInstanceConfig(), "5511999999999@s.whatsapp.net", "+5511999999999", "", "")
	require.NoError(t, err)
	assert.Equal(t, "+5511999999999", contact.Name)
}

func TestSanitizeDisplayName(t *testing.T) {
	assert.Equal(t, "Joao", SanitizeDisplayName("João"))
	assert.Equal(t, "Alice", SanitizeDisplayName("  Alice \x00"))
	assert.Equal(t, "", SanitizeDisplayName("  "))
}
