package chatwoot

import (
	"context"
	"fmt"
	"time"

	"zapdesk/internal/infra/cache"
	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

const (
	conversationCacheTTL = 6 * time.Hour
	resolverLockTTL      = 30 * time.Second
	resolverPollInterval = 300 * time.Millisecond
	resolverWaitMax      = 5 * time.Second
)

// ConversationResolver maps a contact to exactly one open conversation.
// Concurrent resolutions for the same contact are serialized with a TTL
// lock and a double-checked cache; losers poll for the winner's result.
// If the winner dies before publishing, the loser falls through to its own
// list-before-create attempt after the wait window.
type ConversationResolver struct {
	cache  *cache.Cache
	logger *logger.Logger

	lockTTL      time.Duration
	pollInterval time.Duration
	waitMax      time.Duration
	cacheTTL     time.Duration
}

func NewConversationResolver(c *cache.Cache, logger *logger.Logger) *ConversationResolver {
	return &ConversationResolver{
		cache:        c,
		logger:       logger.WithModule("conversation-resolver"),
		lockTTL:      resolverLockTTL,
		pollInterval: resolverPollInterval,
		waitMax:      resolverWaitMax,
		cacheTTL:     conversationCacheTTL,
	}
}

// Resolve returns the conversation id for the contact, creating one only
// when no usable conversation exists. contactKey is the canonical phone and
// keys the cache and lock.
func (r *ConversationResolver) Resolve(ctx context.Context, client ports.ChatwootClient, config *ports.ChatwootInstanceConfig, contactID int, contactKey string) (int, error) {
	cacheKey := conversationCacheKey(config.Instance, contactKey)
	lockKey := "lock:" + cacheKey

	if id, ok := r.lookupCached(ctx, client, config, cacheKey); ok {
		return id, nil
	}

	acquired := r.cache.SetNX(lockKey, 1, r.lockTTL)
	if acquired {
		defer r.cache.Delete(lockKey)
	} else {
		if id, ok := r.waitForWinner(ctx, cacheKey); ok {
			return id, nil
		}
		// The lock holder never published. Proceed anyway; the list step
		// below still dedupes against whatever it did manage to create.
		r.logger.WarnWithFields("Conversation lock wait timed out, proceeding", map[string]interface{}{
			"instance":    config.Instance,
			"contact_key": contactKey,
		})
	}

	// Double-check after the wait: the previous holder may have published
	// between our first miss and now
	if id, ok := r.lookupCached(ctx, client, config, cacheKey); ok {
		return id, nil
	}

	id, err := r.listOrCreate(ctx, client, config, contactID, contactKey)
	if err != nil {
		return 0, err
	}

	r.cache.Set(cacheKey, id, r.cacheTTL)
	return id, nil
}

// Evict drops the cached conversation for a contact. Called when the
// conversation gets resolved on the helpdesk side.
func (r *ConversationResolver) Evict(instance, contactKey string) {
	r.cache.Delete(conversationCacheKey(instance, contactKey))
}

// EvictInstance drops every cached conversation for an instance.
func (r *ConversationResolver) EvictInstance(instance string) int {
	return r.cache.DeletePrefix("conv:" + instance + ":")
}

// lookupCached validates a cache hit against the live conversation status.
// A conversation that got resolved since it was cached is evicted so the
// caller re-resolves instead of posting into a closed thread.
func (r *ConversationResolver) lookupCached(ctx context.Context, client ports.ChatwootClient, config *ports.ChatwootInstanceConfig, cacheKey string) (int, bool) {
	id, ok := r.cache.GetInt(cacheKey)
	if !ok {
		return 0, false
	}

	conversation, err := client.GetConversation(ctx, id)
	if err != nil {
		r.cache.Delete(cacheKey)
		return 0, false
	}

	if conversation.Status != ports.ConversationStatusResolved {
		return id, true
	}

	if !config.ReopenConversation {
		r.cache.Delete(cacheKey)
		return 0, false
	}

	if err := client.ToggleConversationStatus(ctx, id, ports.ConversationStatusOpen); err != nil {
		r.cache.Delete(cacheKey)
		return 0, false
	}

	return id, true
}

func (r *ConversationResolver) waitForWinner(ctx context.Context, cacheKey string) (int, bool) {
	deadline := time.Now().Add(r.waitMax)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return 0, false
		case <-ticker.C:
			if id, ok := r.cache.GetInt(cacheKey); ok {
				return id, true
			}
		}
	}

	return 0, false
}

// listOrCreate reuses the newest usable conversation in the inbox before
// creating a new one. This is the last line of defense against duplicate
// conversations when the lock expired under a slow winner.
func (r *ConversationResolver) listOrCreate(ctx context.Context, client ports.ChatwootClient, config *ports.ChatwootInstanceConfig, contactID int, contactKey string) (int, error) {
	conversations, err := client.ListContactConversations(ctx, contactID)
	if err != nil {
		return 0, fmt.Errorf("failed to list contact conversations: %w", err)
	}

	var newestResolved *ports.ChatwootConversation
	for i := range conversations {
		conversation := &conversations[i]
		if config.InboxID != 0 && conversation.InboxID != config.InboxID {
			continue
		}
		if conversation.Status != ports.ConversationStatusResolved {
			return conversation.ID, nil
		}
		if newestResolved == nil {
			newestResolved = conversation
		}
	}

	if newestResolved != nil && config.ReopenConversation {
		if err := client.ToggleConversationStatus(ctx, newestResolved.ID, ports.ConversationStatusOpen); err != nil {
			return 0, fmt.Errorf("failed to reopen conversation: %w", err)
		}
		return newestResolved.ID, nil
	}

	status := ports.ConversationStatusOpen
	if config.ConversationPending {
		status = ports.ConversationStatusPending
	}

	conversation, err := client.CreateConversation(ctx, &ports.CreateConversationRequest{
		ContactID: contactID,
		InboxID:   config.InboxID,
		SourceID:  contactKey,
		Status:    status,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}

	r.logger.InfoWithFields("Created conversation", map[string]interface{}{
		"instance":        config.Instance,
		"contact_id":      contactID,
		"conversation_id": conversation.ID,
		"status":          status,
	})

	return conversation.ID, nil
}

func conversationCacheKey(instance, contactKey string) string {
	return fmt.Sprintf("conv:%s:%s", instance, contactKey)
}
