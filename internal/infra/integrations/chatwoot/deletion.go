package chatwoot

import (
	"context"
	"fmt"
	"time"

	"zapdesk/internal/infra/cache"
	"zapdesk/platform/logger"
)

const (
	deletionLockTTL    = 60 * time.Second
	deletionRunTimeout = 30 * time.Second
)

// DeletionOutcome tells the caller whether it won the right to perform a
// deletion or someone else already has it in flight.
type DeletionOutcome int

const (
	DeletionAccepted DeletionOutcome = iota
	DeletionAlreadyInProgress
)

// DeletionCoordinator serializes message deletions so that the same
// deletion arriving twice, once per direction, runs exactly once. Both the
// webhook path and the chat event path claim the message here before
// acting.
type DeletionCoordinator struct {
	cache   *cache.Cache
	logger  *logger.Logger
	lockTTL time.Duration
}

func NewDeletionCoordinator(c *cache.Cache, logger *logger.Logger) *DeletionCoordinator {
	return &DeletionCoordinator{
		cache:   c,
		logger:  logger.WithModule("deletion-coordinator"),
		lockTTL: deletionLockTTL,
	}
}

// Run claims the deletion for a message and, if claimed, executes fn in the
// background. The claim is held for the lock TTL rather than released on
// completion so a late echo of the same deletion still sees it as done.
func (d *DeletionCoordinator) Run(ctx context.Context, instance, msgID string, fn func(context.Context) error) (DeletionOutcome, error) {
	key := deletionLockKey(instance, msgID)

	if !d.cache.SetNX(key, 1, d.lockTTL) {
		d.logger.DebugWithFields("Deletion already in progress, skipping", map[string]interface{}{
			"instance":   instance,
			"message_id": msgID,
		})
		return DeletionAlreadyInProgress, nil
	}

	// The webhook answers before the remote delete finishes, so fn runs on
	// its own deadline, detached from the request context.
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), deletionRunTimeout)
		defer cancel()

		if err := fn(runCtx); err != nil {
			// Release the claim on failure so a retry can go through
			d.cache.Delete(key)
			d.logger.WarnWithFields("Deletion failed", map[string]interface{}{
				"instance":   instance,
				"message_id": msgID,
				"error":      err.Error(),
			})
		}
	}()

	return DeletionAccepted, nil
}

func deletionLockKey(instance, msgID string) string {
	return fmt.Sprintf("lock:del:%s:%s", instance, msgID)
}
