package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	domainChatwoot "zapdesk/internal/domain/chatwoot"
	"zapdesk/internal/infra/cache"
	"zapdesk/internal/infra/http/handlers"
	"zapdesk/internal/infra/http/routers"
	integrationChatwoot "zapdesk/internal/infra/integrations/chatwoot"
	"zapdesk/internal/infra/repository"
	"zapdesk/internal/infra/wameow"
	"zapdesk/platform/config"
	"zapdesk/platform/database"
	"zapdesk/platform/logger"
)

// Container wires every component of the bridge together.
type Container struct {
	config   *config.Config
	logger   *logger.Logger
	database *database.Database

	repositories *repository.Repositories
	cache        *cache.Cache

	chatwootManager *integrationChatwoot.Manager
	wameowManager   *wameow.Manager
	webhookHandler  *integrationChatwoot.WebhookHandler
	chatwootService *domainChatwoot.Service

	cron *cron.Cron
}

func New(cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{
		config: cfg,
		logger: log,
	}

	if err := c.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}

	log.Info("Dependency injection container initialized successfully")
	return c, nil
}

func (c *Container) initialize() error {
	db, err := database.NewFromAppConfig(c.config, c.logger)
	if err != nil {
		return err
	}
	c.database = db

	if c.config.Database.AutoMigrate {
		migrator := database.NewMigrator(db, c.logger)
		if err := migrator.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	c.repositories = repository.NewRepositories(db.DB, c.logger)
	c.cache = cache.New()

	c.chatwootManager = integrationChatwoot.NewManager(c.repositories.ChatwootConfig, c.logger)

	waContainer, err := wameow.NewContainer(db.DB.DB, c.logger)
	if err != nil {
		return fmt.Errorf("failed to create whatsmeow container: %w", err)
	}
	c.wameowManager = wameow.NewManager(waContainer, c.repositories.Instance, c.logger)

	contactSync := integrationChatwoot.NewContactSync(c.repositories.ContactMapping, c.logger)
	resolver := integrationChatwoot.NewConversationResolver(c.cache, c.logger)
	media := integrationChatwoot.NewMediaFetcher(c.config.Bridge.MediaMaxBytes, c.logger)
	deletions := integrationChatwoot.NewDeletionCoordinator(c.cache, c.logger)
	commands := integrationChatwoot.NewCommandExecutor(c.wameowManager, resolver, c.repositories.ContactMapping, c.logger)

	inbound := integrationChatwoot.NewInboundBridge(
		c.chatwootManager,
		contactSync,
		resolver,
		media,
		c.repositories.MessageMapping,
		deletions,
		c.wameowManager,
		c.cache,
		c.logger,
	)
	c.wameowManager.SetEventBridge(inbound)

	c.webhookHandler = integrationChatwoot.NewWebhookHandler(
		c.chatwootManager,
		c.wameowManager,
		c.repositories.MessageMapping,
		deletions,
		resolver,
		commands,
		media,
		c.logger,
	)

	c.chatwootService = domainChatwoot.NewService(c.logger, c.repositories.ChatwootConfig, c.chatwootManager)

	return nil
}

// Start reconnects previously paired instances and schedules the
// maintenance jobs.
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("Starting container components...")

	if err := c.wameowManager.RestoreInstances(ctx); err != nil {
		c.logger.WarnWithFields("Failed to restore instances", map[string]interface{}{
			"error": err.Error(),
		})
	}

	c.cron = cron.New()

	if _, err := c.cron.AddFunc("* * * * *", func() {
		if removed := c.cache.Sweep(); removed > 0 {
			c.logger.DebugWithFields("Cache sweep completed", map[string]interface{}{
				"removed": removed,
			})
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule cache sweep: %w", err)
	}

	if _, err := c.cron.AddFunc("0 3 * * *", func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		cutoff := time.Now().Add(-c.config.Bridge.MappingRetention)
		deleted, err := c.repositories.MessageMapping.DeleteOlderThan(cleanupCtx, cutoff)
		if err != nil {
			c.logger.ErrorWithFields("Failed to clean up old message mappings", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		if deleted > 0 {
			c.logger.InfoWithFields("Cleaned up old message mappings", map[string]interface{}{
				"deleted": deleted,
				"cutoff":  cutoff,
			})
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule mapping cleanup: %w", err)
	}

	c.cron.Start()

	c.logger.Info("Container components started successfully")
	return nil
}

// Stop shuts components down in reverse dependency order.
func (c *Container) Stop(ctx context.Context) error {
	c.logger.Info("Stopping container components...")

	if c.cron != nil {
		cronCtx := c.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}

	c.wameowManager.Shutdown()

	if err := c.database.Close(); err != nil {
		c.logger.ErrorWithFields("Failed to close database connection", map[string]interface{}{
			"error": err.Error(),
		})
	}

	c.logger.Info("Container components stopped successfully")
	return nil
}

// Handler builds the HTTP handler with all routes attached.
func (c *Container) Handler() http.Handler {
	return routers.SetupRoutes(&routers.Dependencies{
		Config:    c.config,
		Logger:    c.logger,
		Health:    handlers.NewHealthHandler(c.logger),
		Instances: handlers.NewInstanceHandler(c.logger, c.wameowManager, c.repositories.Instance),
		Chatwoot:  handlers.NewChatwootHandler(c.logger, c.chatwootService, c.webhookHandler),
	})
}

func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

func (c *Container) GetDatabase() *database.Database {
	return c.database
}
