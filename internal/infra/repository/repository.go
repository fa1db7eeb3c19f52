package repository

import (
	"github.com/jmoiron/sqlx"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

type Repositories struct {
	ChatwootConfig ports.ChatwootConfigRepository
	MessageMapping ports.MessageMappingRepository
	ContactMapping ports.ContactMappingRepository
	Instance       ports.InstanceRepository
}

func NewRepositories(db *sqlx.DB, logger *logger.Logger) *Repositories {
	return &Repositories{
		ChatwootConfig: NewChatwootConfigRepository(db, logger),
		MessageMapping: NewMessageMappingRepository(db, logger),
		ContactMapping: NewContactMappingRepository(db, logger),
		Instance:       NewInstanceRepository(db, logger),
	}
}
