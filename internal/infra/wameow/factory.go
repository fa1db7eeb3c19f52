package wameow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zapdesk/platform/logger"
)

// WameowLogger adapts our structured logger to the whatsmeow logging
// interface.
type WameowLogger struct {
	logger *logger.Logger
	module string
}

func NewWameowLogger(logger *logger.Logger) waLog.Logger {
	return &WameowLogger{
		logger: logger,
		module: "whatsmeow",
	}
}

func (w *WameowLogger) Errorf(msg string, args ...interface{}) {
	w.logger.ErrorWithFields(fmt.Sprintf(msg, args...), map[string]interface{}{
		"module": w.module,
	})
}

func (w *WameowLogger) Warnf(msg string, args ...interface{}) {
	w.logger.WarnWithFields(fmt.Sprintf(msg, args...), map[string]interface{}{
		"module": w.module,
	})
}

func (w *WameowLogger) Infof(msg string, args ...interface{}) {
	w.logger.InfoWithFields(fmt.Sprintf(msg, args...), map[string]interface{}{
		"module": w.module,
	})
}

func (w *WameowLogger) Debugf(msg string, args ...interface{}) {
	w.logger.DebugWithFields(fmt.Sprintf(msg, args...), map[string]interface{}{
		"module": w.module,
	})
}

func (w *WameowLogger) Sub(module string) waLog.Logger {
	return &WameowLogger{
		logger: w.logger,
		module: fmt.Sprintf("%s.%s", w.module, module),
	}
}

// NewContainer creates the whatsmeow device store on the shared Postgres
// connection and runs its schema migrations.
func NewContainer(db *sql.DB, log *logger.Logger) (*sqlstore.Container, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}

	waLogger := NewWameowLogger(log)

	container := sqlstore.NewWithDB(db, "postgres", waLogger)
	if container == nil {
		return nil, fmt.Errorf("sqlstore.NewWithDB returned nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade whatsmeow schema: %w", err)
	}

	return container, nil
}
