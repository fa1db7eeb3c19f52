package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls level, format and output of the application logger.
type Config struct {
	Level  string
	Format string
	Output string
	Caller bool
}

// Logger wraps zerolog with the field helpers used across zapdesk.
type Logger struct {
	logger zerolog.Logger
	config Config
}

// New creates a logger with the default production configuration.
func New() *Logger {
	return NewWithConfig(ProductionConfig())
}

// NewWithConfig creates a logger from the given configuration.
func NewWithConfig(cfg Config) *Logger {
	cfg = validateConfig(cfg)

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var writer io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		writer = os.Stderr
	}

	if cfg.Format == "console" {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
		if cfg.Caller {
			consoleWriter.FormatCaller = func(i interface{}) string {
				if caller, ok := i.(string); ok {
					return formatCaller(caller)
				}
				return ""
			}
		}
		writer = consoleWriter
	}

	ctx := zerolog.New(writer).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.CallerWithSkipFrameCount(3)
	}

	return &Logger{
		logger: ctx.Logger(),
		config: cfg,
	}
}

// WithModule returns a logger tagged with a component name.
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", module).Logger(),
		config: l.config,
	}
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *Logger) DebugWithFields(msg string, fields map[string]interface{}) {
	event := l.logger.Debug()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l *Logger) InfoWithFields(msg string, fields map[string]interface{}) {
	event := l.logger.Info()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *Logger) WarnWithFields(msg string, fields map[string]interface{}) {
	event := l.logger.Warn()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *Logger) ErrorWithFields(msg string, fields map[string]interface{}) {
	event := l.logger.Error()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func (l *Logger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf(format, args...)
}

// WithError adds an error to the logger context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		logger: l.logger.With().Err(err).Logger(),
		config: l.config,
	}
}

// WithField adds a single field to the logger context.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
		config: l.config,
	}
}

// WithFields adds multiple fields to the logger context.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		logger: ctx.Logger(),
		config: l.config,
	}
}

// WithInstance tags the logger with a WhatsApp instance name.
func (l *Logger) WithInstance(instance string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("instance", instance).Logger(),
		config: l.config,
	}
}

// WithRequest tags the logger with a request ID.
func (l *Logger) WithRequest(requestID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("request_id", requestID).Logger(),
		config: l.config,
	}
}

// WithMessage tags the logger with a message ID.
func (l *Logger) WithMessage(messageID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("message_id", messageID).Logger(),
		config: l.config,
	}
}

// GetZerologLogger returns the underlying zerolog logger.
func (l *Logger) GetZerologLogger() zerolog.Logger {
	return l.logger
}

// IsDebugEnabled reports whether debug logging is active.
func (l *Logger) IsDebugEnabled() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func validateConfig(cfg Config) Config {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "disabled": true,
	}
	if !validLevels[strings.ToLower(cfg.Level)] {
		cfg.Level = "info"
	}

	if cfg.Format != "console" && cfg.Format != "json" {
		cfg.Format = "json"
	}

	if cfg.Output != "stdout" && cfg.Output != "stderr" {
		cfg.Output = "stdout"
	}

	return cfg
}

func formatCaller(caller string) string {
	if strings.Contains(caller, "zapdesk/") {
		parts := strings.Split(caller, "zapdesk/")
		return parts[len(parts)-1]
	}
	return filepath.Base(caller)
}

// DevelopmentConfig returns the logger configuration for local development.
func DevelopmentConfig() Config {
	return Config{
		Level:  "debug",
		Format: "console",
		Output: "stdout",
		Caller: true,
	}
}

// ProductionConfig returns the logger configuration for production.
func ProductionConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
		Caller: false,
	}
}

// TestConfig returns a quiet logger configuration for tests.
func TestConfig() Config {
	return Config{
		Level:  "warn",
		Format: "json",
		Output: "stdout",
		Caller: false,
	}
}
