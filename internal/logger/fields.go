package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldPassID is the structured log field key for a matching pass.
	FieldPassID = "pass_id"
	// FieldProfileID is the structured log field key for a profile identity.
	FieldProfileID = "profile_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// ForPass returns a logger tagged with the pass id.
func ForPass(logger *zap.Logger, passID string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldPassID, Value: passID})...)
}

// ProfileField is a shortcut for the profile id field.
func ProfileField(id string) zap.Field {
	return zap.String(FieldProfileID, id)
}
