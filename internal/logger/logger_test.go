package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newBufferedJSONLogger builds a logger with the production JSON encoder
// writing into buf so tests can inspect individual entries.
func newBufferedJSONLogger(buf *bytes.Buffer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(buf),
		zapcore.DebugLevel,
	)
	return zap.New(core)
}

func TestNew(t *testing.T) {
	for _, env := range []string{"development", "production", "staging", ""} {
		t.Run("env="+env, func(t *testing.T) {
			log, err := New(env)
			if err != nil {
				t.Fatalf("New(%q) returned error: %v", env, err)
			}
			if log == nil {
				t.Fatalf("New(%q) returned nil logger", env)
			}
			log.Sync()
		})
	}
}

// Feature: marketplace-bridge, Property 21: Every log entry is one JSON
// object with level, timestamp and message
func TestProperty_LogEntriesAreStructuredJSON(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("entries at any level parse as JSON with the core fields", prop.ForAll(
		func(message string, level string) bool {
			var buf bytes.Buffer
			log := newBufferedJSONLogger(&buf)
			defer log.Sync()

			switch level {
			case "debug":
				log.Debug(message)
			case "warn":
				log.Warn(message)
			case "error":
				log.Error(message)
			default:
				log.Info(message)
			}

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}

			if _, ok := entry["level"]; !ok {
				return false
			}
			if _, ok := entry["timestamp"]; !ok {
				return false
			}
			return entry["message"] == message
		},
		gen.AnyString(),
		gen.OneConstOf("debug", "info", "warn", "error"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestErrorFieldsAreStructured(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferedJSONLogger(&buf)
	defer log.Sync()

	log.Error("Failed to migrate product",
		zap.Int("product_id", 4711),
		zap.String("error", "card validation rejected"),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not valid JSON: %v", err)
	}

	if entry["product_id"] != float64(4711) {
		t.Errorf("expected product_id 4711, got %v", entry["product_id"])
	}
	if entry["error"] != "card validation rejected" {
		t.Errorf("expected error field, got %v", entry["error"])
	}
}
