package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/logger"
)

type ctxKey string

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("JSONFormat", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithJSONFormatter(), logger.WithOutput(&buf))
		log.Info("flag evaluated", logger.FlagKey("new-dashboard"))

		entry := decodeLine(t, &buf)
		assert.Equal(t, "flag evaluated", entry["msg"])
		assert.Equal(t, "new-dashboard", entry["flag_key"])
	})

	t.Run("StaticAttrs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(
			logger.WithJSONFormatter(),
			logger.WithOutput(&buf),
			logger.WithAttr(slog.String("service", "flag-service")),
		)
		log.Info("started")

		entry := decodeLine(t, &buf)
		assert.Equal(t, "flag-service", entry["service"])
	})

	t.Run("ContextExtractor", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		key := ctxKey("request_id")
		log := logger.New(
			logger.WithJSONFormatter(),
			logger.WithOutput(&buf),
			logger.WithContextValue("request_id", key),
		)

		ctx := context.WithValue(context.Background(), key, "req-123")
		log.InfoContext(ctx, "evaluated")

		entry := decodeLine(t, &buf)
		assert.Equal(t, "req-123", entry["request_id"])
	})

	t.Run("LevelFilter", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(
			logger.WithJSONFormatter(),
			logger.WithOutput(&buf),
			logger.WithLevel(slog.LevelWarn),
		)
		log.Info("dropped")
		assert.Zero(t, buf.Len())
	})

	t.Run("InvalidFormatPanics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			logger.New(logger.WithFormat("xml"))
		})
	})
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	t.Run("ErrorNil", func(t *testing.T) {
		t.Parallel()
		assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	})

	t.Run("ErrorNonNil", func(t *testing.T) {
		t.Parallel()
		attr := logger.Error(errors.New("boom"))
		assert.Equal(t, "error", attr.Key)
	})

	t.Run("ErrorsSkipsNil", func(t *testing.T) {
		t.Parallel()
		attr := logger.Errors(nil, errors.New("boom"), nil)
		assert.Equal(t, "errors", attr.Key)
		assert.Len(t, attr.Value.Group(), 1)
	})

	t.Run("DomainAttrs", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "flag_key", logger.FlagKey("a").Key)
		assert.Equal(t, "experiment_id", logger.ExperimentID("e1").Key)
		assert.Equal(t, "variant", logger.Variant("control").Key)
		assert.Equal(t, "reason", logger.Reason("rollout").Key)
		assert.True(t, logger.ExperimentID(nil).Equal(slog.Attr{}))
	})
}
