package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "json info", level: "info", format: "json"},
		{name: "console debug", level: "debug", format: "console"},
		{name: "bad level", level: "verbose", format: "json", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	ctx = WithProjectID(ctx, "billing-service")
	ctx = WithRunID(ctx, "run-42")
	ctx = WithRequestID(ctx, "req-7")

	tl := NewTestLogger()
	tl.Info(ctx, "extraction started")

	tl.AssertField(t, "extraction started", "project.id", "billing-service")
	tl.AssertField(t, "extraction started", "run.id", "run-42")
	tl.AssertField(t, "extraction started", "request.id", "req-7")
}

func TestContextFieldsEmpty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestFromContext(t *testing.T) {
	// Missing logger yields a usable nop.
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	logger.Info(context.Background(), "should not panic")

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestWithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Logger.With(zap.String("component", "retriever")).Named("search")
	child.Warn(context.Background(), "collection empty")

	entries := tl.FilterMessage("collection empty").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "search", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}
