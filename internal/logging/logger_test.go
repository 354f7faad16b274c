package logging

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Validate(t *testing.T) {
	var testCases = []struct {
		description string
		config      Config
		expectErr   bool
	}{
		{description: "defaults", config: DefaultConfig()},
		{description: "debug json", config: Config{Level: "DEBUG", Format: "json"}},
		{description: "bad level", config: Config{Level: "loud"}, expectErr: true},
		{description: "bad format", config: Config{Level: "info", Format: "xml"}, expectErr: true},
	}
	for _, tc := range testCases {
		err := tc.config.Validate()
		if tc.expectErr {
			assert.Error(t, err, tc.description)
			continue
		}
		assert.NoError(t, err, tc.description)
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raco.log")
	logger, err := NewLogger(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)
	assert.True(t, logger.Enabled(zapcore.DebugLevel))
	logger.Info(context.Background(), "hello")
	_ = logger.Sync()
}

func TestContextFields(t *testing.T) {
	logger := NewTestLogger()
	ctx := WithWorkflowID(context.Background(), "wf-1")
	ctx = WithRequestID(ctx, "req-1")
	logger.Named("engine").Info(ctx, "workflow started", zap.Int("steps", 2))

	logger.AssertLogged(t, zapcore.InfoLevel, "workflow started")
	entries := logger.FilterMessage("workflow started").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "wf-1", fields["workflow_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.EqualValues(t, 2, fields["steps"])
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
	logger := NewTestLogger()
	ctx := WithLogger(context.Background(), logger.Logger)
	assert.Same(t, logger.Logger, FromContext(ctx))
}
