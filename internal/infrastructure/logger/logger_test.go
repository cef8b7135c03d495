package logger

import (
	"testing"

	"coinledger/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	l, err := Init(&config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.Same(t, l, zap.L())
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = Init(&config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
