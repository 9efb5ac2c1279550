package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xraph/tenure/internal/logging"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := logging.New("warn", format)
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	}

	_, err := logging.New("loud", "json")
	assert.Error(t, err)
}
