package extension

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tenure"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Authority: "0x01"})
	assert.Equal(t, "wei", cfg.Currency)
	assert.Equal(t, 5*time.Minute, cfg.FreshnessWindow)
	assert.Equal(t, "/tenure", cfg.BasePath)
	assert.Equal(t, "0x01", cfg.Authority)
}

func TestMergeConfigurationsPrefersFile(t *testing.T) {
	file := Config{Currency: "usdc", FreshnessWindow: time.Minute}
	prog := Config{Currency: "wei", Authority: "0xabc", DisableRoutes: true}

	cfg := mergeConfigurations(file, prog)
	assert.Equal(t, "usdc", cfg.Currency)
	assert.Equal(t, time.Minute, cfg.FreshnessWindow)
	assert.Equal(t, "0xabc", cfg.Authority)
	assert.True(t, cfg.DisableRoutes)
	assert.Equal(t, "/tenure", cfg.BasePath)
}

func TestBuildEngineOptsRejectsBadAddress(t *testing.T) {
	e := New(WithAuthority("nope"))
	e.config = mergeWithDefaults(e.config)

	_, err := e.buildEngineOpts()
	require.Error(t, err)
	assert.ErrorIs(t, err, tenure.ErrInvalidInput)

	e = New(WithConfig(Config{Authority: "0x1111111111111111111111111111111111111111"}))
	e.config = mergeWithDefaults(e.config)
	opts, err := e.buildEngineOpts()
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}

func TestHandlerNilBeforeRegister(t *testing.T) {
	assert.Nil(t, New().Handler())
}
