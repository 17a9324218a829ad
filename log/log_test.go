package log

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func resetLogger() {
	baseLogger = zerolog.New(os.Stderr)
	baseLevel = zerolog.InfoLevel
	isInit = false
	viper.Reset()
}

func TestDefaultLevel(t *testing.T) {
	resetLogger()
	logger := NewLogger("test")
	assert.Equal(t, "info", logger.Level())
	assert.False(t, logger.IsDebugEnabled())
}

func TestConfiguredLevel(t *testing.T) {
	resetLogger()
	viper.Set("log.level", "warn")
	logger := NewLogger("test")
	assert.Equal(t, "warn", logger.Level())
}

func TestModuleOverride(t *testing.T) {
	resetLogger()
	viper.Set("log.level", "info")
	viper.Set("log.remote.level", "debug")

	base := NewLogger("backend")
	assert.Equal(t, "info", base.Level())

	remote := NewLogger("remote")
	assert.Equal(t, "debug", remote.Level())
	assert.True(t, remote.IsDebugEnabled())
}

func TestInvalidLevelFallsBack(t *testing.T) {
	resetLogger()
	viper.Set("log.level", "shouting")
	logger := NewLogger("test")
	assert.Equal(t, "info", logger.Level())
}
