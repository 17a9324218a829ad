// Package log is a thin, configurable logging layer based on zerolog
// (https://github.com/rs/zerolog).
//
// Configuration is read through viper from the key "log", e.g. in a toml
// or yaml config file:
//
//	[log]
//	level = "info"          # debug/info/warn/error/fatal/panic
//	formatter = "console"   # json, console, console_no_color
//	caller = false
//
//	[log.remote]            # per-module override, only level is honored
//	level = "debug"
//
// Modules obtain their logger once via NewLogger("module") and keep it.
package log

import (
	"os"
	"strings"
	"sync"

	colorable "github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

var (
	baseLogger = zerolog.New(os.Stderr)
	baseLevel  = zerolog.InfoLevel

	initLock  sync.Mutex
	isInit    bool
	logConfig *viper.Viper
)

// Logger is a module-tagged zerolog logger.
type Logger struct {
	*zerolog.Logger
	name  string
	level zerolog.Level
}

func initBase() {
	logConfig = viper.Sub("log")
	if logConfig == nil {
		logConfig = viper.New()
	}

	out := os.Stderr
	switch strings.ToLower(logConfig.GetString("formatter")) {
	case "console":
		baseLogger = baseLogger.Output(zerolog.ConsoleWriter{
			Out:        colorable.NewColorable(out),
			TimeFormat: zerolog.TimeFieldFormat,
		})
	case "console_no_color":
		baseLogger = baseLogger.Output(zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    true,
			TimeFormat: zerolog.TimeFieldFormat,
		})
	default: // json
		baseLogger = baseLogger.Output(out)
	}

	if logConfig.GetBool("caller") {
		baseLogger = baseLogger.With().Caller().Logger()
	}

	level := zerolog.InfoLevel
	if name := logConfig.GetString("level"); name != "" {
		parsed, err := zerolog.ParseLevel(name)
		if err != nil {
			baseLogger.Warn().Str("level", name).Msg("Unknown log level, using info")
		} else {
			level = parsed
		}
	}
	baseLogger = baseLogger.With().Timestamp().Logger().Level(level)
	baseLevel = level
}

// NewLogger returns a logger tagged with the given module name. All loggers
// share one base configuration, initialized on first use; per-module levels
// may override the base level.
func NewLogger(moduleName string) *Logger {
	initLock.Lock()
	defer initLock.Unlock()

	if !isInit {
		initBase()
		isInit = true
	}

	logger := baseLogger.With().Str("module", moduleName).Logger()
	level := baseLevel
	if sub := logConfig.Sub(moduleName); sub != nil {
		if name := sub.GetString("level"); name != "" {
			if parsed, err := zerolog.ParseLevel(name); err == nil {
				level = parsed
				logger = logger.Level(level)
			}
		}
	}

	return &Logger{
		Logger: &logger,
		name:   moduleName,
		level:  level,
	}
}

// IsDebugEnabled helps avoid building expensive debug statements.
func (logger *Logger) IsDebugEnabled() bool {
	return logger.level <= zerolog.DebugLevel
}

// Level returns the logger's level name.
func (logger *Logger) Level() string {
	return logger.level.String()
}
