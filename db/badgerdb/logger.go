package badgerdb

import (
	"strings"

	"github.com/quark-network/go-forkdb/log"
)

// extendedLog adapts our logger to badger's Logger interface.
type extendedLog struct {
	*log.Logger
}

func (l *extendedLog) Errorf(format string, v ...interface{}) {
	l.Error().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

func (l *extendedLog) Warningf(format string, v ...interface{}) {
	l.Warn().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

func (l *extendedLog) Infof(format string, v ...interface{}) {
	l.Info().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

func (l *extendedLog) Debugf(format string, v ...interface{}) {
	l.Debug().Msgf(strings.TrimSuffix(format, "\n"), v...)
}
