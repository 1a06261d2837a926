// Package logger builds the structured logger shared by every subsystem of
// the store. It exists to fill the dependency every other package already
// expects: engine, directory and the log layer all take a
// *zap.SugaredLogger in their Config and never construct one themselves.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-tuned logger tagged with the given service name.
// Setting SPHINX_DEV_LOG to any non-empty value switches to zap's
// development encoder (console output, debug level, stack traces on warn)
// for local debugging sessions.
func New(service string) *zap.SugaredLogger {
	var cfg zap.Config
	if os.Getenv("SPHINX_DEV_LOG") != "" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	log, err := cfg.Build()
	if err != nil {
		// Logger construction only fails on a malformed static config, which
		// is a programmer error, not a runtime condition to recover from.
		panic(err)
	}

	return log.Sugar().Named(service)
}
