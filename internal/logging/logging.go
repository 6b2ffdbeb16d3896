// Package logging constructs the process-wide zap logger and parses the
// CYFS_CONSOLE_LOG_LEVEL / CYFS_FILE_LOG_LEVEL environment overrides
// (spec.md §6.6). Adopted from storj-storj / youngkashew-hypersdk, since the
// teacher repo logs via bare fmt.Printf and the rest of the corpus shows a
// structured-logging idiom worth carrying forward instead.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger honoring CYFS_CONSOLE_LOG_LEVEL. It takes
// no parameters and wires only the console core, which is what every
// in-process component in this module actually needs; a process that also
// wants file output can parse CYFS_FILE_LOG_LEVEL with LevelFromEnv and
// wire a second core itself.
func New() *zap.SugaredLogger {
	level := LevelFromEnv("CYFS_CONSOLE_LOG_LEVEL", zapcore.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		// Construction only fails on encoder misconfiguration, which can't
		// happen with the production preset; fall back rather than panic
		// so library consumers never crash on logger setup.
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// Nop returns a logger that discards everything, used as the default for
// components constructed without an explicit logger (tests, embedding).
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// LevelFromEnv parses the named environment variable as a zap level,
// returning fallback if unset or unparsable. A parse failure is not fatal,
// and neither this function nor New logs the fallback.
func LevelFromEnv(envVar string, fallback zapcore.Level) zapcore.Level {
	raw, ok := os.LookupEnv(envVar)
	if !ok || raw == "" {
		return fallback
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return lvl
}
