package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetLogLevel parses a level name and applies it to the global logrus logger. Unknown
// values fall back to InfoLevel rather than erroring, since this is typically driven by
// a config document field that an admin may mistype.
func SetLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "verbose":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "quiet", "silent":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// FileRotationConfig configures size- and age-based log file rotation, spec §4.O.
type FileRotationConfig struct {
	Path       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// DefaultFileRotationConfig returns sane defaults for a long-running deployment.
func DefaultFileRotationConfig(path string) FileRotationConfig {
	return FileRotationConfig{
		Path:       path,
		MaxSizeMB:  100,
		MaxAgeDays: 14,
		MaxBackups: 10,
		Compress:   true,
	}
}

// ConfigureFileRotation points the global logrus logger at a rotating file in addition
// to stderr, so a long-running deployment doesn't grow one unbounded log file.
func ConfigureFileRotation(cfg FileRotationConfig) {
	if cfg.Path == "" {
		return
	}
	roller := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, roller))
}

// InitGlobalLogger sets the text formatter and log level used across the process, and
// wires file rotation when a path is given. Called once from cmd/server/main.go.
func InitGlobalLogger(level string, rotation FileRotationConfig) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	SetLogLevel(level)
	if rotation.Path != "" {
		ConfigureFileRotation(rotation)
	}
	log.AddHook(GlobalBuffer)
}
