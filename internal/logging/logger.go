package logging

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "WITRANSFER_LOG_LEVEL"

// maxDump bounds the bytes rendered by LogDatagram
const maxDump = 256

var current atomic.Pointer[zap.Logger]

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// Initialize builds the global logger for level. An empty level falls back
// to WITRANSFER_LOG_LEVEL; if that is empty too, logging is disabled.
// An unrecognized level logs at info.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		SetLogger(nil)
		return nil
	}

	zapLevel, err := ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Development = false
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.DisableStacktrace = zapLevel > zapcore.DebugLevel
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetLogger(l)
	return nil
}

// ParseLevel maps a level name to a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// InitializeFromEnv initializes the logger from the WITRANSFER_LOG_LEVEL
// environment variable.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger; nil silences it. Tests use it with
// zaptest/observer.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

func Info(msg string, fields ...zap.Field)  { GetLogger().Info(msg, fields...) }
func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// Fatal logs and exits the process
func Fatal(msg string, fields ...zap.Field) { GetLogger().Fatal(msg, fields...) }

// LogPeerEvent logs a registry change for a peer
func LogPeerEvent(event string, addr netip.AddrPort, label string) {
	Info("Peer event",
		zap.String("event", event),
		zap.Stringer("peer_addr", addr),
		zap.String("label", label),
	)
}

// LogComponentExit logs a discovery component leaving its loop.
// A nil error is a clean stop.
func LogComponentExit(component string, err error) {
	if err == nil {
		Debug("Component stopped", zap.String("component", component))
		return
	}
	Error("Component stopped with error",
		zap.String("component", component),
		zap.Error(err),
	)
}

// LogDatagram logs a datagram at debug level with hex and ASCII dumps
func LogDatagram(direction string, addr string, data []byte) {
	if ce := GetLogger().Check(zapcore.DebugLevel, "Datagram"); ce != nil {
		ce.Write(
			zap.String("direction", direction),
			zap.String("addr", addr),
			zap.Int("length", len(data)),
			zap.String("hex", hexDump(data)),
			zap.String("ascii", asciiDump(data)),
		)
	}
}

func hexDump(data []byte) string {
	if len(data) > maxDump {
		return hex.EncodeToString(data[:maxDump]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) > maxDump {
		data = data[:maxDump]
	}
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}

// Sync flushes any buffered log entries
func Sync() {
	_ = GetLogger().Sync()
}
