// Package log provides the crawler's process-wide structured logger.
//
// It plays the role the teacher's logger/glog package played in vintage
// go-ethereum (a single global, leveled logger reached from every package),
// backed by zap instead of glog since glog itself isn't an importable module.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	base   *zap.Logger
	sugar  *zap.SugaredLogger
)

func init() {
	Configure("info")
}

// Configure (re)builds the global logger at the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to "info".
func Configure(level string) {
	mu.Lock()
	defer mu.Unlock()

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)
	base = zap.New(core)
	sugar = base.Sugar()
}

// With returns a child logger with the given structured fields attached,
// mirroring structlog's bound-logger pattern used throughout the original
// crawler.py (logger.info("msg", ip=ip, port=port)).
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return sugar.With(keysAndValues...)
}

func Debugw(msg string, keysAndValues ...interface{}) {
	mu.Lock()
	s := sugar
	mu.Unlock()
	s.Debugw(msg, keysAndValues...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	mu.Lock()
	s := sugar
	mu.Unlock()
	s.Infow(msg, keysAndValues...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	mu.Lock()
	s := sugar
	mu.Unlock()
	s.Warnw(msg, keysAndValues...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	mu.Lock()
	s := sugar
	mu.Unlock()
	s.Errorw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	mu.Lock()
	b := base
	mu.Unlock()
	_ = b.Sync()
}
