package main

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-boot/config"
)

// newLogger builds the process logger writing to w.
func newLogger(cfg config.Config, w io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.LogLevel != "" {
		lvl, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		level = lvl
	}

	var enc zapcore.Encoder
	if cfg.LogFormat == config.FormatJSON {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core, zap.AddCaller()), nil
}

// logRing keeps the last lines written to it for the TUI.
type logRing struct {
	mu      sync.Mutex
	lines   []string
	partial []byte
	limit   int
}

func newLogRing(limit int) *logRing {
	return &logRing{limit: limit}
}

func (r *logRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial = append(r.partial, p...)
	for {
		idx := bytes.IndexByte(r.partial, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(r.partial[:idx]), "\r")
		r.partial = r.partial[idx+1:]
		if line == "" {
			continue
		}
		r.lines = append(r.lines, line)
		if len(r.lines) > r.limit {
			r.lines = r.lines[len(r.lines)-r.limit:]
		}
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first.
func (r *logRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
