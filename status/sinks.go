package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// LogSink writes every state change to a zap logger. Errors are logged at
// error level with the cause attached.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns a sink over l. A nil logger discards output.
func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogSink{log: l}
}

// Show implements Sink.
func (s *LogSink) Show(key string, st State) {
	fields := []zap.Field{
		zap.String("key", key),
		zap.Stringer("phase", st.Phase),
		zap.String("color", st.Color),
	}
	if st.Phase == PhaseError {
		s.log.Error(st.Text, append(fields, zap.Error(st.Err))...)
		return
	}
	s.log.Info(st.Text, fields...)
}

// TerminalSink renders each state as one colored line.
type TerminalSink struct {
	w        io.Writer
	renderer *lipgloss.Renderer
	mu       sync.Mutex
}

// NewTerminalSink returns a sink writing to w. Color output follows the
// capabilities lipgloss detects for w.
func NewTerminalSink(w io.Writer) *TerminalSink {
	return &TerminalSink{w: w, renderer: lipgloss.NewRenderer(w)}
}

// Show implements Sink.
func (s *TerminalSink) Show(_ string, st State) {
	line := s.renderer.NewStyle().
		Foreground(lipgloss.Color(st.Color)).
		Render(st.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, line)
}
