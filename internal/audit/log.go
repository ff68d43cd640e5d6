package audit

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/foyer-io/foyer/internal/sanitize"
)

// LineLogger appends one sanitized, timestamped entry per call to an
// append-only log file. Write failures are logged and otherwise ignored —
// audit logging must never take the assistant down.
type LineLogger struct {
	path      string
	sanitizer *sanitize.Sanitizer
}

// NewLineLogger creates a line logger writing to path.
func NewLineLogger(path string, s *sanitize.Sanitizer) *LineLogger {
	return &LineLogger{path: path, sanitizer: s}
}

// Write appends one entry. The message is sanitized first so log content
// cannot carry an injection payload into whatever tails the file.
func (l *LineLogger) Write(message string) {
	safe := l.sanitizer.Clean(message)
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(time.RFC3339), safe)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		log.Error().Err(err).Str("path", l.path).Msg("audit_log_open_failed")
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		log.Error().Err(err).Str("path", l.path).Msg("audit_log_write_failed")
	}
}
