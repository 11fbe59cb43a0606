// package shared defines shared helpers
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]. Pipeline keys (component, error_code) are highlighted.
// Loggers derived with [WithLogger] lock independently, so w must be safe for concurrent writes.
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	l := log.NewWithOptions(w, opts)
	l.SetStyles(loggerStyles())
	return l
}

func loggerStyles() *log.Styles {
	styles := log.DefaultStyles()
	styles.Keys["component"] = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	styles.Keys["error_code"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	styles.Values["error_code"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true)
	return styles
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}
