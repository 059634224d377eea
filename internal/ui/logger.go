// Package ui provides terminal logging and styling for vectorkit.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// InitLogger sends logs to stderr so stdout stays clean for results.
func InitLogger() {
	InitLoggerTo(os.Stderr)
}

// InitLoggerTo configures the package-level charm logger to write to w.
func InitLoggerTo(w io.Writer) {
	log.SetOutput(w)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
	log.SetPrefix("vectorkit")
}

// SetDebug toggles debug logging.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
		return
	}
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
}
