package observers

import (
	"log/slog"
	"os"
)

// NewDefaultLoggingObserver creates a text logging observer on stderr at LogInfo level
func NewDefaultLoggingObserver(controllerID string) *LoggingObserver {
	return NewLoggingObserver(slog.New(slog.NewTextHandler(os.Stderr, nil)), LogInfo, controllerID)
}
