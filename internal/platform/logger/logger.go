package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON output so log aggregation can parse
// structured fields without a custom pipeline.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
