package hybridstore

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler
// and configures the log level based on the HYBRIDSTORE_LOG_LEVEL environment
// variable. It defaults to Info level if not specified.
//
// Applications embedding the engine may call this at startup to get a
// reasonable default; it is never called implicitly by Open.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)

	switch os.Getenv("HYBRIDSTORE_LOG_LEVEL") {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel sets the logging level for the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
