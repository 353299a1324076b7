package serviceutil

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext is cancelled on the first SIGINT or SIGTERM, so a stdio
// session or http listener can wind down and flush telemetry.
func SignalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// Fatal logs the failure that stops startup and exits with status 1.
func Fatal(message string, err error, attrs ...any) {
	slog.Error(message, append([]any{"err", err}, attrs...)...)
	os.Exit(1)
}
