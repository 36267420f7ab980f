package util

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// WithSignalContext cancels the returned context on the first SIGINT or
// SIGTERM. A second signal exits the process with status 130.
func WithSignalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			if logger != nil {
				logger.Info("shutting down", "signal", sig.String())
			}
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigs:
			if logger != nil {
				logger.Warn("forced exit", "signal", sig.String())
			}
			os.Exit(130)
		case <-parent.Done():
		}
	}()
	return ctx, cancel
}
