package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext is canceled by the first SIGINT or SIGTERM so serve can
// drain in-flight requests and login can close its callback listener. A
// second signal exits at once.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()

		if parent.Err() != nil {
			stop()
			return
		}

		// Catch the second signal before releasing the first handler so it
		// cannot fall through to the default action.
		force := make(chan os.Signal, 1)
		signal.Notify(force, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(force)

		stop()

		logger.Info("shutting down, signal again to force exit")

		select {
		case sig := <-force:
			logger.Warn("forced exit", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-parent.Done():
		}
	}()

	return ctx
}
