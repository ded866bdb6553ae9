package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"momentum_go/internal/app"

	_ "net/http/pprof"
)

func main() {
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		bootstrap.Shutdown()
		os.Exit(1)
	}

	if addr := bootstrap.Config.App.PprofAddr; addr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("Startup failed", slog.Any("error", err))
		bootstrap.Shutdown()
		os.Exit(1)
	}
	slog.InfoContext(ctx, "Momentum engine running. Press Ctrl+C to exit.")

	<-ctx.Done()

	slog.Info("Shutting down gracefully...")
	bootstrap.Shutdown()
}
