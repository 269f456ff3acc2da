package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	fahttp "github.com/Strob0t/ForgeAgent/internal/adapter/http"
	faotel "github.com/Strob0t/ForgeAgent/internal/adapter/otel"
	"github.com/Strob0t/ForgeAgent/internal/adapter/ws"
	"github.com/Strob0t/ForgeAgent/internal/config"
	"github.com/Strob0t/ForgeAgent/internal/port/broadcast"
	"github.com/Strob0t/ForgeAgent/internal/service"
)

// runServer hosts the session API until SIGINT/SIGTERM.
func runServer(ctx context.Context, cfg *config.Config, factory *service.Factory, runner *service.Runner, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := ws.NewHub()
	handlers := &fahttp.Handlers{
		Store:   service.NewStore(),
		Factory: factory,
		Runner:  runner,
		Logger:  log,
		BaseCtx: ctx,
		WSSink: func(sessionID string) broadcast.Sink {
			return ws.NewSessionSink(hub, sessionID)
		},
	}

	r := chi.NewRouter()
	r.Use(fahttp.CORS(cfg.Server.CORSOrigin))
	r.Use(fahttp.RequestID)
	r.Use(fahttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(faotel.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/ws", hub.HandleWS)
	fahttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")
	cancel() // stop background runs

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
