package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"
	"goa.design/goa/v3/middleware"

	"aeroguardian/internal/auth"
	"aeroguardian/internal/camera"
	"aeroguardian/internal/config"
	"aeroguardian/internal/console"
	"aeroguardian/internal/database"
	"aeroguardian/internal/logging"
	"aeroguardian/internal/metrics"
	authmw "aeroguardian/internal/middleware"
	"aeroguardian/internal/pipeline"
	"aeroguardian/internal/services"
	"aeroguardian/internal/stream"
	"aeroguardian/internal/telegram"
	"aeroguardian/internal/ws"
)

type httpDeps struct {
	cfg        config.Config
	dispatcher *console.Dispatcher
	pipeline   *pipeline.Pipeline
	hub        *ws.Hub
	feed       *stream.Feed
	recorder   *metrics.Recorder
	authn      *auth.Authenticator
	db         *database.Database
	bot        *telegram.Bot
	camera     *camera.Source
}

// newHandler builds the REST services on a goa muxer and mounts the
// streaming endpoints next to it.
func newHandler(d *httpDeps) http.Handler {
	logger := logging.Component("http")

	var mux goahttp.Muxer
	{
		mux = goahttp.NewMuxer()
	}

	var (
		store  services.OptionsStore
		sender services.MessageSender
	)
	if d.db != nil {
		store = d.db
	}
	if d.bot != nil {
		sender = d.bot
	}

	var (
		healthSvc  = services.NewHealthService(d.pipeline.Detector())
		authSvc    = services.NewAuthService(d.authn)
		consoleSvc = services.NewConsoleService(d.dispatcher, d.cfg.Server.MaxUploadBytes)
		configSvc  = services.NewConfigService(d.pipeline, store)
		systemSvc  = services.NewSystemService(d.dispatcher, d.pipeline, d.hub, d.feed, sender != nil)
		notifySvc  = services.NewNotifyService(sender)
	)
	if d.camera != nil {
		systemSvc.SetCamera(d.camera)
	}
	healthSvc.Mount(mux)
	authSvc.Mount(mux)
	consoleSvc.Mount(mux)
	configSvc.Mount(mux)
	systemSvc.Mount(mux)
	notifySvc.Mount(mux)

	for _, mounts := range [][]services.MountPoint{healthSvc.Mounts, authSvc.Mounts, consoleSvc.Mounts, configSvc.Mounts, systemSvc.Mounts, notifySvc.Mounts} {
		for _, m := range mounts {
			logger.Info().Str("method", m.Method).Str("verb", m.Verb).Str("pattern", m.Pattern).Msg("HTTP mounted")
		}
	}

	// Middlewares mounted here apply to the REST endpoints only; streaming
	// routes write to the raw connection.
	var api http.Handler = mux
	{
		if d.cfg.Server.Debug {
			api = httpmdlwr.Debug(mux, os.Stdout)(api)
		}
		api = httpmdlwr.Log(middleware.NewLogger(logging.StdLogger("http")))(api)
		api = httpmdlwr.RequestID()(api)
	}

	root := http.NewServeMux()
	root.Handle("/", api)
	root.Handle("/ws/live", ws.NewHandler(d.hub, d.dispatcher))
	root.Handle("/video/feed", d.feed)
	root.Handle("/video/snapshot", stream.NewSnapshotHandler(d.feed))
	root.Handle("/metrics", d.recorder.Handler())

	handler := authmw.AuthMiddleware(d.authn, services.PublicPath)(root)
	return handler
}

// serveHTTP runs the server until ctx is cancelled, then shuts down gracefully
func serveHTTP(ctx context.Context, d *httpDeps) error {
	logger := logging.Component("http")
	addr := d.cfg.Server.Addr()

	srv := &http.Server{Addr: addr, Handler: newHandler(d), ReadHeaderTimeout: 60 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info().Str("addr", addr).Msg("shutting down HTTP server")
	d.hub.Close()

	grace := d.cfg.Server.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("failed to shutdown")
		return err
	}
	return ctx.Err()
}
