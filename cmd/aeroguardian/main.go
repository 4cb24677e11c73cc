package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"aeroguardian/internal/auth"
	"aeroguardian/internal/camera"
	"aeroguardian/internal/config"
	"aeroguardian/internal/console"
	"aeroguardian/internal/database"
	"aeroguardian/internal/detection/backend"
	"aeroguardian/internal/logging"
	"aeroguardian/internal/metrics"
	"aeroguardian/internal/mode"
	"aeroguardian/internal/notify"
	"aeroguardian/internal/pipeline"
	"aeroguardian/internal/stream"
	"aeroguardian/internal/telegram"
	"aeroguardian/internal/ws"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to a YAML configuration file")
		hostF   = flag.String("host", "", "Server host (overrides server.host)")
		portF   = flag.Int("port", 0, "HTTP port (overrides server.port)")
		dbgF    = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	if err := run(*configF, *hostF, *portF, *dbgF); err != nil {
		fmt.Fprintf(os.Stderr, "aeroguardian: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, host string, port int, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if debug {
		cfg.Server.Debug = true
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.Pretty, os.Stderr); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Settings store
	var db *database.Database
	opts := cfg.Pipeline
	if cfg.Database.Path != "" {
		db, err = database.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		stored, found, err := db.LoadOptions(ctx, opts)
		if err != nil {
			logger.Warn().Err(err).Msg("ignoring stored pipeline options")
		} else if found {
			opts = stored
			logger.Info().Msg("loaded pipeline options from database")
		}
	}

	// Detector backend
	detector, err := backend.Default().Open(cfg.Detector)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(detector); err != nil {
			logger.Warn().Err(err).Msg("close detector")
		}
	}()
	logger.Info().Str("backend", detector.Name()).Msg("detector ready")

	p, err := pipeline.New(detector, opts)
	if err != nil {
		return err
	}

	bus := pipeline.NewReportBus()
	defer bus.Close()

	modes := mode.NewController()
	dispatcher := console.NewDispatcher(p, modes, bus)
	defer dispatcher.Close()

	// Report consumers
	hub := ws.NewHub()
	defer hub.Close()
	modes.OnChange(hub.OnModeChange)
	bus.Subscribe(hub)

	feed := stream.NewFeed()
	bus.Subscribe(feed)

	recorder := metrics.New()
	bus.Subscribe(recorder)
	dispatcher.OnFailure(recorder.OnFailure)
	recorder.RegisterGaugeFunc("ws_clients", "Connected WebSocket clients", func() float64 {
		return float64(hub.ClientCount())
	})
	recorder.RegisterGaugeFunc("feed_clients", "Connected MJPEG clients", func() float64 {
		return float64(feed.ClientCount())
	})
	recorder.RegisterGaugeFunc("report_subscribers", "Active report bus subscribers", func() float64 {
		return float64(bus.SubscriberCount())
	})
	recorder.RegisterGaugeFunc("ws_dropped_messages", "Messages dropped for slow WebSocket clients", func() float64 {
		return float64(hub.Dropped())
	})

	var bot *telegram.Bot
	if cfg.Notify.Enabled() {
		bot, err = telegram.NewBot(telegram.Config{BotToken: cfg.Notify.TelegramToken, ChatID: cfg.Notify.TelegramChatID})
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		source, err := cfg.Notify.SourceMode()
		if err != nil {
			return err
		}
		notifier := notify.New(bot, cfg.Notify.Cooldown)
		defer notifier.Close()
		if source != "" {
			bus.SubscribeSource(source, notifier)
		} else {
			bus.Subscribe(notifier)
		}
		logger.Info().Dur("cooldown", cfg.Notify.Cooldown).Str("source", string(source)).Msg("telegram alerts enabled")
	}

	// Server-side live camera runs only while LIVE is selected
	var cam *camera.Source
	if cfg.Camera.Device != "" {
		cam, err = camera.New(camera.Config{
			Device: cfg.Camera.Device,
			FPS:    cfg.Camera.FPS,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FFmpeg: cfg.Camera.FFmpeg,
		}, func(ctx context.Context, img image.Image) error {
			_, err := dispatcher.SubmitLive(ctx, img)
			return err
		})
		if err != nil {
			return fmt.Errorf("camera: %w", err)
		}
		defer cam.Stop()
		modes.OnChange(func(from, to mode.Mode) {
			switch {
			case to == mode.Live:
				cam.Start()
			case from == mode.Live:
				cam.Stop()
			}
		})
		recorder.RegisterGaugeFunc("camera_frames_captured", "Frames captured by the server-side camera", func() float64 {
			return float64(cam.Stats().Captured)
		})
	}

	authn, err := auth.NewAuthenticator(auth.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	deps := &httpDeps{
		cfg:        cfg,
		dispatcher: dispatcher,
		pipeline:   p,
		hub:        hub,
		feed:       feed,
		recorder:   recorder,
		authn:      authn,
		db:         db,
		bot:        bot,
		camera:     cam,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, deps)
	})

	err = g.Wait()
	log.Info().Msg("exited")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
