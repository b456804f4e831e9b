package main

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/audio"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/config"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/feed"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/ipc"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/logging"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/metrics"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/notify"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/proxy"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/session"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/transport"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/tts"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configPath := cli.StringP("config", "c", "assistant.yaml", "Config file path")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides config)")
	relayURL := cli.StringP("relay", "r", "", "Relay base URL (overrides config)")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for relay traffic")
	noStart := cli.Bool("no-start", false, "Do not start wake-word listening at boot")
	cli.Parse()

	godotenv.Load(*envFile)

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		logging.Setup(os.Stdout, "info", false)
		log.Error("Failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *relayURL != "" {
		cfg.Relay.BaseURL = *relayURL
	}
	if *proxyAddr != "" {
		cfg.Relay.Proxy = *proxyAddr
	}
	if *noStart {
		cfg.Session.AutoStart = false
	}

	logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.NoColor)
	log.Info("Booting up", "relay", cfg.Relay.BaseURL)

	httpClient, err := proxy.NewHTTPClient(cfg.Relay.Proxy, cfg.Relay.GetProcessTimeout())
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Relay.Proxy, "err", err)
		os.Exit(1)
	}

	client, err := transport.NewClient(transport.Config{
		BaseURL:        cfg.Relay.BaseURL,
		WakeTimeout:    cfg.Relay.GetWakeTimeout(),
		ProcessTimeout: cfg.Relay.GetProcessTimeout(),
		TTSTimeout:     cfg.Relay.GetTTSTimeout(),
		HTTPClient:     httpClient,
	})
	if err != nil {
		log.Error("Failed to create relay client", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded relay client")

	rec := audio.NewRecorder()
	rec.SampleRate = cfg.Audio.SampleRate
	rec.FrameSize = cfg.Audio.FrameSize
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	log.Debug("Loaded recorder")

	player := audio.NewPlayer()
	m := metrics.NewDaemon("")

	opts := session.DefaultOptions()
	opts.ProbeInterval = cfg.Session.GetProbeInterval()
	opts.WakeCaptureDuration = cfg.Session.GetWakeCapture()
	opts.SettleDelay = cfg.Session.GetSettleDelay()
	opts.MainCaptureCeiling = cfg.Session.GetMainCaptureCeiling()
	opts.RearmDelay = cfg.Session.GetRearmDelay()
	opts.HistorySize = cfg.Session.HistorySize
	opts.MemoryEnabled = cfg.Session.MemoryEnabled
	opts.TTSEnabled = cfg.Session.TTSEnabled
	opts.DuckFactor = cfg.Audio.DuckFactor
	opts.DuckFade = cfg.Audio.GetDuckFade()
	opts.Notifier = notify.New(cfg.Notify.Title, cfg.Notify.Desktop, cfg.Notify.Cue, player)
	opts.Observer = m

	switch cfg.TTS.Engine {
	case "remote":
		opts.Speaker = session.RemoteSpeaker{Synth: client, Player: player}
	case "espeak":
		es, err := tts.NewEspeak(cfg.TTS.Language, cfg.TTS.Rate)
		if err != nil {
			log.Error("Failed to init espeak", "err", err)
			os.Exit(1)
		}
		defer es.Close()
		opts.Speaker = es
	case "none":
		opts.TTSEnabled = false
	}

	if cfg.Audio.Duck {
		opts.Ducker = audio.NewDucker(cfg.Audio.SelfNames, cfg.Audio.DuckMinVolume)
	}

	convo := conversation.NewLog()
	convo.OnAppend(func(e conversation.Entry) {
		log.Debug("Entry", "kind", e.Kind, "text", e.Text)
	})

	ctrl := session.NewController(opts, rec, client, convo)
	defer ctrl.Close()

	ctrl.Announce(session.TextStarted)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctl, err := ipc.Listen(cfg.Control.Socket, ipc.NewHandler(ctrl))
	if err != nil {
		log.Error("Failed ipc server", "socket", cfg.Control.Socket, "err", err)
		os.Exit(1)
	}
	defer ctl.Close()
	go func() {
		if err := ctl.Serve(ctx); err != nil {
			log.Error("Control socket stopped", "err", err)
		}
	}()

	var srv *http.Server
	if cfg.Control.HTTPAddr != "" {
		fh := feed.NewHandler(ctrl)
		fh.OnViewer = func(delta int) { m.FeedViewers.Add(float64(delta)) }

		mux := http.NewServeMux()
		mux.Handle("GET /ws", fh)
		mux.Handle("GET /metrics", m.Handler())

		srv = &http.Server{
			Addr:              cfg.Control.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("Serving event feed", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Feed listener failed", "err", err)
			}
		}()
	}

	if cfg.Session.AutoStart {
		if err := ctrl.Start(); err != nil {
			log.Warn("Failed to start listening", "err", err)
		}
	}

	log.Info("Boot up - successful", "socket", ctl.Path())

	<-ctx.Done()
	log.Info("Shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Feed shutdown failed", "err", err)
		}
	}
}
