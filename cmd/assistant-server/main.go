package main

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/config"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/logging"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/metrics"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/proxy"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/relay"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/relay/local"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configPath := cli.StringP("config", "c", "server.yaml", "Config file path")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides config)")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for OpenAI traffic")
	cli.Parse()

	godotenv.Load(*envFile)

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		logging.Setup(os.Stdout, "info", false)
		log.Error("Failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *proxyAddr != "" {
		cfg.OpenAI.Proxy = *proxyAddr
	}

	logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.NoColor)
	log.Info("Booting up")

	if cfg.OpenAI.APIKey == "" {
		log.Error("OPENAI_API_KEY not set")
		os.Exit(1)
	}

	httpClient, err := proxy.NewHTTPClient(cfg.OpenAI.Proxy, cfg.OpenAI.GetTimeout())
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.OpenAI.Proxy, "err", err)
		os.Exit(1)
	}

	oa, err := relay.NewOpenAI(relay.OpenAIConfig{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		HTTPClient:   httpClient,
		ChatModel:    cfg.OpenAI.ChatModel,
		SpeechModel:  cfg.OpenAI.SpeechModel,
		Voice:        cfg.OpenAI.Voice,
		SystemPrompt: cfg.OpenAI.SystemPrompt,
	})
	if err != nil {
		log.Error("Failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded OpenAI client", "model", cfg.OpenAI.ChatModel)

	var transcriber relay.Transcriber = oa
	if cfg.Transcriber.Backend == "whisper" {
		lt, err := local.NewTranscriber(cfg.Transcriber.ModelPath, cfg.Transcriber.Language, cfg.Transcriber.Threads)
		if err != nil {
			log.Error("Failed to init whisper", "err", err)
			os.Exit(1)
		}
		defer lt.Close()
		transcriber = lt

		log.Debug("Loaded whisper", "model", cfg.Transcriber.ModelPath)
	}

	m := metrics.NewRelay("")

	store, err := relay.NewStore(filepath.Join(cfg.Storage.UploadDir, "speech"), cfg.Storage.GetRetention())
	if err != nil {
		log.Error("Failed to create artifact store", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	store.OnChange = func(n int) { m.ArtifactsActive.Set(float64(n)) }

	handler, err := relay.NewServer(relay.Config{
		UploadDir:      cfg.Storage.UploadDir,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes(),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		WakePhrases:    cfg.WakeWord.Phrases,
	}, relay.Backends{
		Transcriber: transcriber,
		Responder:   oa,
		Synthesizer: oa,
	}, store, m)
	if err != nil {
		log.Error("Failed to create relay", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("Boot up - successful", "addr", srv.Addr, "transcriber", transcriber.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Graceful shutdown failed", "err", err)
	}
}
