package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tutorstack/voice-gateway/internal/auth"
	"github.com/tutorstack/voice-gateway/internal/persona"
	"github.com/tutorstack/voice-gateway/internal/pipeline"
	"github.com/tutorstack/voice-gateway/internal/session"
	"github.com/tutorstack/voice-gateway/internal/telemetry"
	"github.com/tutorstack/voice-gateway/internal/tts"
	"github.com/tutorstack/voice-gateway/internal/ws"
)

func main() {
	godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	// Persistence. Without a database the gateway still runs: conversations
	// come from the DEV_CONVERSATIONS env map and telemetry is dropped.
	var store *telemetry.Store
	var recorder *telemetry.Recorder
	var conversations ws.ConversationStore
	if cfg.databaseURL != "" {
		var err error
		store, err = telemetry.Open(cfg.databaseURL)
		if err != nil {
			slog.Error("telemetry store open failed", "error", err)
			os.Exit(1)
		}
		recorder = telemetry.NewRecorder(store)
		conversations = store
		slog.Info("telemetry enabled")
	} else {
		conversations = memConversations(cfg.devChats)
		slog.Warn("no DATABASE_URL, using in-memory conversations", "count", len(cfg.devChats))
	}

	// Auth.
	var authorizer auth.Authorizer
	if cfg.authURL != "" {
		authorizer = auth.NewHTTPAuthorizer(cfg.authURL, pipeline.NewPooledHTTPClient(10, 10*time.Second))
	} else {
		authorizer = auth.StaticAuthorizer(cfg.devTokens)
		slog.Warn("no AUTH_SERVICE_URL, using static dev tokens", "count", len(cfg.devTokens))
	}

	// TTS providers and the failover chain.
	ttsHTTP := pipeline.NewPooledHTTPClient(cfg.ttsPoolSize, 30*time.Second)
	providers := []tts.Provider{
		tts.NewPiperProvider(cfg.piperURL, cfg.piperVoice, ttsHTTP),
	}
	if cfg.kokoroURL != "" {
		providers = append(providers, tts.NewOpenAISpeechProvider("kokoro", cfg.kokoroURL, "kokoro", "af_heart", ttsHTTP))
	}
	if cfg.elevenlabsAPIKey != "" {
		providers = append(providers, tts.NewElevenLabsProvider(cfg.elevenlabsAPIKey, cfg.elevenlabsVoiceID, cfg.elevenlabsModelID, ttsHTTP))
	}
	chain := tts.NewChain(providers, cfg.breakerThreshold, cfg.breakerCooldown)
	chain.SetOrder(tts.ProfileQuality, cfg.orderQuality)
	chain.SetOrder(tts.ProfileLatency, cfg.orderLatency)
	chain.SetOrder(tts.ProfileCost, cfg.orderCost)

	comp, err := tts.NewCompressor(cfg.compressThreshold)
	if err != nil {
		slog.Error("compressor init failed", "error", err)
		os.Exit(1)
	}
	cache := tts.NewCache(cfg.cacheCapacity, cfg.cacheTTL)

	var synthRecorder tts.Recorder
	if recorder != nil {
		synthRecorder = recorder
	}
	synth := tts.NewService(chain, cache, comp, synthRecorder)

	// Query collaborators.
	answerBackends := map[string]pipeline.Answerer{
		"ollama": pipeline.NewOllamaAnswerer(cfg.ollamaURL, cfg.ollamaModel, cfg.llmPoolSize),
	}
	if cfg.openaiAPIKey != "" {
		answerBackends["openai"] = pipeline.NewOpenAIAnswerer(cfg.openaiAPIKey, cfg.openaiBaseURL, cfg.openaiModel)
	}
	answerer := pipeline.NewAnswerRouter(answerBackends, cfg.answerEngine)

	registry := session.NewRegistry()
	personas := persona.Defaults()

	handler := ws.NewHandler(ws.Config{
		Auth:              authorizer,
		Conversations:     conversations,
		Transcriber:       pipeline.NewWhisperClient(cfg.whisperURL, cfg.asrPoolSize),
		Answerer:          answerer,
		Synth:             synth,
		Registry:          registry,
		Personas:          personas,
		HeartbeatInterval: cfg.heartbeatInterval,
		MaxConcurrent:     cfg.maxConcurrent,
		SpeechProfile:     cfg.speechProfile,
		FrameBytes:        cfg.frameBytes,
		FrameDelay:        cfg.frameDelay,
		BinaryFrames:      cfg.binaryFrames,
		DefaultLanguage:   cfg.defaultLanguage,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cfg:       cfg,
		synth:     synth,
		registry:  registry,
		personas:  personas,
		store:     store,
		wsHandler: handler,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr,
		"providers", len(providers), "max_concurrent", cfg.maxConcurrent)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	recorder.Close()
	if store != nil {
		store.Close()
	}
	slog.Info("gateway stopped")
}

// memConversations is the database-free conversation lookup for local
// development, fed from DEV_CONVERSATIONS ("chatId=userId,...").
type memConversations map[string]string

func (m memConversations) ConversationOwner(id string) (string, error) {
	owner, ok := m[id]
	if !ok {
		return "", telemetry.ErrConversationNotFound
	}
	return owner, nil
}
