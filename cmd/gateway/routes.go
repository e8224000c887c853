package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutorstack/voice-gateway/internal/persona"
	"github.com/tutorstack/voice-gateway/internal/session"
	"github.com/tutorstack/voice-gateway/internal/telemetry"
	"github.com/tutorstack/voice-gateway/internal/tts"
)

type deps struct {
	cfg       config
	synth     *tts.Service
	registry  *session.Registry
	personas  *persona.Registry
	store     *telemetry.Store
	wsHandler http.Handler
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/session", d.wsHandler)
	mux.HandleFunc("/health", d.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/personas", d.handlePersonas)
	mux.HandleFunc("GET /api/tts/providers", d.handleProviders)
	mux.HandleFunc("GET /api/tts/cache", d.handleCacheStats)
	mux.HandleFunc("POST /api/tts/cache/clear", d.handleCacheClear)
	mux.HandleFunc("POST /api/tts/synthesize", d.handleSynthesize)
	mux.HandleFunc("GET /api/telemetry/synthesis", d.handleTelemetry)
}

func (d deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "ok",
		"active_sessions": d.registry.Len(),
	})
}

func (d deps) handlePersonas(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"personas": d.personas.List()})
}

func (d deps) handleProviders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"providers": d.synth.ProviderHealth()})
}

func (d deps) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d.synth.Cache().Stats())
}

func (d deps) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	d.synth.Cache().Clear()
	slog.Info("tts cache cleared", "remote", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d.synth.Cache().Stats())
}

// handleSynthesize runs one synthesis outside a session, for smoke tests and
// pre-warming the cache before a lesson. The response body is the audio; the
// pipeline outcome is reported in headers.
func (d deps) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Persona  string `json:"persona"`
		Profile  string `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	profile := req.Profile
	if profile == "" {
		profile = d.cfg.speechProfile
	}
	p := d.personas.Get(req.Persona)

	res, err := d.synth.Synthesize(r.Context(), tts.Request{
		Text:     req.Text,
		Language: req.Language,
		Emotion:  p.Emotion,
		Persona:  p.ID,
		Voice:    p.Voice,
	}, profile, "http", 0)
	if errors.Is(err, tts.ErrTextTooLong) {
		http.Error(w, "text too long", http.StatusRequestEntityTooLarge)
		return
	}
	if errors.Is(err, tts.ErrAllProvidersFailed) {
		http.Error(w, "all providers unavailable", http.StatusBadGateway)
		return
	}
	if err != nil {
		slog.Error("synthesize endpoint failed", "error", err)
		http.Error(w, "synthesis failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("X-Cache-Hit", strconv.FormatBool(res.CacheHit))
	w.Header().Set("X-Compressed", strconv.FormatBool(res.Compressed))
	if res.Encoding != "" {
		w.Header().Set("X-Audio-Encoding", res.Encoding)
	}
	if res.Provider != "" {
		w.Header().Set("X-Provider", res.Provider)
	}
	w.Write(res.Audio)
}

func (d deps) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if d.store == nil {
		http.Error(w, "telemetry disabled", http.StatusServiceUnavailable)
		return
	}
	agg, err := d.store.SynthesisAggregates()
	if err != nil {
		slog.Error("telemetry aggregates failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agg)
}
