package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	port string

	// session
	heartbeatInterval time.Duration
	maxConcurrent     int
	defaultLanguage   string
	frameBytes        int
	frameDelay        time.Duration
	binaryFrames      bool
	speechProfile     string

	// tts cache + compression
	cacheCapacity     int
	cacheTTL          time.Duration
	compressThreshold int

	// breaker
	breakerThreshold int
	breakerCooldown  time.Duration

	// providers
	piperURL          string
	piperVoice        string
	kokoroURL         string
	elevenlabsAPIKey  string
	elevenlabsVoiceID string
	elevenlabsModelID string
	orderQuality      []string
	orderLatency      []string
	orderCost         []string
	ttsPoolSize       int

	// collaborators
	whisperURL    string
	asrPoolSize   int
	answerEngine  string
	openaiAPIKey  string
	openaiBaseURL string
	openaiModel   string
	ollamaURL     string
	ollamaModel   string
	llmPoolSize   int

	// persistence + auth
	databaseURL string
	authURL     string
	devTokens   map[string]string
	devChats    map[string]string
}

func loadConfig() config {
	return config{
		port:              envStr("GATEWAY_PORT", "8000"),
		heartbeatInterval: envDur("HEARTBEAT_INTERVAL", 30*time.Second),
		maxConcurrent:     envInt("MAX_CONCURRENT_SESSIONS", 100),
		defaultLanguage:   envStr("DEFAULT_LANGUAGE", "en"),
		frameBytes:        envInt("AUDIO_FRAME_BYTES", 32*1024),
		frameDelay:        envDur("AUDIO_FRAME_DELAY", 0),
		binaryFrames:      envBool("AUDIO_BINARY_FRAMES", false),
		speechProfile:     envStr("SPEECH_PROFILE", "quality"),

		cacheCapacity:     envInt("TTS_CACHE_CAPACITY", 512),
		cacheTTL:          envDur("TTS_CACHE_TTL", time.Hour),
		compressThreshold: envInt("TTS_COMPRESS_THRESHOLD", 64*1024),

		breakerThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 3),
		breakerCooldown:  envDur("BREAKER_COOLDOWN", 30*time.Second),

		piperURL:          envStr("PIPER_URL", "http://localhost:5100"),
		piperVoice:        envStr("PIPER_VOICE", "en_US-lessac-medium"),
		kokoroURL:         envStr("KOKORO_URL", ""),
		elevenlabsAPIKey:  envStr("ELEVENLABS_API_KEY", ""),
		elevenlabsVoiceID: envStr("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		elevenlabsModelID: envStr("ELEVENLABS_MODEL_ID", "eleven_turbo_v2_5"),
		orderQuality:      envList("TTS_ORDER_QUALITY", "elevenlabs,kokoro,piper"),
		orderLatency:      envList("TTS_ORDER_LATENCY", "piper,kokoro,elevenlabs"),
		orderCost:         envList("TTS_ORDER_COST", "piper,kokoro,elevenlabs"),
		ttsPoolSize:       envInt("TTS_POOL_SIZE", 50),

		whisperURL:    envStr("WHISPER_SERVER_URL", "http://localhost:8080"),
		asrPoolSize:   envInt("ASR_POOL_SIZE", 50),
		answerEngine:  envStr("ANSWER_ENGINE", "ollama"),
		openaiAPIKey:  envStr("OPENAI_API_KEY", ""),
		openaiBaseURL: envStr("OPENAI_BASE_URL", ""),
		openaiModel:   envStr("OPENAI_MODEL", "gpt-4o-mini"),
		ollamaURL:     envStr("OLLAMA_URL", "http://localhost:11434"),
		ollamaModel:   envStr("OLLAMA_MODEL", "llama3.2:3b"),
		llmPoolSize:   envInt("LLM_POOL_SIZE", 50),

		databaseURL: envStr("DATABASE_URL", ""),
		authURL:     envStr("AUTH_SERVICE_URL", ""),
		devTokens:   envPairs("DEV_AUTH_TOKENS", ""),
		devChats:    envPairs("DEV_CONVERSATIONS", ""),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func envDur(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key, fallback string) []string {
	val := os.Getenv(key)
	if val == "" {
		val = fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envPairs parses "key=value,key2=value2" maps used by the dev auth and
// dev conversation fallbacks.
func envPairs(key, fallback string) map[string]string {
	val := os.Getenv(key)
	if val == "" {
		val = fallback
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(val, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && k != "" {
			out[k] = v
		}
	}
	return out
}
