package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	CookieSecure   bool
	// Nestzone backend (auth, properties, locations)
	NestzoneAPIURL     string
	NestzoneBasePrefix string
	NestzoneTimeout    time.Duration
	// Fallback responder
	AIProvider   string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	Model        string
	// Speech
	STTModel          string
	STTRetries        int
	TTSProvider       string
	ElevenAPIKey      string
	ElevenVoiceID     string
	ElevenModel       string
	GoogleTTSLanguage string
	GoogleTTSVoice    string
	// Dialogue
	ScriptPath  string
	MaxMessages int
	SessionTTL  time.Duration
	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and the process environment. It never fails;
// problems with provider keys are reported by Warnings.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:               getEnvDefault("PORT", "8080"),
		AllowedOrigins:     getEnvListDefault("ALLOWED_ORIGIN", []string{"*"}),
		CookieSecure:       getEnvBoolDefault("COOKIE_SECURE", false),
		NestzoneAPIURL:     strings.TrimRight(os.Getenv("NESTZONE_API_URL"), "/"),
		NestzoneBasePrefix: getEnvDefault("NESTZONE_BASE_PREFIX", "/api"),
		NestzoneTimeout:    getEnvDurationDefault("NESTZONE_TIMEOUT", 20*time.Second),
		AIProvider:         strings.ToLower(getEnvDefault("AI_PROVIDER", "gemini")),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnvDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		Model:              getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		STTModel:           getEnvDefault("OPENAI_STT_MODEL", "whisper-1"),
		STTRetries:         getEnvIntDefault("STT_RETRIES", 2),
		TTSProvider:        strings.ToLower(getEnvDefault("TTS_PROVIDER", "elevenlabs")),
		ElevenAPIKey:       os.Getenv("ELEVEN_API_KEY"),
		ElevenVoiceID:      os.Getenv("ELEVEN_VOICE_ID"),
		ElevenModel:        getEnvDefault("ELEVEN_MODEL_ID", "eleven_multilingual_v2"),
		GoogleTTSLanguage:  getEnvDefault("GOOGLE_TTS_LANGUAGE", "en-US"),
		GoogleTTSVoice:     getEnvDefault("GOOGLE_TTS_VOICE", "en-US-Neural2-F"),
		ScriptPath:         os.Getenv("CLARA_SCRIPT"),
		MaxMessages:        getEnvIntDefault("MAX_MESSAGES", 40),
		SessionTTL:         getEnvDurationDefault("SESSION_TTL", 30*time.Minute),
		LogLevel:           getEnvDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvDefault("LOG_FORMAT", "json"),
	}
}

// NestzoneBaseURL joins the backend host and its API prefix.
func (c Config) NestzoneBaseURL() string {
	if c.NestzoneAPIURL == "" {
		return ""
	}
	prefix := c.NestzoneBasePrefix
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return c.NestzoneAPIURL + strings.TrimRight(prefix, "/")
}

// Warnings lists settings that leave a feature unusable until provided.
func (c Config) Warnings() []string {
	var out []string
	if c.NestzoneAPIURL == "" {
		out = append(out, "NESTZONE_API_URL is not set; property search, login and registration will fail")
	}
	switch c.AIProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			out = append(out, "OPENAI_API_KEY is not set; AI replies will fail until provided")
		}
	default:
		if c.GeminiAPIKey == "" {
			out = append(out, "GEMINI_API_KEY is not set; AI replies will fail until provided")
		}
	}
	if c.OpenAIAPIKey == "" {
		out = append(out, "OPENAI_API_KEY is not set; voice transcription is disabled")
	}
	if c.TTSProvider == "elevenlabs" && c.ElevenAPIKey == "" {
		out = append(out, "ELEVEN_API_KEY is not set; speech output is disabled")
	}
	return out
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
