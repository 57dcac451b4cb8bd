package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// App holds the application knobs. Connection strings stay with the Init* functions.
type App struct {
	Port     string
	LogLevel string

	GCPProject  string
	GCPLocation string
	LLMModel    string
	MongoDB     string

	StorageBucket string

	// TTSLanguage is used when a voice profile does not pin one.
	TTSLanguage string
	STTLanguage string

	CORSOrigins []string

	AIRateLimit  int
	AIRateWindow time.Duration

	AudioWorkers int
	BufferTTL    time.Duration

	WebFetchTimeout time.Duration
}

func LoadApp() *App {
	return &App{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		GCPProject:      getEnv("GCP_PROJECT_ID", ""),
		GCPLocation:     getEnv("GCP_LOCATION", "us-central1"),
		LLMModel:        getEnv("LLM_MODEL", "gemini-1.5-flash"),
		MongoDB:         getEnv("MONGO_DB", "ventas"),
		StorageBucket:   getEnv("GCS_BUCKET", ""),
		TTSLanguage:     getEnv("TTS_LANGUAGE", "es-ES"),
		STTLanguage:     getEnv("STT_LANGUAGE", "es-ES"),
		CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		AIRateLimit:     getEnvInt("AI_RATE_LIMIT", 30),
		AIRateWindow:    getEnvDuration("AI_RATE_WINDOW", time.Minute),
		AudioWorkers:    getEnvInt("AUDIO_WORKERS", 5),
		BufferTTL:       getEnvDuration("BUFFER_TTL", 24*time.Hour),
		WebFetchTimeout: getEnvDuration("WEB_FETCH_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
