package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every runtime setting for the service.
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Speech   SpeechConfig
	Emotion  EmotionConfig
	Store    StoreConfig
	Toxicity ToxicityConfig
	History  HistoryConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	emotion, err := loadEmotionConfig()
	if err != nil {
		return nil, err
	}

	toxicity, err := loadToxicityConfig()
	if err != nil {
		return nil, err
	}

	history, err := loadHistoryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Speech:   speech,
		Emotion:  emotion,
		Store:    loadStoreConfig(),
		Toxicity: toxicity,
		History:  history,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the tiered reasoning service.
type AIConfig struct {
	APIKey     string
	FlashURL   string
	ProURL     string
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

// Enabled reports whether reasoning credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadAIConfig() (AIConfig, error) {
	retries := 3
	if override, err := parseOptionalIntEnv("GEMINI_MAX_RETRIES"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			retries = 1
		} else {
			retries = *override
		}
	}

	delayMillis := 1000
	if override, err := parseOptionalIntEnv("GEMINI_BASE_DELAY_MS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		delayMillis = *override
	}

	timeoutSeconds := 120
	if override, err := parseOptionalIntEnv("GEMINI_TIMEOUT_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		timeoutSeconds = *override
	}

	return AIConfig{
		APIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		FlashURL:   getEnvOrDefault("GEMINI_FLASH_URL", "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"),
		ProURL:     getEnvOrDefault("GEMINI_PRO_URL", "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-pro:generateContent"),
		MaxRetries: retries,
		BaseDelay:  time.Duration(delayMillis) * time.Millisecond,
		Timeout:    time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// SpeechConfig describes the transcription and synthesis services.
type SpeechConfig struct {
	APIKey       string
	STTBaseURL   string
	TTSBaseURL   string
	SampleRate   int
	Language     string
	Voice        string
	SpeakingRate float64
	Timeout      time.Duration
	Enabled      bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	sampleRate := 48000
	if override, err := parseOptionalIntEnv("SPEECH_SAMPLE_RATE"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		sampleRate = *override
	}

	rate := 0.9
	if override, err := parseOptionalFloatEnv("SPEECH_TTS_SPEAKING_RATE"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		rate = *override
	}

	timeoutSeconds := 30
	if override, err := parseOptionalIntEnv("SPEECH_TIMEOUT_SECONDS"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		timeoutSeconds = *override
	}

	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}

	return SpeechConfig{
		APIKey:       apiKey,
		STTBaseURL:   getEnvOrDefault("SPEECH_STT_URL", "https://speech.googleapis.com/v1"),
		TTSBaseURL:   getEnvOrDefault("SPEECH_TTS_URL", "https://texttospeech.googleapis.com/v1"),
		SampleRate:   sampleRate,
		Language:     getEnvOrDefault("SPEECH_LANGUAGE", "en-US"),
		Voice:        getEnvOrDefault("SPEECH_TTS_VOICE", "en-US-Chirp3-HD-Algieba"),
		SpeakingRate: rate,
		Timeout:      time.Duration(timeoutSeconds) * time.Second,
		Enabled:      apiKey != "",
	}, nil
}

// EmotionConfig points at the audio/video emotion scorer services.
type EmotionConfig struct {
	AudioURL string
	VideoURL string
	Timeout  time.Duration
}

func loadEmotionConfig() (EmotionConfig, error) {
	timeoutSeconds := 30
	if override, err := parseOptionalIntEnv("EMOTION_TIMEOUT_SECONDS"); err != nil {
		return EmotionConfig{}, err
	} else if override != nil {
		timeoutSeconds = *override
	}

	return EmotionConfig{
		AudioURL: strings.TrimSpace(os.Getenv("EMOTION_AUDIO_URL")),
		VideoURL: strings.TrimSpace(os.Getenv("EMOTION_VIDEO_URL")),
		Timeout:  time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// StoreConfig selects the persistence backend. Firestore is used when a
// project is configured, the in-memory store otherwise.
type StoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

// UseFirestore reports whether the Firestore backend is configured.
func (c StoreConfig) UseFirestore() bool {
	return c.ProjectID != ""
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		ProjectID:       strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID")),
		CredentialsFile: strings.TrimSpace(os.Getenv("FIRESTORE_CREDENTIALS_FILE")),
	}
}

// ToxicityConfig describes the Perspective API gate for public journals.
type ToxicityConfig struct {
	APIKey    string
	Threshold float64
}

func loadToxicityConfig() (ToxicityConfig, error) {
	threshold := 0.7
	if override, err := parseOptionalFloatEnv("TOXICITY_THRESHOLD"); err != nil {
		return ToxicityConfig{}, err
	} else if override != nil {
		threshold = *override
	}

	return ToxicityConfig{
		APIKey:    strings.TrimSpace(os.Getenv("PERSPECTIVE_API_KEY")),
		Threshold: threshold,
	}, nil
}

// HistoryConfig bounds the conversation context fed to the model.
type HistoryConfig struct {
	Limit int
}

func loadHistoryConfig() (HistoryConfig, error) {
	limit := 8
	if override, err := parseOptionalIntEnv("HISTORY_LIMIT"); err != nil {
		return HistoryConfig{}, err
	} else if override != nil {
		if *override < 1 {
			limit = 1
		} else {
			limit = *override
		}
	}
	return HistoryConfig{Limit: limit}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
