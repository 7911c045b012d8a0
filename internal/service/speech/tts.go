package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/polaris-wellness/polaris/backend/internal/config"
)

// Synthesized speech is LINEAR16 at this fixed output rate, matching the
// players on the client side.
const ttsSampleRate = 16000

// TTSClient converts reply text to audio through the cloud text-to-speech
// REST endpoint.
type TTSClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	language     string
	voice        string
	speakingRate float64
}

// NewTTSClient builds a synthesis client from configuration.
func NewTTSClient(cfg config.SpeechConfig) *TTSClient {
	return &TTSClient{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		baseURL:      cfg.TTSBaseURL,
		apiKey:       cfg.APIKey,
		language:     cfg.Language,
		voice:        cfg.Voice,
		speakingRate: cfg.SpeakingRate,
	}
}

type synthesizeRequest struct {
	Input       synthesisInput  `json:"input"`
	Voice       voiceSelection  `json:"voice"`
	AudioConfig syntAudioConfig `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type syntAudioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SampleRateHertz int     `json:"sampleRateHertz"`
	SpeakingRate    float64 `json:"speakingRate"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize returns audio bytes for the text. Blank input returns empty
// bytes without a remote call.
func (c *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	payload, err := json.Marshal(synthesizeRequest{
		Input: synthesisInput{Text: text},
		Voice: voiceSelection{LanguageCode: c.language, Name: c.voice},
		AudioConfig: syntAudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: ttsSampleRate,
			SpeakingRate:    c.speakingRate,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/text:synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts %s: %s", resp.Status, string(body))
	}

	var parsed synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tts decode: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("tts audio decode: %w", err)
	}
	return audio, nil
}
