package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/polaris-wellness/polaris/backend/internal/config"
)

// STTClient transcribes raw PCM audio through the cloud speech
// recognition REST endpoint.
type STTClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	sampleRate int
	language   string
}

// NewSTTClient builds a transcription client from configuration.
func NewSTTClient(cfg config.SpeechConfig) *STTClient {
	return &STTClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.STTBaseURL,
		apiKey:     cfg.APIKey,
		sampleRate: cfg.SampleRate,
		language:   cfg.Language,
	}
}

type recognizeRequest struct {
	Config recognizeConfig `json:"config"`
	Audio  recognizeAudio  `json:"audio"`
}

type recognizeConfig struct {
	Encoding        string `json:"encoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	LanguageCode    string `json:"languageCode"`
}

type recognizeAudio struct {
	Content string `json:"content"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Transcribe returns zero or more transcript candidates for the clip,
// best first. Empty input yields no candidates without a remote call.
func (c *STTClient) Transcribe(ctx context.Context, pcm []byte) ([]string, error) {
	if len(pcm) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(recognizeRequest{
		Config: recognizeConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: c.sampleRate,
			LanguageCode:    c.language,
		},
		Audio: recognizeAudio{Content: base64.StdEncoding.EncodeToString(pcm)},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speech:recognize", bytes.NewReader(payload))
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
		return nil, fmt.Errorf("stt %s: %s", resp.Status, string(body))
	}

	var parsed recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("stt decode: %w", err)
	}

	transcripts := make([]string, 0, len(parsed.Results))
	for _, result := range parsed.Results {
		if len(result.Alternatives) > 0 {
			transcripts = append(transcripts, result.Alternatives[0].Transcript)
		}
	}
	return transcripts, nil
}
