package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmotionScorer calls a sidecar emotion-detection service: POST
// {base}/score with a base64 payload, back a label→score map. The same
// client serves the audio model (whole clip) and the video model (single
// frame); only the base URL differs.
type EmotionScorer struct {
	httpClient *http.Client
	baseURL    string
}

// NewEmotionScorer builds a scorer client for one sidecar service.
func NewEmotionScorer(baseURL string, timeout time.Duration) *EmotionScorer {
	return &EmotionScorer{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

type scoreRequest struct {
	Data string `json:"data"`
}

type scoreResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// Score submits the payload and returns the score map; an absent or empty
// map means the model found nothing.
func (c *EmotionScorer) Score(ctx context.Context, data []byte) (map[string]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(scoreRequest{Data: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("emotion %s: %s", resp.Status, string(body))
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("emotion decode: %w", err)
	}
	return parsed.Scores, nil
}
