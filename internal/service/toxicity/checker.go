package toxicity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/polaris-wellness/polaris/backend/internal/config"
)

const perspectiveURL = "https://commentanalyzer.googleapis.com/v1alpha1/comments:analyze"

// Checker scores text toxicity through the Perspective API. Scoring is
// advisory: failures return 0 so a broken collaborator never blocks a
// journal save.
type Checker struct {
	httpClient *http.Client
	url        string
	apiKey     string
	threshold  float64
}

// NewChecker builds a checker from configuration.
func NewChecker(cfg config.ToxicityConfig) *Checker {
	return &Checker{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		url:        perspectiveURL,
		apiKey:     cfg.APIKey,
		threshold:  cfg.Threshold,
	}
}

// WithEndpoint points the checker at an alternative endpoint, for tests.
func (c *Checker) WithEndpoint(url string) *Checker {
	c.url = url
	return c
}

type analyzeRequest struct {
	Comment             commentBody            `json:"comment"`
	Languages           []string               `json:"languages"`
	RequestedAttributes map[string]struct{}    `json:"requestedAttributes"`
}

type commentBody struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

// Score returns the toxicity summary score in [0,1], or 0 on any failure.
func (c *Checker) Score(ctx context.Context, text string) float64 {
	payload, err := json.Marshal(analyzeRequest{
		Comment:             commentBody{Text: text},
		Languages:           []string{"en"},
		RequestedAttributes: map[string]struct{}{"TOXICITY": {}},
	})
	if err != nil {
		return 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"?key="+c.apiKey, bytes.NewReader(payload))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logrus.Warnf("[toxicity] perspective call failed: %v", err)
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logrus.Warnf("[toxicity] perspective %s: %s", resp.Status, string(body))
		return 0
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		logrus.Warnf("[toxicity] perspective decode failed: %v", err)
		return 0
	}

	return parsed.AttributeScores["TOXICITY"].SummaryScore.Value
}

// Exceeds reports whether the text scores above the configured threshold.
func (c *Checker) Exceeds(ctx context.Context, text string) bool {
	return c.Score(ctx, text) > c.threshold
}
