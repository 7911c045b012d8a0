package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/polaris-wellness/polaris/backend/internal/config"
)

// Fallback is returned when every tier has exhausted its retries. Callers
// treat it as a normal reply, never as an error.
const Fallback = "I'm sorry, I'm facing some technical difficulties connecting to my brain right now. Please try again in a moment."

// Tier is one candidate model endpoint, tried in fallback order.
type Tier struct {
	Name string
	URL  string
}

// Client talks to the generative language API across an ordered list of
// model tiers with bounded per-tier retries. Generate never fails: total
// exhaustion yields the fixed Fallback string.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	tiers       []Tier
	maxRetries  int
	baseDelay   time.Duration
	temperature float64
	maxTokens   int
}

// Option tweaks client construction, mainly for tests.
type Option func(*Client)

// WithTiers overrides the tier list.
func WithTiers(tiers ...Tier) Option {
	return func(c *Client) { c.tiers = tiers }
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client from configuration: the fast/cheap tier first,
// the larger one as fallback.
func NewClient(cfg config.AIConfig, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		apiKey:      cfg.APIKey,
		maxRetries:  cfg.MaxRetries,
		baseDelay:   cfg.BaseDelay,
		temperature: 0.8,
		maxTokens:   4000,
		tiers: []Tier{
			{Name: "gemini-flash", URL: cfg.FlashURL},
			{Name: "gemini-pro", URL: cfg.ProURL},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64  `json:"temperature"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate runs the tiered retry protocol for a composed prompt. Within a
// tier, 5xx responses, transport errors, and timeouts are retried with
// exponential backoff; 4xx and malformed payloads burn the attempt. The
// first well-formed response short-circuits everything downstream.
func (c *Client) Generate(ctx context.Context, prompt string) string {
	return c.generate(ctx, prompt, c.temperature, c.maxTokens, nil)
}

// GenerateShort is Generate with a constrained single-sentence budget,
// used for journal prompt suggestions.
func (c *Client) GenerateShort(ctx context.Context, prompt string) (string, bool) {
	text := c.generate(ctx, prompt, 0.3, 50, []string{"\n", ".", "!", "?"})
	if text == Fallback {
		return "", false
	}
	return text, true
}

func (c *Client) generate(ctx context.Context, prompt string, temperature float64, maxTokens int, stop []string) string {
	payload, err := json.Marshal(generateRequest{
		Contents: []requestContent{{Parts: []requestPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
			StopSequences:   stop,
		},
	})
	if err != nil {
		logrus.WithError(err).Error("[reasoning] marshal request failed")
		return Fallback
	}

	for _, tier := range c.tiers {
		for attempt := 0; attempt < c.maxRetries; attempt++ {
			if attempt > 0 {
				if !sleepWithContext(ctx, backoffDelay(c.baseDelay, attempt-1)) {
					return Fallback
				}
			}

			text, retryable, err := c.attempt(ctx, tier.URL, payload)
			if err == nil {
				return text
			}
			if ctx.Err() != nil {
				return Fallback
			}

			// Client errors and malformed payloads burn the attempt too;
			// the tier only changes once R attempts are spent.
			logrus.WithFields(logrus.Fields{
				"tier":      tier.Name,
				"attempt":   attempt + 1,
				"retryable": retryable,
			}).Warnf("[reasoning] attempt failed: %v", err)
		}
	}

	logrus.Warn("[reasoning] all tiers exhausted, using fallback reply")
	return Fallback
}

// attempt performs a single call. retryable reports whether the failure
// was a server-side or transport problem (as opposed to a client error or
// malformed body); both kinds count toward the per-tier budget.
func (c *Client) attempt(ctx context.Context, url string, payload []byte) (text string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts land here and count as same-tier retries.
		return "", true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", true, fmt.Errorf("server error: %s", resp.Status)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", false, fmt.Errorf("client error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("malformed response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", false, fmt.Errorf("response carries no candidates")
	}

	return strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text), false, nil
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d < 0 {
		return base
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
