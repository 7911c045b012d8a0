package reasoning

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/polaris-wellness/polaris/backend/internal/config"
	"github.com/polaris-wellness/polaris/backend/internal/model/conversation"
)

func testConfig() config.AIConfig {
	return config.AIConfig{
		APIKey:     "test-key",
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Timeout:    2 * time.Second,
	}
}

func successBody(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
}

func TestGenerateRetriesWithinTierThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, successBody("hello there"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(), WithTiers(
		Tier{Name: "flash", URL: srv.URL},
		Tier{Name: "pro", URL: srv.URL + "/never"},
	))

	got := client.Generate(context.Background(), "hi")
	if got != "hello there" {
		t.Fatalf("expected success text, got %q", got)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 calls, got %d", calls)
	}
}

func TestGenerateExhaustionReturnsFallback(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(), WithTiers(
		Tier{Name: "flash", URL: srv.URL + "/flash"},
		Tier{Name: "pro", URL: srv.URL + "/pro"},
	))

	got := client.Generate(context.Background(), "hi")
	if got != Fallback {
		t.Fatalf("expected fallback string, got %q", got)
	}
	if calls != 6 {
		t.Fatalf("expected 2 tiers x 3 attempts = 6 calls, got %d", calls)
	}
}

func TestGenerateClientErrorBurnsAttemptWithoutLeavingTier(t *testing.T) {
	var flashCalls, proCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/flash") {
			n := atomic.AddInt32(&flashCalls, 1)
			if n < 3 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, successBody("third time lucky"))
			return
		}
		atomic.AddInt32(&proCalls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(), WithTiers(
		Tier{Name: "flash", URL: srv.URL + "/flash"},
		Tier{Name: "pro", URL: srv.URL + "/pro"},
	))

	got := client.Generate(context.Background(), "hi")
	if got != "third time lucky" {
		t.Fatalf("expected success on third flash attempt, got %q", got)
	}
	if flashCalls != 3 {
		t.Fatalf("expected 3 flash calls, got %d", flashCalls)
	}
	if proCalls != 0 {
		t.Fatalf("client errors must not advance to the next tier early, got %d pro calls", proCalls)
	}
}

func TestGenerateMalformedPayloadCountsTowardBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(), WithTiers(Tier{Name: "flash", URL: srv.URL}))

	got := client.Generate(context.Background(), "hi")
	if got != Fallback {
		t.Fatalf("expected fallback for persistently malformed payloads, got %q", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestGenerateFirstSuccessShortCircuits(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, successBody("  padded reply  "))
	}))
	defer srv.Close()

	client := NewClient(testConfig(), WithTiers(
		Tier{Name: "flash", URL: srv.URL},
		Tier{Name: "pro", URL: srv.URL},
	))

	got := client.Generate(context.Background(), "hi")
	if got != "padded reply" {
		t.Fatalf("expected trimmed reply, got %q", got)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestBuildPromptNormalizesLabelsAndEmbedsHistory(t *testing.T) {
	history := []conversation.Message{
		{Sender: conversation.SenderUser, Text: "hi"},
		{Sender: conversation.SenderAI, Text: "hello"},
	}

	prompt := BuildPrompt(PromptContext{
		Transcript:   "I'm okay",
		AudioEmotion: "category/neutral",
		VideoEmotion: "happy",
		History:      history,
	})

	if !strings.Contains(prompt, `Text: "I'm okay"`) {
		t.Fatalf("prompt missing transcript: %s", prompt)
	}
	if !strings.Contains(prompt, "Audio emotion detected: neutral") {
		t.Fatalf("provider-qualified label not normalized: %s", prompt)
	}
	if !strings.Contains(prompt, "Video emotion detected: happy") {
		t.Fatalf("prompt missing video emotion: %s", prompt)
	}
	if !strings.Contains(prompt, "USER: hi\nAI: hello") {
		t.Fatalf("history block malformed: %s", prompt)
	}
}

func TestBuildPromptAbsentSignals(t *testing.T) {
	prompt := BuildPrompt(PromptContext{Transcript: ""})

	if !strings.Contains(prompt, "Video emotion detected: none") {
		t.Fatalf("absent video emotion must render as none: %s", prompt)
	}
	if !strings.Contains(prompt, "Audio emotion detected: none") {
		t.Fatalf("absent audio emotion must render as none: %s", prompt)
	}
	if strings.Contains(prompt, "RECENT CONVERSATION CONTEXT") {
		t.Fatalf("empty history must omit the context block: %s", prompt)
	}
}
