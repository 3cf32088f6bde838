package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lorenzotomasdiez/summarize/internal/refresh"
)

func chatServer(t *testing.T, handler func(w http.ResponseWriter, req map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w, req)
	}))
}

func TestGenerate(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, req map[string]any) {
		if req["model"] != "google/gemma-3-27b-it:free" {
			t.Errorf("unexpected model %v", req["model"])
		}
		msgs, _ := req["messages"].([]any)
		if len(msgs) != 1 {
			t.Errorf("expected 1 message, got %d", len(msgs))
		}
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"OK"}}]}`)
	})
	defer server.Close()

	gen := NewClientWithBaseURL("test-key", server.URL).NewGenerator()
	text, err := gen.Generate(context.Background(), "google/gemma-3-27b-it:free", "Reply with OK.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "OK" {
		t.Errorf("expected 'OK', got %q", text)
	}
}

func TestGenerateEmptyChoicesIsError(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, req map[string]any) {
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[]}`)
	})
	defer server.Close()

	gen := NewClientWithBaseURL("test-key", server.URL).NewGenerator()
	if _, err := gen.Generate(context.Background(), "m:free", "hi"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestGenerateRateLimitIsClassified(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, req map[string]any) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit exceeded: free-models-per-min.","code":429}}`)
	})
	defer server.Close()

	gen := NewClientWithBaseURL("test-key", server.URL).NewGenerator()
	_, err := gen.Generate(context.Background(), "m:free", "hi")
	if err == nil {
		t.Fatal("expected error for 429")
	}
	if !IsRateLimited(err) {
		t.Errorf("expected rate-limit classification, got %v", err)
	}
}

func TestGenerateOtherErrorIsNotRateLimit(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, req map[string]any) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"message":"No endpoints found for m:free.","code":404}}`)
	})
	defer server.Close()

	gen := NewClientWithBaseURL("test-key", server.URL).NewGenerator()
	_, err := gen.Generate(context.Background(), "m:free", "hi")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if IsRateLimited(err) {
		t.Errorf("404 must not be classified as rate limit: %v", err)
	}
}

func TestIsRateLimitedMessages(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Rate limit exceeded: free-models-per-min."), true},
		{errors.New("upstream: 20 requests per minute exceeded"), true},
		{errors.New("Too Many Requests"), false},
		{errors.New("Rate limit exceeded: free-models-per-day. Add 10 credits to unlock 1000 free model requests per day"), false},
		{errors.New("upstream: 10 requests/minute limit"), true},
		{errors.New("quota free-models-per-min reached"), true},
		{errors.New("model not found"), false},
		{errors.New("context deadline exceeded"), false},
	}
	for _, tt := range tests {
		if got := IsRateLimited(tt.err); got != tt.want {
			t.Errorf("IsRateLimited(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestGenerateDailyQuotaIsNotRetryable(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, req map[string]any) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit exceeded: free-models-per-day.","code":429}}`)
	})
	defer server.Close()

	prober := refresh.NewProber(NewClientWithBaseURL("test-key", server.URL).NewGenerator(), IsRateLimited)
	outcome := prober.Probe(context.Background(), "m:free")
	if outcome.Kind != refresh.OutcomeFailed {
		t.Fatalf("expected failed outcome for a daily quota, got %s", outcome.Kind)
	}
	if !strings.Contains(outcome.Reason, "free-models-per-day") {
		t.Errorf("expected the provider message in the reason, got %q", outcome.Reason)
	}
}

func TestGenerateSlowReplyBoundedByCallerTimeoutOnly(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, req map[string]any) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"OK"}}]}`)
	})
	defer server.Close()

	client := NewClientWithBaseURL("test-key", server.URL)
	// A catalog bound shorter than the reply must not apply to generation.
	client.catalogTimeout = 50 * time.Millisecond

	prober := refresh.NewProber(client.NewGenerator(), IsRateLimited)
	prober.SetTimeout(5 * time.Second)
	if outcome := prober.Probe(context.Background(), "m:free"); outcome.Kind != refresh.OutcomeSuccess {
		t.Fatalf("expected success, got %s: %s", outcome.Kind, outcome.Reason)
	}

	prober.SetTimeout(50 * time.Millisecond)
	if outcome := prober.Probe(context.Background(), "m:free"); outcome.Kind != refresh.OutcomeFailed {
		t.Errorf("expected the call timeout to fail the request, got %s", outcome.Kind)
	}
}
