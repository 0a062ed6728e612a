package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"docchat/internal/util"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o" }
func (timeoutErr) Timeout() bool { return true }
func (timeoutErr) Temporary() bool { return true }

func TestStatusErrorWrapsSentinel(t *testing.T) {
	cases := []struct {
		code int
		body string
		want error
	}{
		{http.StatusTooManyRequests, `{"error":{"status":"RESOURCE_EXHAUSTED","message":"rate limit"}}`, util.ErrRateLimited},
		{http.StatusTooManyRequests, `{"error":{"code":"insufficient_quota"}}`, util.ErrQuotaExhausted},
		{http.StatusPaymentRequired, `no credits`, util.ErrQuotaExhausted},
		{http.StatusServiceUnavailable, `overloaded`, util.ErrTransient},
		{http.StatusRequestTimeout, ``, util.ErrTransient},
		{http.StatusBadRequest, `This model's maximum context length is 8192 tokens`, util.ErrContextTooLong},
		{http.StatusBadRequest, `invalid model`, util.ErrPermanent},
		{http.StatusUnauthorized, `bad key`, util.ErrPermanent},
	}
	for _, tc := range cases {
		err := statusError("gemini embedding", tc.code, []byte(tc.body))
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d %q: got %v, want %v", tc.code, tc.body, err, tc.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorType
	}{
		{nil, ""},
		{statusError("gemini embedding", 429, nil), ErrorRate},
		{statusError("openai generate", 429, []byte("insufficient_quota")), ErrorQuota},
		{statusError("groq generate", 502, []byte("bad gateway")), ErrorTransient},
		{statusError("openai generate", 400, []byte("context length exceeded")), ErrorContext},
		{statusError("gemini generate", 400, []byte("bad request")), ErrorPermanent},
		{fmt.Errorf("stream: %w", context.Canceled), ErrorCanceled},
		{fmt.Errorf("embed: %w", context.DeadlineExceeded), ErrorTransient},
		{fmt.Errorf("dial: %w", timeoutErr{}), ErrorTransient},
		{errors.New("dial tcp 10.0.0.1:443: connection refused"), ErrorTransient},
		{errors.New("provider gemini returned 1429 vectors for 1430 chunks"), ErrorPermanent},
		{errors.New("gemini returned 503 embeddings for 504 inputs"), ErrorPermanent},
	}
	for _, tc := range cases {
		if got := ClassifyError(tc.err); got != tc.want {
			t.Fatalf("classify %v: got %q want %q", tc.err, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(statusError("gemini embedding", 400, []byte("bad request"))) {
		t.Fatalf("permanent errors should not be retried")
	}
	if Retryable(context.Canceled) {
		t.Fatalf("caller cancellation should not be retried")
	}
	if !Retryable(statusError("gemini embedding", 429, nil)) {
		t.Fatalf("rate limits should be retried")
	}
}

func TestProviderHTTPErrorsAreTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"slow down"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGeminiProvider("", "test-key", srv.URL)
	_, _, err := g.Embed(context.Background(), EmbedRequest{Inputs: []string{"hello"}, Dimension: 8})
	if !errors.Is(err, util.ErrRateLimited) {
		t.Fatalf("expected rate limit sentinel, got %v", err)
	}
	if !Retryable(err) {
		t.Fatalf("429 from gemini should be retryable")
	}
}
