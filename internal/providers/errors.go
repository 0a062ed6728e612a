package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"docchat/internal/util"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
	ErrorCanceled  ErrorType = "canceled"
)

// statusError turns a failed provider HTTP response into an error wrapping the
// matching util sentinel.
func statusError(op string, code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return fmt.Errorf("%s error %d: %s: %w", op, code, msg, statusSentinel(code, msg))
}

func statusSentinel(code int, body string) error {
	low := strings.ToLower(body)
	switch {
	case code == http.StatusPaymentRequired:
		return util.ErrQuotaExhausted
	case code == http.StatusTooManyRequests:
		if strings.Contains(low, "quota") || strings.Contains(low, "billing") {
			return util.ErrQuotaExhausted
		}
		return util.ErrRateLimited
	case code == http.StatusRequestTimeout || code >= 500:
		return util.ErrTransient
	case code == http.StatusRequestEntityTooLarge,
		code == http.StatusBadRequest && (strings.Contains(low, "context length") ||
			strings.Contains(low, "too long") || strings.Contains(low, "maximum context")):
		return util.ErrContextTooLong
	default:
		return util.ErrPermanent
	}
}

// ClassifyError buckets a provider failure for audit rows and retry decisions.
// Wrapped sentinels and typed errors decide first; the message is only
// consulted for errors that carry neither.
func ClassifyError(err error) ErrorType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrorCanceled
	case errors.Is(err, util.ErrQuotaExhausted):
		return ErrorQuota
	case errors.Is(err, util.ErrRateLimited):
		return ErrorRate
	case errors.Is(err, util.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return ErrorTransient
	case errors.Is(err, util.ErrContextTooLong):
		return ErrorContext
	case errors.Is(err, util.ErrPermanent):
		return ErrorPermanent
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTransient
	}

	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "rate limit"), strings.Contains(e, "too many requests"):
		return ErrorRate
	case strings.Contains(e, "connection refused"), strings.Contains(e, "connection reset"),
		strings.Contains(e, "unexpected eof"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// Retryable reports whether a background job should try the call again later.
func Retryable(err error) bool {
	switch ClassifyError(err) {
	case ErrorRate, ErrorTransient:
		return true
	default:
		return false
	}
}
