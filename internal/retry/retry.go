// Package retry runs upstream calls under a per-attempt timeout and retries
// transient failures a bounded number of times.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/phuslu/log"

	"cvrag/internal/domain"
)

// Policy bounds one upstream operation. MaxRetries counts retries after the
// first attempt; zero disables retrying.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	AttemptTimeout  time.Duration
}

// Do calls fn until it succeeds, fails permanently or the retry budget is
// spent. The returned error is always a *domain.UpstreamError tagged with op.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	b.MaxElapsedTime = 0
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	var last error
	attempt := func() error {
		actx, cancel := p.attemptContext(ctx)
		defer cancel()
		err := fn(actx)
		if err == nil {
			return nil
		}
		last = err
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if errors.Is(actx.Err(), context.DeadlineExceeded) || Transient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Str("op", op).Err(err).Dur("backoff", wait).Msg("retrying upstream call")
	}
	if err := backoff.RetryNotify(attempt, bo, notify); err != nil {
		if last == nil {
			last = err
		}
		return wrap(op, last)
	}
	return nil
}

func (p Policy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.AttemptTimeout)
}

func wrap(op string, err error) error {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		if ue.Op == "" {
			ue.Op = op
		}
		return ue
	}
	return &domain.UpstreamError{Op: op, Err: err, Transient: Transient(err)}
}

// Transient reports whether err is worth another attempt: timeouts,
// network failures and upstream errors already classified as transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// StatusTransient classifies an HTTP status from an upstream API.
// Authentication, quota and other client errors are permanent.
func StatusTransient(code int) bool {
	switch {
	case code == http.StatusRequestTimeout:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// Classify wraps a provider error with its HTTP status, if known.
// A zero status falls back to Transient.
func Classify(op string, status int, err error) *domain.UpstreamError {
	if status == 0 {
		return &domain.UpstreamError{Op: op, Err: err, Transient: Transient(err)}
	}
	return &domain.UpstreamError{Op: op, Err: err, Transient: StatusTransient(status)}
}

var statusTextRe = regexp.MustCompile(`\bError (\d{3})\b`)

// StatusFromText recovers an HTTP status from SDK messages of the form
// "Error 429, Message: ..., Status: RESOURCE_EXHAUSTED". It returns 0 when none is found.
func StatusFromText(err error) int {
	if err == nil {
		return 0
	}
	msg := err.Error()
	if m := statusTextRe.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "quota") {
		return http.StatusTooManyRequests
	}
	return 0
}
