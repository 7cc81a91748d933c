package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// retryBaseDelay is the first back-off interval; it doubles on each attempt.
var retryBaseDelay = time.Second

type rateLimitError struct{}

func (e *rateLimitError) Error() string { return "rate limited" }

type serverError struct {
	statusCode int
	body       string
}

func (e *serverError) Error() string {
	return "server error: " + e.body
}

type authError struct {
	message string
}

func (e *authError) Error() string {
	return "authentication error: " + e.message
}

// IsAuthError checks if an error is, or wraps, an authentication error.
func IsAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}

func isRetryable(err error) bool {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var se *serverError
	return errors.As(err, &se)
}

func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := retryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

type limited struct {
	Generator
	limiter *rate.Limiter
}

// Limit wraps g so that at most requestsPerMinute calls start per minute.
// A non-positive value returns g unchanged.
func Limit(g Generator, requestsPerMinute int) Generator {
	if requestsPerMinute <= 0 {
		return g
	}
	every := time.Minute / time.Duration(requestsPerMinute)
	return &limited{
		Generator: g,
		limiter:   rate.NewLimiter(rate.Every(every), 1),
	}
}

func (l *limited) Generate(ctx context.Context, req Request) (Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return l.Generator.Generate(ctx, req)
}
