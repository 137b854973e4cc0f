package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/boswell-ai/boswell/internal/storage"
)

// Provider-specific error kinds. The shared kinds (the retryable Unavailable
// and Timeout, and the non-retryable Unsupported) come from the storage
// taxonomy so callers classify uniformly with errors.Is.
var (
	// ErrRejected marks a request the provider refused (content policy,
	// quota, auth). Non-retryable.
	ErrRejected = errors.New("provider rejected request")

	// ErrMalformed marks a provider response the adapter could not parse.
	ErrMalformed = errors.New("malformed provider response")
)

// mapTransportError classifies an HTTP transport failure.
func mapTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", storage.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", storage.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}

// mapStatusError classifies a non-2xx provider status code.
func mapStatusError(status int, body string) error {
	switch {
	case status == 429 || status >= 500:
		return fmt.Errorf("%w: provider status %d: %s", storage.ErrUnavailable, status, body)
	case status == 400 || status == 401 || status == 403 || status == 422:
		return fmt.Errorf("%w: provider status %d: %s", ErrRejected, status, body)
	case status == 404 || status == 501:
		return fmt.Errorf("%w: provider status %d: %s", storage.ErrUnsupported, status, body)
	default:
		return fmt.Errorf("%w: provider status %d: %s", storage.ErrUnavailable, status, body)
	}
}
