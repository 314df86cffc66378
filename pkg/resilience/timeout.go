package resilience

import (
	"context"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
)

// WithTimeout runs fn under a context cancelled after timeout. If the limit
// passes first it returns an ErrTimeout application error without waiting
// for fn; a cancelled parent context is returned as is.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable,
			"%s did not finish within %v", name, timeout)
	}
}
