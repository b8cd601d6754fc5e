package registry

import (
	"context"
	"fmt"
	"time"

	"vsxreg/internal/errs"
)

// isPermanent reports whether err will fail the same way on every attempt.
func isPermanent(err error) bool {
	switch errs.CategoryOf(err) {
	case errs.CategoryInvalidInput, errs.CategoryNotFound, errs.CategorySigningFailure, errs.CategoryIntegrityFailure:
		return true
	}
	return false
}

// retry runs fn until it succeeds, fails permanently or runs out of
// attempts, doubling the delay between attempts.
func (s *Service) retry(ctx context.Context, what string, fn func() error) error {
	delay := s.opts.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanent(err) || attempt == s.opts.RetryAttempts {
			break
		}
		s.logger.Warn("retrying", "operation", what, "attempt", attempt, "error", err)
		timer := time.NewTimer(delay << (attempt - 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w", what, lastErr)
}
