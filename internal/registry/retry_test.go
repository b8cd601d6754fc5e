package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"vsxreg/internal/errs"
)

func TestService_retry(t *testing.T) {
	transient := errors.New("connection reset")

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   bool
	}{
		{"succeeds first time", nil, 1, false},
		{"succeeds after transient failures", []error{transient, transient}, 3, false},
		{"gives up after max attempts", []error{transient, transient, transient, transient}, 3, true},
		{"stops on permanent failure", []error{errs.NotFoundf("gone")}, 1, true},
		{"stops on integrity failure", []error{errs.Wrap(transient, errs.CategoryIntegrityFailure, false)}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(Dependencies{Options: Options{RetryAttempts: 3, RetryBaseDelay: time.Microsecond}})
			calls := 0
			err := s.retry(context.Background(), "test", func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("retry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestService_retry_ContextCancelled(t *testing.T) {
	s := NewService(Dependencies{Options: Options{RetryAttempts: 3, RetryBaseDelay: time.Hour}})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := s.retry(ctx, "test", func() error {
		calls++
		cancel()
		return errors.New("unavailable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("plain"), false},
		{errs.Unavailable(errors.New("down")), false},
		{errs.InvalidInputf("bad"), true},
		{errs.NotFoundf("missing"), true},
		{errs.Wrap(errors.New("key"), errs.CategorySigningFailure, false), true},
	}
	for _, tt := range tests {
		if got := isPermanent(tt.err); got != tt.want {
			t.Errorf("isPermanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
