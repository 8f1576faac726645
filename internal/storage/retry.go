package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/memohai/assetd/internal/errs"
)

// DefaultRetryInterval is the pause between write attempts.
const DefaultRetryInterval = 200 * time.Millisecond

// RetryingProvider retries writes against a delegate a bounded number of
// times. Reads and deletes pass through untouched.
type RetryingProvider struct {
	delegate     Provider
	attempts     int
	buildBackoff func() backoff.BackOff
	logger       *slog.Logger
}

// NewRetryingProvider allows at most attempts writes per call. A nil factory
// waits DefaultRetryInterval between attempts.
func NewRetryingProvider(log *slog.Logger, delegate Provider, attempts int, factory func() backoff.BackOff) *RetryingProvider {
	if attempts < 1 {
		attempts = 1
	}
	if factory == nil {
		factory = func() backoff.BackOff {
			return backoff.NewConstantBackOff(DefaultRetryInterval)
		}
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryingProvider{
		delegate:     delegate,
		attempts:     attempts,
		buildBackoff: factory,
		logger:       log.With(slog.String("component", "storage_retry"), slog.String("provider", string(delegate.Tag()))),
	}
}

func (r *RetryingProvider) Tag() ProviderTag {
	return r.delegate.Tag()
}

// Upload stops at the first successful attempt.
func (r *RetryingProvider) Upload(ctx context.Context, data []byte) (string, error) {
	var path string
	err := r.retry(ctx, "upload", func() error {
		p, err := r.delegate.Upload(ctx, data)
		if err != nil {
			return err
		}
		path = p
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (r *RetryingProvider) Replace(ctx context.Context, path string, data []byte) error {
	return r.retry(ctx, "replace", func() error {
		return r.delegate.Replace(ctx, path, data)
	})
}

func (r *RetryingProvider) Download(ctx context.Context, path string) ([]byte, error) {
	return r.delegate.Download(ctx, path)
}

func (r *RetryingProvider) Delete(ctx context.Context, path string) error {
	return r.delegate.Delete(ctx, path)
}

func (r *RetryingProvider) retry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		r.logger.Warn("storage write failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.attempts),
			slog.Any("error", err),
		)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(r.buildBackoff(), uint64(r.attempts-1)), ctx)
	err := backoff.Retry(operation, b)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrPathOutsideRoot) || errors.Is(err, ErrObjectNotFound) {
		return errs.Internalf(err, "storage %s rejected", op)
	}
	return errs.StorageUnavailable("cannot upload to storage provider", err)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrPathOutsideRoot) ||
		errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

var _ Provider = (*RetryingProvider)(nil)
