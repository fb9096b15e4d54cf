package repository

import (
	"context"
	"math/rand/v2"
	"time"

	"templeadmin/pkg/apperr"

	"go.uber.org/zap"
)

// RetryPolicy bounds how often a transient storage failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when a zero policy is passed.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

// backoff returns the jittered delay before the given retry (1-based).
func (p RetryPolicy) backoff(retry int) time.Duration {
	d := p.BaseDelay << (retry - 1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return time.Duration(half + rand.Int64N(half+1))
}

type retryingTxManager struct {
	inner  TransactionManager
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryingTxManager wraps inner so that a transaction failing with a
// transient storage error is re-run from the start, up to policy.MaxAttempts.
func NewRetryingTxManager(inner TransactionManager, policy RetryPolicy, logger *zap.Logger) TransactionManager {
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return &retryingTxManager{inner: inner, policy: policy, logger: logger, sleep: sleepCtx}
}

func (m *retryingTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		err = m.inner.RunInTx(ctx, fn)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == m.policy.MaxAttempts {
			break
		}
		m.logger.Warn("transient storage failure, retrying transaction",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.policy.MaxAttempts),
			zap.Error(err),
		)
		if sleepErr := m.sleep(ctx, m.policy.backoff(attempt)); sleepErr != nil {
			return apperr.Transient("storage temporarily unavailable", sleepErr)
		}
	}
	m.logger.Error("transient storage failure, retries exhausted",
		zap.Int("attempts", m.policy.MaxAttempts),
		zap.Error(err),
	)
	return apperr.Transient("storage temporarily unavailable", err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
