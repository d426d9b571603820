package provider

import (
	"context"
	"time"

	"resume-aggregator/internal/utils"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 5 * time.Second
)

// RetryPolicy wraps every upstream call with the refresh / rotate / backoff
// state machine. The former decorator stack is a single visible loop here:
// an expired credential is refreshed before the first attempt; rate-limited
// responses rotate the credential and back off linearly; transient failures
// back off without rotating; everything else fails the call immediately.
type RetryPolicy struct {
	Creds       *Credentials
	MaxAttempts int
	Delay       time.Duration
	Logger      *zap.Logger
}

func NewRetryPolicy(creds *Credentials, maxAttempts int, delay time.Duration, logger *zap.Logger) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryPolicy{
		Creds:       creds,
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Logger:      logger,
	}
}

// Do runs the call under the policy. The call closure must build its request
// from scratch on each attempt so a rotated or refreshed bearer is picked up.
func (p *RetryPolicy) Do(ctx context.Context, endpoint string, call func(ctx context.Context) error) error {
	if p.Creds != nil && p.Creds.Expired() {
		p.Logger.Info("credential expired, refreshing", zap.String("endpoint", endpoint))
		if err := p.Creds.Refresh(ctx); err != nil {
			return err
		}
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = call(ctx)
		if err == nil {
			return nil
		}

		class := ClassOf(err)
		switch class {
		case ClassRateLimited:
			if attempt == p.MaxAttempts {
				return err
			}
			if p.Creds != nil {
				p.Creds.Rotate()
			}
		case ClassTransient:
			if attempt == p.MaxAttempts {
				return err
			}
		default:
			return err
		}

		wait := p.Delay * time.Duration(attempt)
		p.Logger.Warn("retrying upstream call",
			zap.String("endpoint", endpoint),
			zap.String("class", class.String()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
		)
		if werr := utils.WaitFor(ctx, wait); werr != nil {
			return werr
		}
	}

	return err
}
