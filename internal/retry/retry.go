// Package retry 外部服务调用的有限次数指数退避重试
package retry

import (
	"context"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	eb.MaxElapsedTime = 0
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// Permanent 标记不应重试的错误
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do 执行 fn，失败时按策略重试；最终失败返回 *models.ExternalServiceError
func Do(ctx context.Context, p Policy, service string, log zerolog.Logger, fn func(ctx context.Context) error) error {
	attempts := 0
	op := func() error {
		attempts++
		return fn(ctx)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("service", service).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("external call failed, retrying")
	}

	if err := backoff.RetryNotify(op, p.backOff(ctx), notify); err != nil {
		return &models.ExternalServiceError{Service: service, Attempts: attempts, Err: err}
	}
	return nil
}
