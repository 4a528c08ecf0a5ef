package idem

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/onetake/clog"
	"github.com/ceyewan/onetake/xerrors"
)

// breakerStore 为 Store 的每次访问加上熔断保护
//
// 熔断打开时直接返回 ErrUnavailable，不再访问后端。
type breakerStore struct {
	next   Store
	cb     *gobreaker.CircuitBreaker[any]
	logger clog.Logger
}

func newBreakerStore(next Store, cfg BreakerConfig, logger clog.Logger) *breakerStore {
	bs := &breakerStore{next: next, logger: logger}
	bs.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "idem-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			bs.logger.Warn("store circuit breaker state changed",
				clog.String("breaker", name),
				clog.String("from", from.String()),
				clog.String("to", to.String()))
		},
	})
	return bs
}

func (bs *breakerStore) execute(fn func() (any, error)) (any, error) {
	v, err := bs.cb.Execute(fn)
	if err != nil && (xerrors.Is(err, gobreaker.ErrOpenState) || xerrors.Is(err, gobreaker.ErrTooManyRequests)) {
		return nil, xerrors.Wrap(xerrors.ErrUnavailable, "idem store: "+err.Error())
	}
	return v, err
}

func (bs *breakerStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	v, err := bs.execute(func() (any, error) {
		return bs.next.SetIfAbsent(ctx, key, value, ttl)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (bs *breakerStore) ReadHash(ctx context.Context, key string) (map[string]string, error) {
	v, err := bs.execute(func() (any, error) {
		return bs.next.ReadHash(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

func (bs *breakerStore) WriteHashField(ctx context.Context, key, field, value string) error {
	_, err := bs.execute(func() (any, error) {
		return nil, bs.next.WriteHashField(ctx, key, field, value)
	})
	return err
}

func (bs *breakerStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	_, err := bs.execute(func() (any, error) {
		return nil, bs.next.SetExpiry(ctx, key, ttl)
	})
	return err
}
