package idem

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ceyewan/onetake/clog"
	"github.com/ceyewan/onetake/trace"
	"github.com/ceyewan/onetake/xerrors"
)

// coordinator 幂等协调器实现（非导出）
//
// 协调器在调用之间不持有任何状态，缓存与锁全部位于 Store 中，
// 因此可以被多个 goroutine 与多个进程共享。
type coordinator struct {
	cfg     *Config
	store   Store
	locker  *Locker
	logger  clog.Logger
	metrics *idemMetrics
	tracer  oteltrace.Tracer
}

func newCoordinator(cfg *Config, store Store, logger clog.Logger, m *idemMetrics) *coordinator {
	return &coordinator{
		cfg:     cfg,
		store:   store,
		locker:  NewLocker(store, cfg.Namespace, cfg.LockTTL),
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer(trace.InstrumentationName),
	}
}

// Perform 以 key 为幂等键执行 work
func (c *coordinator) Perform(ctx context.Context, key string, work Work) (*Result, error) {
	if key == "" {
		c.metrics.observePerform(ctx, outcomeMissingKey)
		return nil, ErrMissingKey
	}

	ctx, span := c.tracer.Start(ctx, trace.SpanNameIdemPerform,
		oteltrace.WithAttributes(
			attribute.String(trace.AttrIdemKey, key),
			attribute.String(trace.AttrIdemLockMode, string(c.cfg.LockMode)),
		))
	defer span.End()

	res, outcome, err := c.perform(ctx, key, work)

	c.metrics.observePerform(ctx, outcome)
	span.SetAttributes(attribute.String(trace.AttrIdemOutcome, outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (c *coordinator) perform(ctx context.Context, key string, work Work) (*Result, string, error) {
	// 1. 缓存优先，命中时不访问锁。读缓存发生在加锁之前，错误原样返回
	res, err := c.lookup(ctx, key)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to read cached result", clog.String("key", key), clog.Error(err))
		return nil, outcomeStoreError, err
	}
	if res != nil {
		c.logger.DebugContext(ctx, "idem cache hit", clog.String("key", key))
		return res, outcomeCached, nil
	}

	// 2. 尝试加锁，锁不会被释放
	lock, err := c.locker.TryAcquire(ctx, key)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to acquire lock", clog.String("key", key), clog.Error(err))
		return nil, outcomeStoreError, newLockError(err)
	}

	if !lock.Acquired {
		c.metrics.observeContention(ctx, c.cfg.LockMode)

		switch c.cfg.LockMode {
		case LockModeReject:
			c.logger.InfoContext(ctx, "request already in progress", clog.String("key", key))
			return nil, outcomeInProgress, newLockError(ErrAlreadyInProgress)

		case LockModeWait:
			res, err := c.wait(ctx, key)
			if err != nil {
				outcome := outcomeStoreError
				if xerrors.Is(err, ErrWaitTimeout) {
					outcome = outcomeWaitTimeout
				}
				c.logger.WarnContext(ctx, "wait for in-flight request failed", clog.String("key", key), clog.Error(err))
				return nil, outcome, newLockError(err)
			}
			if res != nil {
				return res, outcomeCached, nil
			}

		default:
			c.logger.WarnContext(ctx, "lock contention, proceeding without lock", clog.String("key", key))
		}
	}

	// 3. 执行业务逻辑并记录结果
	return c.execute(ctx, key, work)
}

// lookup 读取缓存条目，status 字段存在才视为完整条目
func (c *coordinator) lookup(ctx context.Context, key string) (*Result, error) {
	fields, err := c.store.ReadHash(ctx, cacheKey(c.cfg.Namespace, key))
	if err != nil {
		return nil, err
	}
	status, ok := fields[fieldStatus]
	if !ok {
		return nil, nil
	}
	return &Result{Status: status, Data: fields[fieldData]}, nil
}

// wait 轮询缓存直到结果出现或锁可用
//
// 返回 (nil, nil) 表示已获得锁，调用方应继续执行。
func (c *coordinator) wait(ctx context.Context, key string) (*Result, error) {
	waitCtx := ctx
	if c.cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.WaitTimeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(c.cfg.WaitInterval), 1)
	// 首个令牌用于加锁失败后的第一次轮询，使其也间隔 WaitInterval
	limiter.Allow()

	for {
		// Wait 失败只可能源于 ctx 结束或剩余时间不足一个间隔
		if err := limiter.Wait(waitCtx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, ErrWaitTimeout
		}

		res, err := c.lookup(waitCtx, key)
		if err != nil {
			return nil, waitError(ctx, waitCtx, err)
		}
		if res != nil {
			c.logger.DebugContext(ctx, "in-flight request completed", clog.String("key", key))
			return res, nil
		}

		lock, err := c.locker.TryAcquire(waitCtx, key)
		if err != nil {
			return nil, waitError(ctx, waitCtx, err)
		}
		if lock.Acquired {
			c.logger.InfoContext(ctx, "lock expired, taking over", clog.String("key", key))
			return nil, nil
		}
	}
}

// waitError 区分调用方取消、等待超时与存储错误
func waitError(ctx, waitCtx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitCtx.Err() != nil {
		return ErrWaitTimeout
	}
	return err
}

func (c *coordinator) execute(ctx context.Context, key string, work Work) (*Result, string, error) {
	start := time.Now()
	result, err := c.invoke(ctx, work)
	c.metrics.observeWork(ctx, time.Since(start))

	if err != nil {
		c.logger.ErrorContext(ctx, "work failed", clog.String("key", key), clog.Error(err))
		return nil, outcomeWorkError, newLockError(err)
	}
	if result == nil || !result.IsPersisted() {
		c.logger.WarnContext(ctx, "work result not persisted", clog.String("key", key))
		return nil, outcomeNotPersisted, newLockError(ErrSaveFailure)
	}

	data, err := result.Serialize()
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to serialize result", clog.String("key", key), clog.Error(err))
		return nil, outcomeRecordError, newLockError(xerrors.Wrap(err, "serialize result"))
	}
	if err := c.record(ctx, key, data); err != nil {
		c.logger.ErrorContext(ctx, "failed to record result", clog.String("key", key), clog.Error(err))
		return nil, outcomeRecordError, newLockError(err)
	}

	c.logger.InfoContext(ctx, "work completed and recorded", clog.String("key", key))
	return &Result{Status: StatusSuccess, Data: data}, outcomeExecuted, nil
}

// invoke 执行业务逻辑，panic 被转换为错误
func (c *coordinator) invoke(ctx context.Context, work Work) (result WorkResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = panicError(r)
		}
	}()
	return work(ctx)
}

// record 写入缓存条目
//
// 先写 data 并设置过期，最后写 status。lookup 只认 status，
// 因此中途失败留下的残缺条目既不会被读到，也会随 TTL 过期。
func (c *coordinator) record(ctx context.Context, key, data string) error {
	ck := cacheKey(c.cfg.Namespace, key)
	if err := c.store.WriteHashField(ctx, ck, fieldData, data); err != nil {
		return err
	}
	if err := c.store.SetExpiry(ctx, ck, c.cfg.CacheTTL); err != nil {
		return err
	}
	return c.store.WriteHashField(ctx, ck, fieldStatus, StatusSuccess)
}
