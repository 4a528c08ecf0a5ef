// Package idem 提供请求级幂等协调器，确保同一幂等键对应的业务逻辑最多成功执行一次。
//
// 协调器的全部状态都保存在外部存储（Redis / Memory）中：
//   - 缓存条目 "<namespace>idempotency:<key>"：哈希，字段 status 与 data，有效期 CacheTTL
//   - 锁 "<namespace>lock:<key>"：SET NX EX 写入的随机令牌，有效期 LockTTL，从不主动释放
//
// 成功且已持久化的结果会被缓存，之后相同幂等键的请求直接返回缓存，不再执行业务逻辑。
// 业务失败、未持久化或 panic 时返回 LockError，不写缓存，锁保留到过期。
//
// ## 基本使用
//
//	coord, _ := idem.New(&idem.Config{
//	    Driver:   idem.DriverRedis,
//	    LockMode: idem.LockModeWait,
//	}, idem.WithRedisConnector(redisConn), idem.WithLogger(logger))
//
//	res, err := coord.Perform(ctx, key, func(ctx context.Context) (idem.WorkResult, error) {
//	    order, err := createOrder(ctx)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return idem.Outcome{Persisted: true, Payload: order}, nil
//	})
//
// ## Gin 中间件
//
//	r := gin.Default()
//	r.POST("/orders", coord.GinMiddleware(idem.WithRequireKey()), createOrderHandler)
//
// ## gRPC 拦截器
//
//	s := grpc.NewServer(
//	    grpc.UnaryInterceptor(coord.UnaryServerInterceptor()),
//	)
package idem

import (
	"context"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/ceyewan/onetake/clog"
	"github.com/ceyewan/onetake/metrics"
	"github.com/ceyewan/onetake/xerrors"
)

// Idempotency 幂等协调器核心接口
//
// 支持三种使用方式：
// 1. Perform: 手动调用，适合业务层直接使用
// 2. GinMiddleware: Gin 框架中间件，自动处理 HTTP 请求幂等性
// 3. UnaryServerInterceptor: gRPC 一元拦截器，处理单次 RPC 调用幂等性
type Idempotency interface {
	// Perform 执行幂等操作
	//
	// key 为空时返回 ErrMissingKey 且不访问存储。
	// 缓存命中时直接返回缓存结果，work 不会被调用。
	// 其余失败均以 LockError 返回，消息为 "Failed to lock : <原因>"。
	Perform(ctx context.Context, key string, work Work) (*Result, error)

	// GinMiddleware 返回 Gin 中间件
	GinMiddleware(opts ...MiddlewareOption) gin.HandlerFunc

	// UnaryServerInterceptor 返回 gRPC 一元拦截器
	UnaryServerInterceptor(opts ...InterceptorOption) grpc.UnaryServerInterceptor
}

// New 创建幂等协调器
//
// 配置在创建时被复制，之后对 cfg 的修改不会生效。
func New(cfg *Config, opts ...Option) (Idempotency, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	conf := *cfg
	conf.setDefaults()
	if err := conf.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Discard()
	}
	if opt.meter == nil {
		opt.meter = metrics.Discard()
	}
	logger := opt.logger.With(clog.String("component", "idem"))

	store := opt.store
	if store == nil {
		switch conf.Driver {
		case DriverRedis:
			if opt.redisConn == nil {
				return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "idem: redis connector is required for redis driver")
			}
			store = newRedisStore(opt.redisConn)
		case DriverMemory:
			store = newMemoryStore()
		}
	}
	if conf.Breaker.Enabled {
		store = newBreakerStore(store, conf.Breaker, logger)
	}

	m, err := newIdemMetrics(opt.meter)
	if err != nil {
		return nil, xerrors.Wrap(err, "idem: create metrics")
	}

	logger.Info("idem coordinator created",
		clog.String("driver", string(conf.Driver)),
		clog.String("lock_mode", string(conf.LockMode)),
		clog.Duration("cache_ttl", conf.CacheTTL),
		clog.Duration("lock_ttl", conf.LockTTL),
		clog.Bool("breaker", conf.Breaker.Enabled))

	return newCoordinator(&conf, store, logger, m), nil
}
