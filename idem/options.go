package idem

import (
	"github.com/ceyewan/onetake/clog"
	"github.com/ceyewan/onetake/connector"
	"github.com/ceyewan/onetake/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// MiddlewareOption Gin 中间件选项函数
type MiddlewareOption func(*middlewareOptions)

// InterceptorOption gRPC 拦截器选项函数
type InterceptorOption func(*interceptorOptions)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	redisConn connector.RedisConnector
	store     Store
}

// middlewareOptions Gin 中间件选项配置（内部使用，小写）
type middlewareOptions struct {
	headerKey  string // 幂等键的 HTTP 头名称，默认 "X-Idempotency-Key"
	requireKey bool   // 缺少幂等键时是否拒绝请求
}

// interceptorOptions gRPC 拦截器选项配置（内部使用，小写）
type interceptorOptions struct {
	metadataKey string // 幂等键的 gRPC metadata 键名，默认 "x-idempotency-key"
	requireKey  bool
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter 设置指标 Meter，默认不采集
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithRedisConnector 注入 Redis 连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.redisConn = conn
		}
	}
}

// WithStore 注入自定义 Store，优先于 Driver 配置
func WithStore(store Store) Option {
	return func(o *options) {
		if store != nil {
			o.store = store
		}
	}
}

// WithHeaderKey 设置 Gin 中间件的幂等键 HTTP 头名称
// 默认为 "X-Idempotency-Key"
func WithHeaderKey(headerKey string) MiddlewareOption {
	return func(o *middlewareOptions) {
		if headerKey != "" {
			o.headerKey = headerKey
		}
	}
}

// WithRequireKey 缺少幂等键时以 500 拒绝请求，默认直接放行
func WithRequireKey() MiddlewareOption {
	return func(o *middlewareOptions) {
		o.requireKey = true
	}
}

// WithMetadataKey 设置 gRPC 拦截器的幂等键 metadata 键名
// 默认为 "x-idempotency-key"
func WithMetadataKey(metadataKey string) InterceptorOption {
	return func(o *interceptorOptions) {
		if metadataKey != "" {
			o.metadataKey = metadataKey
		}
	}
}

// WithRequireMetadataKey 缺少幂等键时返回 InvalidArgument
func WithRequireMetadataKey() InterceptorOption {
	return func(o *interceptorOptions) {
		o.requireKey = true
	}
}
