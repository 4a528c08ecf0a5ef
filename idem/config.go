package idem

import (
	"time"

	"github.com/ceyewan/onetake/xerrors"
)

// DriverType 幂等组件驱动类型
type DriverType string

const (
	// DriverRedis 使用 Redis 作为后端
	DriverRedis DriverType = "redis"
	// DriverMemory 使用内存作为后端（仅单机）
	DriverMemory DriverType = "memory"
)

// LockMode 锁竞争时的处理方式
type LockMode string

const (
	// LockModeWeak 记录竞争后继续执行，同一键可能被并发执行
	LockModeWeak LockMode = "weak"
	// LockModeReject 直接返回 ErrAlreadyInProgress
	LockModeReject LockMode = "reject"
	// LockModeWait 轮询缓存直到结果出现、锁可用或超时
	LockModeWait LockMode = "wait"
)

// Config 幂等性组件配置
type Config struct {
	// Driver 后端类型: "redis" | "memory" (默认 "redis")
	Driver DriverType `mapstructure:"driver"`

	// Namespace 所有键的前缀，默认为空
	// 例如 "myapp:" 将使用 "myapp:idempotency:{key}" 与 "myapp:lock:{key}"
	Namespace string `mapstructure:"namespace"`

	// CacheTTL 成功结果的缓存有效期，默认 3600s
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// LockTTL 锁的有效期，默认 30s
	// 锁不会主动释放，只能等待过期
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// LockMode 锁竞争处理方式，默认 weak
	LockMode LockMode `mapstructure:"lock_mode"`

	// WaitTimeout wait 模式下的最长等待时间，默认 0（受 ctx 与锁过期约束）
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`

	// WaitInterval wait 模式下的轮询间隔，默认 50ms
	WaitInterval time.Duration `mapstructure:"wait_interval"`

	// Breaker 存储访问熔断配置
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig 存储熔断配置，默认关闭
type BreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// MaxRequests 半开状态允许通过的请求数，默认 1
	MaxRequests uint32 `mapstructure:"max_requests"`

	// Interval 闭合状态下清空计数的周期，默认 0（不清空）
	Interval time.Duration `mapstructure:"interval"`

	// Timeout 打开状态持续时间，默认 30s
	Timeout time.Duration `mapstructure:"timeout"`

	// FailureRatio 触发熔断的失败率，默认 0.6
	FailureRatio float64 `mapstructure:"failure_ratio"`

	// MinimumRequests 计算失败率前的最少请求数，默认 10
	MinimumRequests uint32 `mapstructure:"minimum_requests"`
}

func (c *Config) setDefaults() {
	if c == nil {
		return
	}
	if c.Driver == "" {
		c.Driver = DriverRedis
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 3600 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.LockMode == "" {
		c.LockMode = LockModeWeak
	}
	if c.WaitInterval <= 0 {
		c.WaitInterval = 50 * time.Millisecond
	}

	b := &c.Breaker
	if b.MaxRequests == 0 {
		b.MaxRequests = 1
	}
	if b.Timeout <= 0 {
		b.Timeout = 30 * time.Second
	}
	if b.FailureRatio <= 0 {
		b.FailureRatio = 0.6
	}
	if b.MinimumRequests == 0 {
		b.MinimumRequests = 10
	}
}

func (c *Config) validate() error {
	if c == nil {
		return ErrConfigNil
	}
	switch c.Driver {
	case DriverRedis, DriverMemory:
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "idem: unsupported driver: %s", c.Driver)
	}
	switch c.LockMode {
	case LockModeWeak, LockModeReject, LockModeWait:
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "idem: unsupported lock mode: %s", c.LockMode)
	}
	if c.WaitTimeout < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "idem: wait timeout must not be negative")
	}
	if c.Breaker.FailureRatio > 1 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "idem: breaker failure ratio must be within (0, 1]")
	}
	return nil
}
