package connector

import (
	"fmt"
	"strings"
	"time"
)

// RedisConfig Redis连接配置
//
// URL 与 Addr 二选一，URL 优先，格式如 "redis://:password@localhost:6379/0"。
// 连接池参数始终以本结构体为准，覆盖 URL 中的同名查询参数。
type RedisConfig struct {
	Name string `mapstructure:"name"` // 连接器名称 (默认: "default")

	// 核心配置
	URL      string `mapstructure:"url"`      // 连接 URL
	Addr     string `mapstructure:"addr"`     // 连接地址，如 "127.0.0.1:6379"
	Password string `mapstructure:"password"` // [可选] 认证密码
	DB       int    `mapstructure:"db"`       // [可选] 数据库编号 (默认: 0)

	// 连接池配置
	PoolSize     int           `mapstructure:"pool_size"`      // 连接池大小 (默认: 10)
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`   // 获取连接的最长等待 (默认: 5s)
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 最小空闲连接数 (默认: 0)
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // 建连超时 (默认: 5s)
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // 读取超时 (默认: 3s)
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // 写入超时 (默认: 3s)

	EnableTracing bool `mapstructure:"enable_tracing"` // 是否接入 redisotel 链路追踪
}

// setDefaults 设置默认值
func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.PoolTimeout <= 0 {
		c.PoolTimeout = 5 * time.Second
	}
	if c.MinIdleConns < 0 {
		c.MinIdleConns = 0
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	c.setDefaults()
	if c.URL == "" && c.Addr == "" {
		return fmt.Errorf("Redis地址不能为空")
	}
	if c.DB < 0 {
		return fmt.Errorf("数据库编号不能小于0")
	}
	return nil
}

// SQLiteConfig SQLite连接配置
type SQLiteConfig struct {
	Name string `mapstructure:"name"` // 连接器名称 (默认: "default")
	Path string `mapstructure:"path"` // 数据库文件路径，":memory:" 表示内存库 (默认: ":memory:")

	MaxOpenConns  int           `mapstructure:"max_open_conns"` // 最大打开连接数 (默认: 1)
	BusyTimeout   time.Duration `mapstructure:"busy_timeout"`   // 文件库写锁等待时间 (默认: 5s)
	SlowThreshold time.Duration `mapstructure:"slow_threshold"` // 慢查询阈值，超过后以 Warn 记录 (默认: 200ms)
	EnableTracing bool          `mapstructure:"enable_tracing"` // 是否接入 otelgorm 链路追踪
}

func (c *SQLiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Path == "" {
		c.Path = ":memory:"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 1
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
}

func (c *SQLiteConfig) validate() error {
	c.setDefaults()
	if c.MaxOpenConns > 1 && c.Path == ":memory:" {
		// 每个连接都会得到独立的内存库
		return fmt.Errorf("内存库只能使用单个连接")
	}
	return nil
}

// dsn 为文件库附加 busy_timeout 参数，内存库原样返回
func (c *SQLiteConfig) dsn() string {
	if c.Path == ":memory:" {
		return c.Path
	}
	sep := "?"
	if strings.Contains(c.Path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d", c.Path, sep, c.BusyTimeout.Milliseconds())
}
