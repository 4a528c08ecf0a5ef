package config

import (
	"strings"

	"github.com/ceyewan/onetake/clog"
)

// Option 配置选项模式
type Option func(*options)

type options struct {
	name       string
	paths      []string
	fileType   string
	envPrefix  string
	defaults   map[string]any
	envAliases map[string]string
	logger     clog.Logger
}

func defaultOptions() *options {
	return &options{
		name:       "config",
		paths:      []string{".", "./config"},
		fileType:   "yaml",
		envPrefix:  "ONETAKE",
		defaults:   map[string]any{},
		envAliases: map[string]string{},
		logger:     clog.Discard(),
	}
}

// WithConfigName 设置配置文件名称（不带扩展名）
func WithConfigName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithConfigPaths 设置配置文件搜索路径（覆盖默认值）
func WithConfigPaths(paths ...string) Option {
	return func(o *options) {
		o.paths = paths
	}
}

// WithConfigType 设置配置文件类型 (yaml, json, etc.)
func WithConfigType(typ string) Option {
	return func(o *options) {
		o.fileType = typ
	}
}

// WithEnvPrefix 设置环境变量前缀，如 ONETAKE_REDIS_URL 对应 redis.url
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = strings.ToUpper(prefix)
	}
}

// WithDefaults 设置默认值，key 使用点号分隔的路径
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) {
		for k, v := range defaults {
			o.defaults[k] = v
		}
	}
}

// WithEnvAliases 为配置 key 绑定额外的环境变量名（不加前缀）
//
// 带前缀的变量优先，其次才读取别名。
func WithEnvAliases(aliases map[string]string) Option {
	return func(o *options) {
		for k, env := range aliases {
			o.envAliases[k] = env
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// New 创建配置加载器，不会立即读取任何来源
func New(opts ...Option) Loader {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newLoader(o)
}

