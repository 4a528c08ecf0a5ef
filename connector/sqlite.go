package connector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/onetake/clog"
	"github.com/ceyewan/onetake/xerrors"
)

// sqliteConnector SQLite 连接器实现
//
// 与 Redis 不同，关闭后可以再次 Connect，便于测试中复用同一配置。
type sqliteConnector struct {
	cfg     *SQLiteConfig
	logger  clog.Logger
	healthy atomic.Bool

	mu sync.RWMutex
	db *gorm.DB
}

// NewSQLite 创建 SQLite 连接器，实际连接在 Connect() 时建立
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (SQLiteConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "sqlite config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "invalid sqlite config: %v", err)
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	return &sqliteConnector{
		cfg:    cfg,
		logger: opt.logger.With(clog.String("connector", "sqlite"), clog.String("name", cfg.Name)),
	}, nil
}

func (c *sqliteConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	db, err := c.open(ctx)
	if err != nil {
		c.logger.Error("failed to connect to sqlite", clog.String("path", c.cfg.Path), clog.Error(err))
		return err
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("connected to sqlite",
		clog.String("path", c.cfg.Path),
		clog.Int("max_open_conns", c.cfg.MaxOpenConns),
		clog.Bool("tracing", c.cfg.EnableTracing))
	return nil
}

// open 打开数据库并完成连接池、链路追踪与连通性检查
func (c *sqliteConnector) open(ctx context.Context) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(c.cfg.dsn()), &gorm.Config{
		Logger: newGormLogger(c.logger, c.cfg),
	})
	if err != nil {
		return nil, xerrors.Wrapf(ErrConnection, "sqlite connector[%s]: %v", c.cfg.Name, err)
	}

	if c.cfg.EnableTracing {
		if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(c.cfg.Name))); err != nil {
			return nil, xerrors.Wrapf(err, "sqlite connector[%s]: instrument tracing", c.cfg.Name)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, xerrors.Wrapf(ErrConnection, "sqlite connector[%s]: %v", c.cfg.Name, err)
	}
	sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConns)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, xerrors.Wrapf(ErrConnection, "sqlite connector[%s]: ping failed: %v", c.cfg.Name, err)
	}
	return db, nil
}

func (c *sqliteConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.db = nil
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("failed to close sqlite", clog.Error(err))
		return err
	}
	c.logger.Info("sqlite connection closed")
	return nil
}

func (c *sqliteConnector) HealthCheck(ctx context.Context) error {
	db := c.GetClient()
	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "sqlite connector[%s]", c.cfg.Name)
	}

	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("sqlite health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "sqlite connector[%s]: %v", c.cfg.Name, err)
	}

	c.healthy.Store(true)
	return nil
}

func (c *sqliteConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *sqliteConnector) Name() string {
	return c.cfg.Name
}

// GetClient 返回 GORM 客户端，未连接时为 nil
func (c *sqliteConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// gormLogWriter 将 GORM 日志转发到 clog，GORM 只输出错误与慢查询
type gormLogWriter struct {
	logger clog.Logger
}

func (w gormLogWriter) Printf(format string, args ...any) {
	w.logger.Warn(fmt.Sprintf(format, args...))
}

// newGormLogger 忽略 RecordNotFound，超过 SlowThreshold 的查询视为慢查询
func newGormLogger(logger clog.Logger, cfg *SQLiteConfig) gormlogger.Interface {
	return gormlogger.New(gormLogWriter{logger: logger.WithNamespace("gorm")}, gormlogger.Config{
		SlowThreshold:             cfg.SlowThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
