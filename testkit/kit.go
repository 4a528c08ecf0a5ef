// Package testkit 提供测试共用的依赖构造：日志、指标、Redis（miniredis）与 SQLite。
package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/onetake/clog"
	"github.com/ceyewan/onetake/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回一个包含默认依赖的测试工具包，Meter 在测试结束时关闭
func NewKit(t *testing.T) *Kit {
	t.Helper()
	meter := NewMeter(t)
	return &Kit{
		Ctx:    context.Background(),
		Logger: NewLogger(),
		Meter:  meter,
	}
}

// NewLogger 返回一个用于测试的 logger
//
// 默认静默，设置 ONETAKE_TEST_VERBOSE=1 时输出开发格式日志。
func NewLogger() clog.Logger {
	if os.Getenv("ONETAKE_TEST_VERBOSE") == "" {
		return clog.Discard()
	}
	logger, err := clog.New(clog.NewDevDefaultConfig("onetake"))
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回一个真实的 meter（不启动 HTTP 服务），可通过 Handler() 抓取指标
func NewMeter(t *testing.T) metrics.Meter {
	t.Helper()
	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("failed to create meter: %v", err)
	}
	t.Cleanup(func() {
		_ = meter.Shutdown(context.Background())
	})
	return meter
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)，用于生成互不冲突的幂等键
func NewID() string {
	return uuid.New().String()[0:8]
}
