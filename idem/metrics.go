package idem

import (
	"context"
	"time"

	"github.com/ceyewan/onetake/metrics"
)

const (
	metricPerformTotal = "idem_perform_total"
	metricContention   = "idem_lock_contention_total"
	metricWorkDuration = "idem_work_duration_seconds"

	labelOutcome = "outcome"
	labelMode    = "mode"
)

// Perform 结果分类
const (
	outcomeCached       = "cached"
	outcomeExecuted     = "executed"
	outcomeMissingKey   = "missing_key"
	outcomeNotPersisted = "not_persisted"
	outcomeWorkError    = "work_error"
	outcomeStoreError   = "store_error"
	outcomeRecordError  = "record_error"
	outcomeInProgress   = "in_progress"
	outcomeWaitTimeout  = "wait_timeout"
)

var workDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// idemMetrics 协调器指标，标签中不包含幂等键
type idemMetrics struct {
	performTotal metrics.Counter
	contention   metrics.Counter
	workDuration metrics.Histogram
}

func newIdemMetrics(m metrics.Meter) (*idemMetrics, error) {
	performTotal, err := m.Counter(metricPerformTotal, "幂等执行次数，按结果分类")
	if err != nil {
		return nil, err
	}
	contention, err := m.Counter(metricContention, "锁竞争次数，按锁模式分类")
	if err != nil {
		return nil, err
	}
	workDuration, err := m.Histogram(metricWorkDuration, "业务逻辑执行耗时",
		metrics.WithBuckets(workDurationBuckets))
	if err != nil {
		return nil, err
	}
	return &idemMetrics{
		performTotal: performTotal,
		contention:   contention,
		workDuration: workDuration,
	}, nil
}

func (m *idemMetrics) observePerform(ctx context.Context, outcome string) {
	m.performTotal.Inc(ctx, metrics.L(labelOutcome, outcome))
}

func (m *idemMetrics) observeContention(ctx context.Context, mode LockMode) {
	m.contention.Inc(ctx, metrics.L(labelMode, string(mode)))
}

func (m *idemMetrics) observeWork(ctx context.Context, d time.Duration) {
	m.workDuration.Record(ctx, d.Seconds())
}
