package idem

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/onetake/testkit"
	"github.com/ceyewan/onetake/xerrors"
)

func newRedisCoordinator(t *testing.T, cfg *Config, opts ...Option) (Idempotency, *miniredis.Miniredis) {
	t.Helper()
	conn, mr := testkit.NewRedisConnector(t)
	opts = append([]Option{WithRedisConnector(conn), WithLogger(testkit.NewLogger())}, opts...)
	coord, err := New(cfg, opts...)
	require.NoError(t, err)
	return coord, mr
}

// countingWork 返回一个记录调用次数的 work
func countingWork(calls *atomic.Int32, result WorkResult, err error) Work {
	return func(ctx context.Context) (WorkResult, error) {
		calls.Add(1)
		return result, err
	}
}

func TestPerformRecordsAndReplays(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{})
	ctx := context.Background()
	key := testkit.NewID()

	var calls atomic.Int32
	work := countingWork(&calls, Outcome{Persisted: true, Payload: map[string]any{"id": 1, "title": "hello"}}, nil)

	first, err := coord.Perform(ctx, key, work)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, first.Status)
	assert.JSONEq(t, `{"id":1,"title":"hello"}`, first.Data)

	second, err := coord.Perform(ctx, key, work)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "work should run once")

	assert.Equal(t, StatusSuccess, mr.HGet("idempotency:"+key, "status"))
	assert.Equal(t, first.Data, mr.HGet("idempotency:"+key, "data"))
	assert.Equal(t, time.Hour, mr.TTL("idempotency:"+key))

	assert.True(t, mr.Exists("lock:"+key), "lock is never released")
	assert.Equal(t, 30*time.Second, mr.TTL("lock:"+key))
}

func TestPerformDecodeResult(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})

	type post struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}
	res, err := coord.Perform(context.Background(), testkit.NewID(), func(ctx context.Context) (WorkResult, error) {
		return Outcome{Persisted: true, Payload: post{ID: 7, Title: "t"}}, nil
	})
	require.NoError(t, err)

	var got post
	require.NoError(t, res.Decode(&got))
	assert.Equal(t, post{ID: 7, Title: "t"}, got)
}

func TestPerformMissingKey(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{})

	var calls atomic.Int32
	res, err := coord.Perform(context.Background(), "", countingWork(&calls, Outcome{Persisted: true}, nil))

	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.EqualError(t, err, "header 'x-idempotency-key' is required to be sent.")
	assert.False(t, IsLockFailure(err))
	assert.Zero(t, calls.Load())
	assert.Empty(t, mr.Keys(), "store must not be touched")
}

func TestPerformNotPersisted(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{})
	ctx := context.Background()
	key := testkit.NewID()

	var calls atomic.Int32
	work := countingWork(&calls, Outcome{Persisted: false, Payload: "ignored"}, nil)

	res, err := coord.Perform(ctx, key, work)
	assert.Nil(t, res)
	assert.EqualError(t, err, "Failed to lock : Failure occurred while saving data.")
	assert.ErrorIs(t, err, ErrSaveFailure)
	assert.True(t, IsLockFailure(err))

	assert.False(t, mr.Exists("idempotency:"+key), "nothing cached")
	assert.True(t, mr.Exists("lock:"+key), "lock stays until expiry")

	// weak 模式下锁竞争不阻止再次执行
	_, err = coord.Perform(ctx, key, work)
	assert.ErrorIs(t, err, ErrSaveFailure)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPerformNilResult(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})

	_, err := coord.Perform(context.Background(), testkit.NewID(), func(ctx context.Context) (WorkResult, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrSaveFailure)
}

func TestPerformWorkError(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{})
	key := testkit.NewID()
	errDown := errors.New("database is down")

	res, err := coord.Perform(context.Background(), key, func(ctx context.Context) (WorkResult, error) {
		return nil, errDown
	})
	assert.Nil(t, res)
	assert.EqualError(t, err, "Failed to lock : database is down")
	assert.ErrorIs(t, err, errDown)
	assert.True(t, IsLockFailure(err))
	assert.False(t, mr.Exists("idempotency:"+key))
}

func TestPerformRecoversPanic(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{})
	key := testkit.NewID()

	res, err := coord.Perform(context.Background(), key, func(ctx context.Context) (WorkResult, error) {
		panic("boom")
	})
	assert.Nil(t, res)
	assert.EqualError(t, err, "Failed to lock : boom")
	assert.True(t, IsLockFailure(err))
	assert.False(t, mr.Exists("idempotency:"+key))
}

func TestPerformSerializeError(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{})
	key := testkit.NewID()

	_, err := coord.Perform(context.Background(), key, func(ctx context.Context) (WorkResult, error) {
		return Outcome{Persisted: true, Payload: make(chan int)}, nil
	})
	require.Error(t, err)
	assert.True(t, IsLockFailure(err))
	assert.Contains(t, err.Error(), "serialize result")
	assert.False(t, mr.Exists("idempotency:"+key))
}

func TestPerformCacheTakesPrecedence(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{LockMode: LockModeReject})
	key := testkit.NewID()

	mr.HSet("idempotency:"+key, "status", "success", "data", `"cached"`)
	require.NoError(t, mr.Set("lock:"+key, "someone-else"))

	var calls atomic.Int32
	res, err := coord.Perform(context.Background(), key, countingWork(&calls, Outcome{Persisted: true}, nil))
	require.NoError(t, err)
	assert.Equal(t, &Result{Status: "success", Data: `"cached"`}, res)
	assert.Zero(t, calls.Load())
}

func TestPerformIgnoresIncompleteEntry(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	key := testkit.NewID()

	// 缺少 status 字段的条目视为不存在
	err := coord.(*coordinator).store.WriteHashField(context.Background(), "idempotency:"+key, "data", `"partial"`)
	require.NoError(t, err)

	var calls atomic.Int32
	res, err := coord.Perform(context.Background(), key, countingWork(&calls, Outcome{Persisted: true, Payload: "fresh"}, nil))
	require.NoError(t, err)
	assert.Equal(t, `"fresh"`, res.Data)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRejectModeLockExpiry(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{LockMode: LockModeReject})
	ctx := context.Background()
	key := testkit.NewID()

	require.NoError(t, mr.Set("lock:"+key, "in-flight"))
	mr.SetTTL("lock:"+key, 30*time.Second)

	var calls atomic.Int32
	work := countingWork(&calls, Outcome{Persisted: true, Payload: "ok"}, nil)

	_, err := coord.Perform(ctx, key, work)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
	assert.EqualError(t, err, "Failed to lock : request with this idempotency key is already in progress")
	assert.Zero(t, calls.Load())

	mr.FastForward(31 * time.Second)

	res, err := coord.Perform(ctx, key, work)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, res.Data)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWeakModeProceedsUnderContention(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{LockMode: LockModeWeak})
	key := testkit.NewID()
	require.NoError(t, mr.Set("lock:"+key, "in-flight"))

	var calls atomic.Int32
	res, err := coord.Perform(context.Background(), key, countingWork(&calls, Outcome{Persisted: true, Payload: 1}, nil))
	require.NoError(t, err)
	assert.Equal(t, "1", res.Data)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "in-flight", mustGet(t, mr, "lock:"+key), "lock is not overwritten")
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestRejectModeConcurrentSameKey(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{LockMode: LockModeReject})
	key := testkit.NewID()

	var calls atomic.Int32
	work := func(ctx context.Context) (WorkResult, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return Outcome{Persisted: true, Payload: "done"}, nil
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.Perform(context.Background(), key, work)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrAlreadyInProgress)
		}
	}
}

func TestIndependentKeys(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{LockMode: LockModeReject})

	const n = 20
	var calls atomic.Int32
	var wg sync.WaitGroup
	errs := make([]error, n)
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = testkit.NewID()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.Perform(context.Background(), keys[i], countingWork(&calls, Outcome{Persisted: true, Payload: i}, nil))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(n), calls.Load())
	for i, err := range errs {
		assert.NoError(t, err)
		assert.True(t, mr.Exists("idempotency:"+keys[i]))
	}
}

func TestWaitModeReturnsInFlightResult(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{
		LockMode:     LockModeWait,
		WaitInterval: 10 * time.Millisecond,
		WaitTimeout:  5 * time.Second,
	})
	ctx := context.Background()
	key := testkit.NewID()

	started := make(chan struct{})
	release := make(chan struct{})
	type outcome struct {
		res *Result
		err error
	}
	firstCh := make(chan outcome, 1)
	go func() {
		res, err := coord.Perform(ctx, key, func(ctx context.Context) (WorkResult, error) {
			close(started)
			<-release
			return Outcome{Persisted: true, Payload: "done"}, nil
		})
		firstCh <- outcome{res, err}
	}()
	<-started

	var calls atomic.Int32
	secondCh := make(chan outcome, 1)
	go func() {
		res, err := coord.Perform(ctx, key, countingWork(&calls, Outcome{Persisted: true, Payload: "again"}, nil))
		secondCh <- outcome{res, err}
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)

	first := <-firstCh
	second := <-secondCh
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Equal(t, first.res, second.res)
	assert.Equal(t, `"done"`, second.res.Data)
	assert.Zero(t, calls.Load(), "waiter must not execute work")
}

func TestWaitModeTimeout(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{
		LockMode:     LockModeWait,
		WaitInterval: 10 * time.Millisecond,
		WaitTimeout:  100 * time.Millisecond,
	})
	key := testkit.NewID()
	require.NoError(t, mr.Set("lock:"+key, "in-flight"))
	mr.SetTTL("lock:"+key, 30*time.Second)

	var calls atomic.Int32
	start := time.Now()
	_, err := coord.Perform(context.Background(), key, countingWork(&calls, Outcome{Persisted: true}, nil))

	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.EqualError(t, err, "Failed to lock : timed out waiting for in-flight request")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, calls.Load())
}

func TestWaitModeCallerCancel(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{
		LockMode:     LockModeWait,
		WaitInterval: 10 * time.Millisecond,
	})
	key := testkit.NewID()
	require.NoError(t, mr.Set("lock:"+key, "in-flight"))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := coord.Perform(ctx, key, func(ctx context.Context) (WorkResult, error) {
		return Outcome{Persisted: true}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsLockFailure(err))
}

func TestWaitModeTakesOverExpiredLock(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{
		LockMode:     LockModeWait,
		WaitInterval: 10 * time.Millisecond,
		WaitTimeout:  5 * time.Second,
	})
	key := testkit.NewID()
	require.NoError(t, mr.Set("lock:"+key, "crashed-holder"))
	mr.SetTTL("lock:"+key, 30*time.Second)

	time.AfterFunc(50*time.Millisecond, func() {
		mr.FastForward(31 * time.Second)
	})

	var calls atomic.Int32
	res, err := coord.Perform(context.Background(), key, countingWork(&calls, Outcome{Persisted: true, Payload: "recovered"}, nil))
	require.NoError(t, err)
	assert.Equal(t, `"recovered"`, res.Data)
	assert.Equal(t, int32(1), calls.Load())
	assert.NotEqual(t, "crashed-holder", mustGet(t, mr, "lock:"+key))
}

func TestNamespace(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{Namespace: "app:"})
	key := testkit.NewID()

	_, err := coord.Perform(context.Background(), key, func(ctx context.Context) (WorkResult, error) {
		return Outcome{Persisted: true, Payload: "x"}, nil
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("app:idempotency:"+key))
	assert.True(t, mr.Exists("app:lock:"+key))
	assert.False(t, mr.Exists("idempotency:"+key))
}

func TestMemoryDriver(t *testing.T) {
	coord, err := New(&Config{Driver: DriverMemory, LockMode: LockModeReject})
	require.NoError(t, err)
	ctx := context.Background()
	key := testkit.NewID()

	var calls atomic.Int32
	work := countingWork(&calls, Outcome{Persisted: true, Payload: []int{1, 2}}, nil)

	first, err := coord.Perform(ctx, key, work)
	require.NoError(t, err)
	second, err := coord.Perform(ctx, key, work)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "[1,2]", second.Data)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{Driver: "etcd"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(&Config{Driver: DriverMemory, LockMode: "spin"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(&Config{Driver: DriverMemory, WaitTimeout: -time.Second})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(&Config{Driver: DriverRedis})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput, "redis driver needs a connector")

	_, err = New(&Config{Driver: DriverMemory, Breaker: BreakerConfig{Enabled: true, FailureRatio: 1.5}})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()

	assert.Equal(t, DriverRedis, cfg.Driver)
	assert.Equal(t, "", cfg.Namespace)
	assert.Equal(t, 3600*time.Second, cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, LockModeWeak, cfg.LockMode)
	assert.Equal(t, 50*time.Millisecond, cfg.WaitInterval)
	assert.Equal(t, uint32(1), cfg.Breaker.MaxRequests)
	assert.False(t, cfg.Breaker.Enabled)
}

func TestNewCopiesConfig(t *testing.T) {
	cfg := &Config{Driver: DriverMemory}
	coord, err := New(cfg)
	require.NoError(t, err)

	assert.Zero(t, cfg.CacheTTL, "caller config is not mutated")
	cfg.CacheTTL = time.Second
	assert.Equal(t, time.Hour, coord.(*coordinator).cfg.CacheTTL)
}
