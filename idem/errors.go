package idem

import (
	"fmt"

	"github.com/ceyewan/onetake/xerrors"
)

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("idem: config is nil")

	// ErrMissingKey 幂等键为空，不会访问存储
	ErrMissingKey = xerrors.New("header 'x-idempotency-key' is required to be sent.")

	// ErrSaveFailure 业务执行完成但结果未持久化，总是包装在 LockError 中返回
	ErrSaveFailure = xerrors.New("Failure occurred while saving data.")

	// ErrAlreadyInProgress 相同幂等键的请求正在处理中（仅 reject 模式）
	ErrAlreadyInProgress = xerrors.New("request with this idempotency key is already in progress")

	// ErrWaitTimeout 等待进行中的请求超时（仅 wait 模式）
	ErrWaitTimeout = xerrors.New("timed out waiting for in-flight request")
)

// LockError 锁阶段或执行阶段的失败
//
// 消息格式固定为 "Failed to lock : <cause>"，可通过 errors.Is/As 访问原始错误。
type LockError struct {
	Cause error
}

func (e *LockError) Error() string {
	if e.Cause == nil {
		return "Failed to lock : "
	}
	return "Failed to lock : " + e.Cause.Error()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// IsLockFailure 判断错误链中是否包含 LockError
func IsLockFailure(err error) bool {
	var lockErr *LockError
	return xerrors.As(err, &lockErr)
}

func newLockError(cause error) error {
	return &LockError{Cause: cause}
}

// panicError 将 recover 得到的值转换为 error
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
