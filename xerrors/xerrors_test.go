package xerrors

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	// nil 错误应返回 nil
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("Wrap(nil) = %v，期望 nil", err)
	}

	base := errors.New("connection refused")
	wrapped := Wrap(base, "idem: read cache entry")
	if wrapped.Error() != "idem: read cache entry: connection refused" {
		t.Errorf("Wrap(err).Error() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("errors.Is(wrapped, base) = false，期望 true")
	}
}

func TestWrapf(t *testing.T) {
	if err := Wrapf(nil, "key %s", "abc-1"); err != nil {
		t.Errorf("Wrapf(nil) = %v，期望 nil", err)
	}

	wrapped := Wrapf(ErrInvalidInput, "pool_size must be positive, got %d", -1)
	if wrapped.Error() != "pool_size must be positive, got -1: invalid input" {
		t.Errorf("Wrapf(err).Error() = %q", wrapped.Error())
	}
	if !Is(wrapped, ErrInvalidInput) {
		t.Error("Is(wrapped, ErrInvalidInput) = false，期望 true")
	}
}

func TestCombine(t *testing.T) {
	if err := Combine(nil, nil); err != nil {
		t.Errorf("Combine(nil, nil) = %v，期望 nil", err)
	}

	single := errors.New("only")
	if err := Combine(nil, single); err != single {
		t.Errorf("Combine(nil, single) = %v，期望原错误", err)
	}

	a, b := errors.New("close redis"), errors.New("close sqlite")
	combined := Combine(a, nil, b)
	if combined.Error() != "close redis (and 1 more errors)" {
		t.Errorf("Combine().Error() = %q", combined.Error())
	}
	if !errors.Is(combined, a) || !errors.Is(combined, b) {
		t.Error("Combine 应保留所有错误链")
	}

	var multi *MultiError
	if !As(combined, &multi) || len(multi.Errors) != 2 {
		t.Errorf("期望 MultiError 包含 2 个错误，实际 %v", combined)
	}
}
