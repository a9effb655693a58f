package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means handlers are leaking or piling up on a slow
// dependency.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// HeapInUseCheck fails when the in-use heap exceeds maxBytes. Carts live in
// memory, so an unbounded registry shows up here first.
func HeapInUseCheck(maxBytes uint64) CheckFunc {
	return func(context.Context) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapInuse > maxBytes {
			return errors.Errorf("heap in use %d bytes exceeds %d", ms.HeapInuse, maxBytes)
		}
		return nil
	}
}
