package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than limit goroutines are running.
func GoroutineCountCheck(limit int) CheckFunc {
	return GaugeCheck("goroutines", func() int { return runtime.NumGoroutine() }, limit)
}

// GaugeCheck fails when value exceeds limit.
func GaugeCheck(name string, value func() int, limit int) CheckFunc {
	return func(context.Context) error {
		if v := value(); v > limit {
			return errors.Errorf("%s %d exceeds %d", name, v, limit)
		}
		return nil
	}
}
