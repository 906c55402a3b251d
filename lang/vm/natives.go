package vm

import (
	"errors"
	"math"
	"time"

	"github.com/mna/clox/lang/value"
)

// clockNative returns seconds elapsed since this VM was created. The
// original C implementation measures CPU time via clock(); wall-clock
// time.Since is the idiomatic Go equivalent and is observably compatible —
// a monotonically increasing float number of seconds (spec §12).
func (vm *VM) clockNative(args []value.Value) (value.Value, error) {
	return value.NumberValue(time.Since(vm.startTime).Seconds()), nil
}

// sqrtNative is a one-argument native exercising the error-returning half of
// object.NativeFn (spec §9 "Native function surface"): a negative operand is
// a runtime error rather than producing NaN silently.
func (vm *VM) sqrtNative(args []value.Value) (value.Value, error) {
	if !args[0].IsNumber() {
		return value.NilValue, errors.New("sqrt() argument must be a number")
	}
	n := args[0].AsNumber()
	if n < 0 {
		return value.NilValue, errors.New("sqrt() argument must be non-negative")
	}
	return value.NumberValue(math.Sqrt(n)), nil
}
