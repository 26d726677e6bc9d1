// Package calc carries per-calculation results so a failing indicator or exit
// method degrades to a neutral value instead of aborting its caller.
package calc

import (
	"errors"
	"fmt"
	"math"

	"SignalEngine/pkg/logger"
)

// ErrNonFinite is returned when a calculation produced NaN or Inf.
var ErrNonFinite = errors.New("non-finite result")

// Result holds either a value or the reason it could not be computed.
type Result[T any] struct {
	Value T
	Err   error
	Name  string
}

// Ok wraps a successful value.
func Ok[T any](name string, v T) Result[T] {
	return Result[T]{Name: name, Value: v}
}

// Fail wraps an error.
func Fail[T any](name string, err error) Result[T] {
	return Result[T]{Name: name, Err: err}
}

// Try runs fn and converts a panic into an error.
func Try[T any](name string, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Fail[T](name, fmt.Errorf("%s: panic: %v", name, r))
		}
	}()
	v, err := fn()
	if err != nil {
		return Fail[T](name, fmt.Errorf("%s: %w", name, err))
	}
	return Ok(name, v)
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool { return r.Err == nil }

// OrDefault returns the value, or neutral if the calculation failed. The
// failure is logged at debug.
func (r Result[T]) OrDefault(lgr *logger.Logger, neutral T) T {
	if r.Err == nil {
		return r.Value
	}
	if lgr != nil {
		lgr.Debug("calculation failed, using neutral default",
			logger.String("calc", r.Name),
			logger.Error(r.Err),
		)
	}
	return neutral
}

// Finite fails a float result that is NaN or Inf.
func Finite(r Result[float64]) Result[float64] {
	if r.Err == nil && !IsFinite(r.Value) {
		return Fail[float64](r.Name, fmt.Errorf("%s: %w", r.Name, ErrNonFinite))
	}
	return r
}

// IsFinite reports whether every value is a real number.
func IsFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
