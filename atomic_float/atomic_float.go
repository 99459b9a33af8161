// Package atomic_float provides float64 cells that one goroutine can write while others read,
// without locks. The trainer publishes its live telemetry through them.
package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 stored as its IEEE-754 bits.
// The zero value holds 0.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 returns a cell holding val.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.AtomicSet(val)
	return af
}

// AtomicRead returns the current value.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicSet overwrites the value.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// AtomicAdd attempts a single compare-and-swap of value+addend. If another writer changed
// the value in between, nothing is written and succeeded is false, leaving the caller to
// retry or drop the update.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = af.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}

// Add adds addend, retrying until no other writer interferes, and returns the sum.
func (af *AtomicFloat64) Add(addend float64) float64 {
	for {
		if newVal, ok := af.AtomicAdd(addend); ok {
			return newVal
		}
	}
}

// AtomicMax raises the value to val if val is larger, reporting whether it did.
// NaN never replaces a value.
func (af *AtomicFloat64) AtomicMax(val float64) bool {
	for {
		old := af.bits.Load()
		if !(val > math.Float64frombits(old)) {
			return false
		}
		if af.bits.CompareAndSwap(old, math.Float64bits(val)) {
			return true
		}
	}
}
