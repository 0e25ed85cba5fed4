package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 that many scenario workers can add to without a lock.
// The bits live in an atomic.Uint64; every write is a compare-and-swap against the
// value last read.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// AtomicRead returns the current value.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicAdd attempts a single add. If another writer changed the value between
// the read and the swap, nothing is written and succeeded is false, so the
// caller can decide whether to retry.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = af.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}

// Accumulate adds addend, retrying until the swap lands.
func (af *AtomicFloat64) Accumulate(addend float64) float64 {
	for {
		if newVal, ok := af.AtomicAdd(addend); ok {
			return newVal
		}
	}
}

// AtomicSet overwrites the value.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// Mean is a running sum and count, safe for concurrent Observe calls.
type Mean struct {
	sum AtomicFloat64
	n   atomic.Int64
}

func (m *Mean) Observe(val float64) {
	m.sum.Accumulate(val)
	m.n.Add(1)
}

// Value returns the mean of all observations, or zero if there were none.
func (m *Mean) Value() float64 {
	n := m.n.Load()
	if n == 0 {
		return 0
	}
	return m.sum.AtomicRead() / float64(n)
}

func (m *Mean) Count() int64 {
	return m.n.Load()
}
