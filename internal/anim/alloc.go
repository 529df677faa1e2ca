package anim

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation is returned when a precompute buffer cannot be obtained.
	ErrAllocation = errors.New("precompute allocation failed")
	// ErrNoShapes is returned when there is nothing to precompute.
	ErrNoShapes = errors.New("no shapes to precompute")
	// ErrNoVertices is returned for shapes without base geometry.
	ErrNoVertices = errors.New("shape has no vertices")
)

const (
	offsetBytes  = 4  // int32
	counterBytes = 16 // two flags + float64, padded
)

// Allocator hands out precompute buffers. Release returns what a shape
// held so that later shapes or sessions can reuse the budget.
type Allocator interface {
	Offsets(n int) ([]int32, error)
	Counters(n int) ([]CounterFrame, error)
	Release(offsets []int32, counters []CounterFrame)
}

// Budget is an Allocator bounded by a byte budget. A non-positive limit
// means unbounded.
type Budget struct {
	limit int64
	used  int64
}

func NewBudget(limitBytes int64) *Budget {
	return &Budget{limit: limitBytes}
}

func (b *Budget) reserve(n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: negative size %d", ErrAllocation, n)
	}
	if b.limit > 0 && b.used+n > b.limit {
		return fmt.Errorf("%w: need %d bytes, %d of %d in use", ErrAllocation, n, b.used, b.limit)
	}
	b.used += n
	return nil
}

func (b *Budget) Offsets(n int) ([]int32, error) {
	if err := b.reserve(int64(n) * offsetBytes); err != nil {
		return nil, err
	}
	return make([]int32, n), nil
}

func (b *Budget) Counters(n int) ([]CounterFrame, error) {
	if err := b.reserve(int64(n) * counterBytes); err != nil {
		return nil, err
	}
	return make([]CounterFrame, n), nil
}

func (b *Budget) Release(offsets []int32, counters []CounterFrame) {
	b.used -= int64(len(offsets))*offsetBytes + int64(len(counters))*counterBytes
	if b.used < 0 {
		b.used = 0
	}
}

// Used reports the bytes currently handed out.
func (b *Budget) Used() int64 { return b.used }

// Footprint estimates the bytes one shape needs for a window of frames.
func Footprint(frames, vertices int) int64 {
	return int64(frames)*int64(vertices)*offsetBytes*2 + int64(frames)*counterBytes
}
