// Package queue provides a bounded lock-free single-producer/single-consumer ring.
package queue

import (
	"errors"
	"fmt"
	"sync/atomic"
)

const (
	// DefaultCapacity is the number of message slots on the device.
	DefaultCapacity = 16
	// MaxCapacity bounds the backing storage a Ring may reserve.
	MaxCapacity = 1 << 20
)

// ErrCapacity indicates the requested storage can't be reserved.
var ErrCapacity = errors.New("queue: capacity out of range")

// Producer is the writing half of a Ring.
type Producer[T any] interface {
	// Enqueue inserts v, or returns false without blocking if full.
	Enqueue(v T) bool
}

// Consumer is the reading half of a Ring.
type Consumer[T any] interface {
	// Dequeue removes the oldest value.
	Dequeue() (T, bool)
	// Len returns the number of values waiting.
	Len() int
}

// Ring is a fixed capacity FIFO.
//
// Exactly one goroutine may call the producer methods and exactly one
// goroutine may call the consumer methods. head is only written by the
// producer and tail only by the consumer, so no lock is needed. Both run
// modulo twice the capacity so a full ring is distinguishable from an
// empty one.
type Ring[T any] struct {
	slots     []T
	head      atomic.Uint32
	tail      atomic.Uint32
	highWater atomic.Uint32
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) (*Ring[T], error) {
	if capacity < 1 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	return &Ring[T]{slots: make([]T, capacity)}, nil
}

// Cap returns the number of slots.
func (r *Ring[T]) Cap() int {
	return len(r.slots)
}

// Len returns the number of occupied slots.
func (r *Ring[T]) Len() int {
	return int(r.count(r.head.Load(), r.tail.Load()))
}

func (r *Ring[T]) count(head, tail uint32) uint32 {
	span := 2 * uint32(len(r.slots))
	return (head + span - tail) % span
}

func (r *Ring[T]) next(i uint32) uint32 {
	if i++; i == 2*uint32(len(r.slots)) {
		return 0
	}
	return i
}

// Empty reports whether nothing is waiting.
func (r *Ring[T]) Empty() bool {
	return r.Len() == 0
}

// HighWater returns the largest occupancy ever observed by the producer.
func (r *Ring[T]) HighWater() int {
	return int(r.highWater.Load())
}

// Enqueue implements Producer.
func (r *Ring[T]) Enqueue(v T) bool {
	head := r.head.Load()
	count := r.count(head, r.tail.Load())
	if int(count) >= len(r.slots) {
		return false
	}
	r.slots[head%uint32(len(r.slots))] = v
	r.head.Store(r.next(head))
	if count+1 > r.highWater.Load() {
		r.highWater.Store(count + 1)
	}
	return true
}

// Dequeue implements Consumer.
func (r *Ring[T]) Dequeue() (v T, ok bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return
	}
	i := tail % uint32(len(r.slots))
	v, ok = r.slots[i], true
	var zero T
	r.slots[i] = zero
	r.tail.Store(r.next(tail))
	return
}

// DequeueInto moves up to len(dst) values into dst, oldest first.
// It is a consumer method.
func (r *Ring[T]) DequeueInto(dst []T) int {
	n := 0
	for n < len(dst) {
		v, ok := r.Dequeue()
		if !ok {
			break
		}
		dst[n] = v
		n++
	}
	return n
}

// Producer returns the writing half.
func (r *Ring[T]) Producer() Producer[T] {
	return r
}

// Consumer returns the reading half.
func (r *Ring[T]) Consumer() Consumer[T] {
	return r
}
