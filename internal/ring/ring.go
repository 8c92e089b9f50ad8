// Package ring provides a fixed-capacity circular buffer whose storage is
// allocated once at construction.
package ring

import "fmt"

// Buffer is a circular buffer with a monotonically advancing write pointer.
//
// Offsets passed to At and Ref are measured from the write pointer, so
// offset 0 is the oldest element and Len()-1 the most recently written one.
type Buffer[T any] struct {
	data     []T
	writePos int
	written  uint64
}

// New returns a zero-filled buffer of fixed size.
func New[T any](size int) (*Buffer[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("ring size must be > 0: %d", size)
	}
	return &Buffer[T]{data: make([]T, size)}, nil
}

// Len returns the buffer capacity.
func (b *Buffer[T]) Len() int {
	return len(b.data)
}

// WritePos returns the physical slot the next Write will fill.
func (b *Buffer[T]) WritePos() int {
	return b.writePos
}

// Written returns the number of Write calls since construction or Reset.
func (b *Buffer[T]) Written() uint64 {
	return b.written
}

// Write stores v and advances the write pointer.
func (b *Buffer[T]) Write(v T) {
	b.data[b.writePos] = v
	b.writePos++
	if b.writePos >= len(b.data) {
		b.writePos = 0
	}
	b.written++
}

// At returns the element at offset i from the write pointer.
// Out-of-range offsets return the zero value.
func (b *Buffer[T]) At(i int) T {
	var zero T
	if i < 0 || i >= len(b.data) {
		return zero
	}
	return b.data[b.slot(i)]
}

// Ref returns a pointer to the element at offset i, or nil if i is out of range.
func (b *Buffer[T]) Ref(i int) *T {
	if i < 0 || i >= len(b.data) {
		return nil
	}
	return &b.data[b.slot(i)]
}

// Back returns the element written k writes ago; Back(0) is the newest.
func (b *Buffer[T]) Back(k int) T {
	return b.At(len(b.data) - 1 - k)
}

// CopyTo copies elements oldest to newest into dst and returns the count.
func (b *Buffer[T]) CopyTo(dst []T) int {
	n := min(len(dst), len(b.data))
	head := copy(dst[:n], b.data[b.writePos:])
	if head < n {
		copy(dst[head:n], b.data[:b.writePos])
	}
	return n
}

// Reset zeroes the storage and rewinds the write pointer.
func (b *Buffer[T]) Reset() {
	clear(b.data)
	b.writePos = 0
	b.written = 0
}

func (b *Buffer[T]) slot(i int) int {
	s := b.writePos + i
	if s >= len(b.data) {
		s -= len(b.data)
	}
	return s
}
