package calib

import "github.com/golang/geo/r2"

// DefaultBufferSize is the default number of correspondences retained
const DefaultBufferSize = 100000

// Buffer is a bounded FIFO of point correspondences.  When full the oldest
// pairs are evicted first
type Buffer struct {
	size int
	a    []r2.Point
	b    []r2.Point
}

// NewBuffer returns a buffer holding at most size pairs
func NewBuffer(size int) *Buffer {
	return &Buffer{size: size}
}

// Len returns the number of pairs held
func (buf *Buffer) Len() int {
	return len(buf.a)
}

// Cap returns the maximum number of pairs held
func (buf *Buffer) Cap() int {
	return buf.size
}

// Append adds the pairs (a[i], b[i]) in order, evicting the oldest pairs
// beyond capacity.  The slices must have equal length
func (buf *Buffer) Append(a, b []r2.Point) {

	buf.a = append(buf.a, a...)
	buf.b = append(buf.b, b...)

	excess := len(buf.a) - buf.size

	if excess <= 0 {
		return
	}

	n := copy(buf.a, buf.a[excess:])
	copy(buf.b, buf.b[excess:])

	buf.a = buf.a[:n]
	buf.b = buf.b[:n]
}

// Points returns the buffered pairs oldest first.  The slices are owned by
// the buffer and only valid until the next Append
func (buf *Buffer) Points() ([]r2.Point, []r2.Point) {
	return buf.a, buf.b
}

// Reset empties the buffer
func (buf *Buffer) Reset() {
	buf.a = buf.a[:0]
	buf.b = buf.b[:0]
}
