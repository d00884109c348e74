package tensor

import "github.com/pkg/errors"

// Shape holds the dimensions of a tensor. An empty shape denotes a scalar.
type Shape []int

// NumElements returns the total number of elements.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return errors.Errorf("invalid dimension %d at axis %d", dim, i)
		}
	}
	return nil
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Strides returns row-major strides for the shape, in elements.
func (s Shape) Strides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}
	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Normalize resolves a possibly negative axis against the shape's rank.
func (s Shape) Normalize(axis int) (int, error) {
	rank := len(s)
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, errors.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return axis, nil
}

// Broadcast applies NumPy-style broadcasting rules to two shapes. Dimensions
// are compared right to left; they are compatible when equal or when one of
// them is 1. Missing leading dimensions count as 1.
func Broadcast(a, b Shape) (Shape, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make(Shape, n)
	for i := 0; i < n; i++ {
		ad, bd := 1, 1
		if idx := len(a) - 1 - i; idx >= 0 {
			ad = a[idx]
		}
		if idx := len(b) - 1 - i; idx >= 0 {
			bd = b[idx]
		}
		switch {
		case ad == bd:
			out[n-1-i] = ad
		case ad == 1:
			out[n-1-i] = bd
		case bd == 1:
			out[n-1-i] = ad
		default:
			return nil, errors.Errorf("shapes %v and %v are not broadcastable", a, b)
		}
	}
	return out, nil
}

// BroadcastStrides returns element strides for addressing a tensor of shape
// `from` as if it had shape `to`: broadcast dimensions get stride 0.
func BroadcastStrides(from, to Shape) []int {
	base := from.Strides()
	out := make([]int, len(to))
	offset := len(to) - len(from)
	for i := range to {
		j := i - offset
		if j < 0 || from[j] == 1 {
			out[i] = 0
		} else {
			out[i] = base[j]
		}
	}
	return out
}
