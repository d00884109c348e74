// Package cpu implements the reference pure-Go numeric backend.
package cpu

import (
	"github.com/born-ml/onnx2born/internal/tensor"
)

// Backend is the pure-Go reference implementation of backend.Backend.
type Backend struct{}

// New returns a CPU backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "cpu"
}

// odometer advances a multi-index in row-major order.
func odometer(coord []int, shape tensor.Shape) bool {
	for i := len(coord) - 1; i >= 0; i-- {
		coord[i]++
		if coord[i] < shape[i] {
			return true
		}
		coord[i] = 0
	}
	return false
}
