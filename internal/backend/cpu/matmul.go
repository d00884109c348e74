package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

// MatMul multiplies two tensors. 2-D inputs use a single kernel call;
// higher ranks are treated as stacks of matrices with broadcast batch
// dimensions. 1-D operands are promoted to matrices and the extra axis is
// squeezed from the result.
func (b *Backend) MatMul(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	if a.DType() != c.DType() {
		return nil, errors.Errorf("matmul: dtype mismatch %s vs %s", a.DType(), c.DType())
	}
	if !a.DType().IsFloat() {
		return nil, errors.Errorf("matmul requires float tensors, got %s", a.DType())
	}

	lhs, rhs := a, c
	squeezeFront, squeezeBack := false, false
	var err error
	if lhs.Rank() == 1 {
		if lhs, err = lhs.WithShape(tensor.Shape{1, lhs.NumElements()}); err != nil {
			return nil, err
		}
		squeezeFront = true
	}
	if rhs.Rank() == 1 {
		if rhs, err = rhs.WithShape(tensor.Shape{rhs.NumElements(), 1}); err != nil {
			return nil, err
		}
		squeezeBack = true
	}
	if lhs.Rank() < 2 || rhs.Rank() < 2 {
		return nil, errors.New("matmul operands must have rank >= 1")
	}

	lsh, rsh := lhs.Shape(), rhs.Shape()
	m, k := lsh[len(lsh)-2], lsh[len(lsh)-1]
	k2, n := rsh[len(rsh)-2], rsh[len(rsh)-1]
	if k != k2 {
		return nil, errors.Errorf("matmul inner dimensions differ: %v x %v", lsh, rsh)
	}

	batchL := lsh[:len(lsh)-2]
	batchR := rsh[:len(rsh)-2]
	batch, err := tensor.Broadcast(batchL, batchR)
	if err != nil {
		return nil, errors.Wrap(err, "matmul batch dimensions")
	}

	outShape := append(batch.Clone(), m, n)
	out, err := tensor.New(outShape, a.DType())
	if err != nil {
		return nil, err
	}

	// Batch strides count whole matrices: one batch element is one matrix.
	lStrides := tensor.BroadcastStrides(batchL, batch)
	rStrides := tensor.BroadcastStrides(batchR, batch)

	numBatch := batch.NumElements()
	coord := make([]int, len(batch))
	for i := 0; i < numBatch; i++ {
		lOff, rOff := 0, 0
		for d := range coord {
			lOff += coord[d] * lStrides[d]
			rOff += coord[d] * rStrides[d]
		}
		switch a.DType() {
		case tensor.Float32:
			matmulKernel(out.Float32s()[i*m*n:(i+1)*m*n], lhs.Float32s()[lOff*m*k:], rhs.Float32s()[rOff*k*n:], m, k, n)
		case tensor.Float64:
			matmulKernel(out.Float64s()[i*m*n:(i+1)*m*n], lhs.Float64s()[lOff*m*k:], rhs.Float64s()[rOff*k*n:], m, k, n)
		}
		odometer(coord, batch)
	}

	switch {
	case squeezeFront && squeezeBack:
		return out.WithShape(tensor.Shape{})
	case squeezeBack:
		return out.WithShape(outShape[:len(outShape)-1])
	case squeezeFront:
		shape := outShape.Clone()
		shape[len(shape)-2] = shape[len(shape)-1]
		return out.WithShape(shape[:len(shape)-1])
	default:
		return out, nil
	}
}

func matmulKernel[T ~float32 | ~float64](dst, a, b []T, m, k, n int) {
	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			s := a[i*k+p]
			if s == 0 {
				continue
			}
			row := b[p*n : (p+1)*n]
			drow := dst[i*n : (i+1)*n]
			for j, v := range row {
				drow[j] += s * v
			}
		}
	}
}
