package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

// ReduceMean averages over the given axes. Empty axes reduce everything.
func (b *Backend) ReduceMean(x *tensor.Tensor, axes []int, keepDims bool) (*tensor.Tensor, error) {
	if !x.DType().IsFloat() {
		return nil, errors.Errorf("reduce_mean requires a float tensor, got %s", x.DType())
	}
	rank := x.Rank()
	reduce := make([]bool, rank)
	if len(axes) == 0 {
		for i := range reduce {
			reduce[i] = true
		}
	} else {
		for _, a := range axes {
			na, err := x.Shape().Normalize(a)
			if err != nil {
				return nil, errors.Wrap(err, "reduce_mean")
			}
			reduce[na] = true
		}
	}

	outShape := make(tensor.Shape, 0, rank)
	keptShape := make(tensor.Shape, 0, rank)
	count := 1
	for i, d := range x.Shape() {
		if reduce[i] {
			count *= d
			if keepDims {
				outShape = append(outShape, 1)
			}
		} else {
			outShape = append(outShape, d)
			keptShape = append(keptShape, d)
		}
	}

	acc := make([]float64, keptShape.NumElements())
	inShape := x.Shape()
	// Strides of the kept dimensions inside the accumulator.
	keptStrides := keptShape.Strides()
	axisToKept := make([]int, rank)
	k := 0
	for i := 0; i < rank; i++ {
		if reduce[i] {
			axisToKept[i] = -1
		} else {
			axisToKept[i] = keptStrides[k]
			k++
		}
	}

	src, err := x.Floats()
	if err != nil {
		return nil, err
	}
	coord := make([]int, rank)
	for _, v := range src {
		idx := 0
		for d := range coord {
			if axisToKept[d] >= 0 {
				idx += coord[d] * axisToKept[d]
			}
		}
		acc[idx] += v
		odometer(coord, inShape)
	}

	out, err := tensor.New(outShape, x.DType())
	if err != nil {
		return nil, err
	}
	switch x.DType() {
	case tensor.Float32:
		dst := out.Float32s()
		for i, v := range acc {
			dst[i] = float32(v / float64(count))
		}
	default:
		dst := out.Float64s()
		for i, v := range acc {
			dst[i] = v / float64(count)
		}
	}
	return out, nil
}
