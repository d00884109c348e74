package cpu

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

// Relu computes max(0, x).
func (b *Backend) Relu(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryNumeric("relu", x,
		func(v float64) float64 { return math.Max(0, v) },
		func(v int64) int64 {
			if v < 0 {
				return 0
			}
			return v
		})
}

// Sigmoid computes 1/(1+e**-x).
func (b *Backend) Sigmoid(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("sigmoid", x, func(v float64) float64 {
		return 1 / (1 + math.Exp(-v))
	})
}

// LeakyRelu computes x for x>=0 and alpha*x otherwise.
func (b *Backend) LeakyRelu(x *tensor.Tensor, alpha float64) (*tensor.Tensor, error) {
	return b.unaryFloat("leaky_relu", x, func(v float64) float64 {
		if v < 0 {
			return alpha * v
		}
		return v
	})
}

// Elu computes x for x>=0 and alpha*(e**x - 1) otherwise.
func (b *Backend) Elu(x *tensor.Tensor, alpha float64) (*tensor.Tensor, error) {
	return b.unaryFloat("elu", x, func(v float64) float64 {
		if v < 0 {
			return alpha * (math.Exp(v) - 1)
		}
		return v
	})
}

// Clamp limits values to [min, max]. A nil bound is open.
func (b *Backend) Clamp(x *tensor.Tensor, minV, maxV *float64) (*tensor.Tensor, error) {
	return b.unaryFloat("clamp", x, func(v float64) float64 {
		if minV != nil && v < *minV {
			v = *minV
		}
		if maxV != nil && v > *maxV {
			v = *maxV
		}
		return v
	})
}

// Softmax normalizes exponentials along an axis.
func (b *Backend) Softmax(x *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	naxis, err := x.Shape().Normalize(axis)
	if err != nil {
		return nil, errors.Wrap(err, "softmax")
	}
	switch x.DType() {
	case tensor.Float32:
		out, err := tensor.New(x.Shape(), tensor.Float32)
		if err != nil {
			return nil, err
		}
		softmaxKernel(out.Float32s(), x.Float32s(), x.Shape(), naxis)
		return out, nil
	case tensor.Float64:
		out, err := tensor.New(x.Shape(), tensor.Float64)
		if err != nil {
			return nil, err
		}
		softmaxKernel(out.Float64s(), x.Float64s(), x.Shape(), naxis)
		return out, nil
	default:
		return nil, errors.Errorf("softmax requires a float tensor, got %s", x.DType())
	}
}

func softmaxKernel[T ~float32 | ~float64](dst, src []T, shape tensor.Shape, axis int) {
	dim := shape[axis]
	inner := 1
	for _, d := range shape[axis+1:] {
		inner *= d
	}
	outer := len(src) / (dim * inner)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o*dim*inner + i
			maxV := src[base]
			for d := 1; d < dim; d++ {
				if v := src[base+d*inner]; v > maxV {
					maxV = v
				}
			}
			var sum float64
			for d := 0; d < dim; d++ {
				e := math.Exp(float64(src[base+d*inner] - maxV))
				dst[base+d*inner] = T(e)
				sum += e
			}
			for d := 0; d < dim; d++ {
				dst[base+d*inner] = T(float64(dst[base+d*inner]) / sum)
			}
		}
	}
}
