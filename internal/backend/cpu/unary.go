package cpu

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

// unaryFloat applies f element-wise to a float tensor.
func (b *Backend) unaryFloat(name string, x *tensor.Tensor, f func(float64) float64) (*tensor.Tensor, error) {
	out, err := tensor.New(x.Shape(), x.DType())
	if err != nil {
		return nil, err
	}
	switch x.DType() {
	case tensor.Float32:
		dst := out.Float32s()
		for i, v := range x.Float32s() {
			dst[i] = float32(f(float64(v)))
		}
	case tensor.Float64:
		dst := out.Float64s()
		for i, v := range x.Float64s() {
			dst[i] = f(v)
		}
	default:
		return nil, errors.Errorf("%s requires a float tensor, got %s", name, x.DType())
	}
	return out, nil
}

// unaryNumeric applies f to float tensors and fi to integer tensors.
func (b *Backend) unaryNumeric(name string, x *tensor.Tensor, f func(float64) float64, fi func(int64) int64) (*tensor.Tensor, error) {
	switch x.DType() {
	case tensor.Float32, tensor.Float64:
		return b.unaryFloat(name, x, f)
	case tensor.Int32:
		out, err := tensor.New(x.Shape(), tensor.Int32)
		if err != nil {
			return nil, err
		}
		dst := out.Int32s()
		for i, v := range x.Int32s() {
			dst[i] = int32(fi(int64(v)))
		}
		return out, nil
	case tensor.Int64:
		out, err := tensor.New(x.Shape(), tensor.Int64)
		if err != nil {
			return nil, err
		}
		dst := out.Int64s()
		for i, v := range x.Int64s() {
			dst[i] = fi(v)
		}
		return out, nil
	default:
		return nil, errors.Errorf("%s: unsupported dtype %s", name, x.DType())
	}
}

func intIdentity(v int64) int64 { return v }

// Abs computes |x|.
func (b *Backend) Abs(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryNumeric("abs", x, math.Abs, func(v int64) int64 {
		if v < 0 {
			return -v
		}
		return v
	})
}

// Ceil rounds up. Integer tensors pass through unchanged.
func (b *Backend) Ceil(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryNumeric("ceil", x, math.Ceil, intIdentity)
}

// Floor rounds down. Integer tensors pass through unchanged.
func (b *Backend) Floor(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryNumeric("floor", x, math.Floor, intIdentity)
}

// Round rounds half to even. Integer tensors pass through unchanged.
func (b *Backend) Round(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryNumeric("round", x, math.RoundToEven, intIdentity)
}

// Neg computes -x.
func (b *Backend) Neg(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryNumeric("neg", x, func(v float64) float64 { return -v }, func(v int64) int64 { return -v })
}

// Sign computes -1, 0 or 1 per element.
func (b *Backend) Sign(x *tensor.Tensor) (*tensor.Tensor, error) {
	sign := func(v float64) float64 {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		default:
			return 0
		}
	}
	return b.unaryNumeric("sign", x, sign, func(v int64) int64 {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		default:
			return 0
		}
	})
}

// Sqrt computes the square root.
func (b *Backend) Sqrt(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("sqrt", x, math.Sqrt)
}

// Exp computes e**x.
func (b *Backend) Exp(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("exp", x, math.Exp)
}

// Log computes the natural logarithm.
func (b *Backend) Log(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("log", x, math.Log)
}

// Erf computes the Gauss error function.
func (b *Backend) Erf(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("erf", x, math.Erf)
}

// Sin computes the sine.
func (b *Backend) Sin(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("sin", x, math.Sin)
}

// Cos computes the cosine.
func (b *Backend) Cos(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("cos", x, math.Cos)
}

// Tan computes the tangent.
func (b *Backend) Tan(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("tan", x, math.Tan)
}

// Tanh computes the hyperbolic tangent.
func (b *Backend) Tanh(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("tanh", x, math.Tanh)
}

// Reciprocal computes 1/x.
func (b *Backend) Reciprocal(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.unaryFloat("reciprocal", x, func(v float64) float64 { return 1 / v })
}
