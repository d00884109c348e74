package cpu

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

type binaryKernels struct {
	f32 func(float32, float32) float32
	f64 func(float64, float64) float64
	i32 func(int32, int32) int32
	i64 func(int64, int64) int64
}

func bcastLoop[T any](dst, av, bv []T, ash, bsh, osh tensor.Shape, f func(T, T) T) {
	if ash.Equal(osh) && bsh.Equal(osh) {
		for i := range dst {
			dst[i] = f(av[i], bv[i])
		}
		return
	}
	as := tensor.BroadcastStrides(ash, osh)
	bs := tensor.BroadcastStrides(bsh, osh)
	coord := make([]int, len(osh))
	for i := range dst {
		ai, bi := 0, 0
		for d := range coord {
			ai += coord[d] * as[d]
			bi += coord[d] * bs[d]
		}
		dst[i] = f(av[ai], bv[bi])
		odometer(coord, osh)
	}
}

func (b *Backend) binary(name string, a, c *tensor.Tensor, k binaryKernels) (*tensor.Tensor, error) {
	if a.DType() != c.DType() {
		return nil, errors.Errorf("%s: dtype mismatch %s vs %s", name, a.DType(), c.DType())
	}
	osh, err := tensor.Broadcast(a.Shape(), c.Shape())
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	out, err := tensor.New(osh, a.DType())
	if err != nil {
		return nil, err
	}
	switch a.DType() {
	case tensor.Float32:
		if k.f32 == nil {
			return nil, errors.Errorf("%s: float32 not supported", name)
		}
		bcastLoop(out.Float32s(), a.Float32s(), c.Float32s(), a.Shape(), c.Shape(), osh, k.f32)
	case tensor.Float64:
		if k.f64 == nil {
			return nil, errors.Errorf("%s: float64 not supported", name)
		}
		bcastLoop(out.Float64s(), a.Float64s(), c.Float64s(), a.Shape(), c.Shape(), osh, k.f64)
	case tensor.Int32:
		if k.i32 == nil {
			return nil, errors.Errorf("%s: int32 not supported", name)
		}
		bcastLoop(out.Int32s(), a.Int32s(), c.Int32s(), a.Shape(), c.Shape(), osh, k.i32)
	case tensor.Int64:
		if k.i64 == nil {
			return nil, errors.Errorf("%s: int64 not supported", name)
		}
		bcastLoop(out.Int64s(), a.Int64s(), c.Int64s(), a.Shape(), c.Shape(), osh, k.i64)
	default:
		return nil, errors.Errorf("%s: unsupported dtype %s", name, a.DType())
	}
	return out, nil
}

// Add computes a + b with broadcasting.
func (b *Backend) Add(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	return b.binary("add", a, c, binaryKernels{
		f32: func(x, y float32) float32 { return x + y },
		f64: func(x, y float64) float64 { return x + y },
		i32: func(x, y int32) int32 { return x + y },
		i64: func(x, y int64) int64 { return x + y },
	})
}

// Sub computes a - b with broadcasting.
func (b *Backend) Sub(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	return b.binary("sub", a, c, binaryKernels{
		f32: func(x, y float32) float32 { return x - y },
		f64: func(x, y float64) float64 { return x - y },
		i32: func(x, y int32) int32 { return x - y },
		i64: func(x, y int64) int64 { return x - y },
	})
}

// Mul computes a * b with broadcasting.
func (b *Backend) Mul(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	return b.binary("mul", a, c, binaryKernels{
		f32: func(x, y float32) float32 { return x * y },
		f64: func(x, y float64) float64 { return x * y },
		i32: func(x, y int32) int32 { return x * y },
		i64: func(x, y int64) int64 { return x * y },
	})
}

// Div computes a / b with broadcasting. Integer division truncates.
func (b *Backend) Div(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	return b.binary("div", a, c, binaryKernels{
		f32: func(x, y float32) float32 { return x / y },
		f64: func(x, y float64) float64 { return x / y },
		i32: func(x, y int32) int32 { return x / y },
		i64: func(x, y int64) int64 { return x / y },
	})
}

// Pow computes a ** b with broadcasting. Float tensors only.
func (b *Backend) Pow(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	return b.binary("pow", a, c, binaryKernels{
		f32: func(x, y float32) float32 { return float32(math.Pow(float64(x), float64(y))) },
		f64: math.Pow,
	})
}

// Minimum computes the element-wise minimum with broadcasting.
func (b *Backend) Minimum(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	return b.binary("min", a, c, binaryKernels{
		f32: func(x, y float32) float32 { return min(x, y) },
		f64: func(x, y float64) float64 { return min(x, y) },
		i32: func(x, y int32) int32 { return min(x, y) },
		i64: func(x, y int64) int64 { return min(x, y) },
	})
}

// Maximum computes the element-wise maximum with broadcasting.
func (b *Backend) Maximum(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	return b.binary("max", a, c, binaryKernels{
		f32: func(x, y float32) float32 { return max(x, y) },
		f64: func(x, y float64) float64 { return max(x, y) },
		i32: func(x, y int32) int32 { return max(x, y) },
		i64: func(x, y int64) int64 { return max(x, y) },
	})
}
