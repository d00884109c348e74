// Package backend defines the numeric runtime boundary that translated
// operator units execute against. The converter itself never computes;
// every kernel is reached through this interface.
package backend

import (
	"github.com/born-ml/onnx2born/internal/tensor"
)

// ConvParams carries the spatial configuration of a convolution.
type ConvParams struct {
	Strides   [2]int
	Pads      [4]int // top, left, bottom, right
	Dilations [2]int
	Groups    int
	// OutputPadding applies to transposed convolutions only.
	OutputPadding [2]int
}

// PoolParams carries the spatial configuration of a pooling window.
type PoolParams struct {
	Kernel          [2]int
	Strides         [2]int
	Pads            [4]int // top, left, bottom, right
	CountIncludePad bool
}

// Backend is the target numeric runtime. All binary arithmetic broadcasts
// NumPy-style. Structural operations use NCHW layout.
type Backend interface {
	Name() string

	// Element-wise binary arithmetic.
	Add(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Sub(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Mul(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Div(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Pow(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Minimum(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Maximum(a, b *tensor.Tensor) (*tensor.Tensor, error)

	// Matrix product: 2-D, or batched with broadcast batch dimensions.
	// 1-D operands are promoted and the extra axis squeezed afterwards.
	MatMul(a, b *tensor.Tensor) (*tensor.Tensor, error)

	// Structural layers.
	Conv2D(x, w, b *tensor.Tensor, p ConvParams) (*tensor.Tensor, error)
	ConvTranspose2D(x, w, b *tensor.Tensor, p ConvParams) (*tensor.Tensor, error)
	MaxPool2D(x *tensor.Tensor, p PoolParams) (*tensor.Tensor, error)
	AvgPool2D(x *tensor.Tensor, p PoolParams) (*tensor.Tensor, error)

	// Unary math.
	Abs(x *tensor.Tensor) (*tensor.Tensor, error)
	Ceil(x *tensor.Tensor) (*tensor.Tensor, error)
	Floor(x *tensor.Tensor) (*tensor.Tensor, error)
	Round(x *tensor.Tensor) (*tensor.Tensor, error)
	Neg(x *tensor.Tensor) (*tensor.Tensor, error)
	Sign(x *tensor.Tensor) (*tensor.Tensor, error)
	Sqrt(x *tensor.Tensor) (*tensor.Tensor, error)
	Exp(x *tensor.Tensor) (*tensor.Tensor, error)
	Log(x *tensor.Tensor) (*tensor.Tensor, error)
	Erf(x *tensor.Tensor) (*tensor.Tensor, error)
	Sin(x *tensor.Tensor) (*tensor.Tensor, error)
	Cos(x *tensor.Tensor) (*tensor.Tensor, error)
	Tan(x *tensor.Tensor) (*tensor.Tensor, error)
	Tanh(x *tensor.Tensor) (*tensor.Tensor, error)
	Reciprocal(x *tensor.Tensor) (*tensor.Tensor, error)

	// Activations.
	Relu(x *tensor.Tensor) (*tensor.Tensor, error)
	Sigmoid(x *tensor.Tensor) (*tensor.Tensor, error)
	LeakyRelu(x *tensor.Tensor, alpha float64) (*tensor.Tensor, error)
	Elu(x *tensor.Tensor, alpha float64) (*tensor.Tensor, error)
	Clamp(x *tensor.Tensor, min, max *float64) (*tensor.Tensor, error)
	Softmax(x *tensor.Tensor, axis int) (*tensor.Tensor, error)

	// Comparison and selection. Equal returns a Bool tensor; Where expects
	// a Bool condition.
	Equal(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Where(cond, a, b *tensor.Tensor) (*tensor.Tensor, error)
	And(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Or(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Not(x *tensor.Tensor) (*tensor.Tensor, error)

	// Reductions.
	ReduceMean(x *tensor.Tensor, axes []int, keepDims bool) (*tensor.Tensor, error)

	// Spatial resampling on NCHW tensors; mode is "nearest" or "linear".
	Resize(x *tensor.Tensor, sizes []int, mode string) (*tensor.Tensor, error)
}
