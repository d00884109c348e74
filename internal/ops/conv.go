package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// Conv2D applies a bound 2-D convolution over NCHW input.
type Conv2D struct {
	Backend backend.Backend
	Weight  *tensor.Tensor
	Bias    *tensor.Tensor
	Params  backend.ConvParams
}

func (u *Conv2D) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("conv", 1, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.Conv2D(inputs[0], u.Weight, u.Bias, u.Params)
	if err != nil {
		return nil, errors.Wrap(err, "conv")
	}
	return one(out), nil
}

// ConvTranspose2D applies a bound 2-D transposed convolution.
type ConvTranspose2D struct {
	Backend backend.Backend
	Weight  *tensor.Tensor
	Bias    *tensor.Tensor
	Params  backend.ConvParams
}

func (u *ConvTranspose2D) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("conv_transpose", 1, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.ConvTranspose2D(inputs[0], u.Weight, u.Bias, u.Params)
	if err != nil {
		return nil, errors.Wrap(err, "conv_transpose")
	}
	return one(out), nil
}

// MaxPool2D slides a max window over NCHW input.
type MaxPool2D struct {
	Backend backend.Backend
	Params  backend.PoolParams
}

func (u *MaxPool2D) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("max_pool", 1, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.MaxPool2D(inputs[0], u.Params)
	if err != nil {
		return nil, errors.Wrap(err, "max_pool")
	}
	return one(out), nil
}

// AvgPool2D slides an average window over NCHW input.
type AvgPool2D struct {
	Backend backend.Backend
	Params  backend.PoolParams
}

func (u *AvgPool2D) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("avg_pool", 1, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.AvgPool2D(inputs[0], u.Params)
	if err != nil {
		return nil, errors.Wrap(err, "avg_pool")
	}
	return one(out), nil
}

// GlobalAvgPool averages every spatial dimension down to 1, keeping rank.
type GlobalAvgPool struct {
	Backend backend.Backend
}

func (u *GlobalAvgPool) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("global_avg_pool", 1, inputs); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() < 3 {
		return nil, errors.Errorf("global_avg_pool expects at least 3-D input, got %v", x.Shape())
	}
	axes := make([]int, 0, x.Rank()-2)
	for i := 2; i < x.Rank(); i++ {
		axes = append(axes, i)
	}
	out, err := u.Backend.ReduceMean(x, axes, true)
	if err != nil {
		return nil, errors.Wrap(err, "global_avg_pool")
	}
	return one(out), nil
}
