package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// ReduceMean averages over Axes; empty means every axis.
type ReduceMean struct {
	Backend  backend.Backend
	Axes     []int
	KeepDims bool
}

func (u *ReduceMean) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("reduce_mean", 1, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.ReduceMean(inputs[0], u.Axes, u.KeepDims)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Softmax normalizes along Axis.
type Softmax struct {
	Backend backend.Backend
	Axis    int
}

func (u *Softmax) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("softmax", 1, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.Softmax(inputs[0], u.Axis)
	if err != nil {
		return nil, errors.Wrap(err, "softmax")
	}
	return one(out), nil
}
