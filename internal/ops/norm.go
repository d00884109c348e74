package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// BatchNorm applies inference-mode batch normalization over the channel
// axis: y = scale·(x − mean)/sqrt(var + eps) + bias.
type BatchNorm struct {
	Backend backend.Backend
	Scale   *tensor.Tensor
	Bias    *tensor.Tensor
	Mean    *tensor.Tensor
	Var     *tensor.Tensor
	Eps     float64
}

func (u *BatchNorm) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("batch_norm", 1, inputs); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() < 2 {
		return nil, errors.Errorf("batch_norm expects at least 2-D input, got %v", x.Shape())
	}
	std, err := u.channelStd(u.Var, x.DType())
	if err != nil {
		return nil, err
	}
	out, err := u.normalize(x, u.Mean, std, u.Scale, u.Bias)
	if err != nil {
		return nil, errors.Wrap(err, "batch_norm")
	}
	return one(out), nil
}

// channelStd computes sqrt(var + eps).
func (u *BatchNorm) channelStd(variance *tensor.Tensor, dtype tensor.DataType) (*tensor.Tensor, error) {
	eps, err := tensor.Full(tensor.Shape{1}, dtype, u.Eps)
	if err != nil {
		return nil, err
	}
	shifted, err := u.Backend.Add(variance, eps)
	if err != nil {
		return nil, err
	}
	return u.Backend.Sqrt(shifted)
}

// normalize applies (x − mean)/std·scale + bias with every per-channel
// operand aligned to axis 1.
func (u *BatchNorm) normalize(x, mean, std, scale, bias *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	var err error
	for _, step := range []struct {
		operand *tensor.Tensor
		apply   func(a, b *tensor.Tensor) (*tensor.Tensor, error)
	}{
		{mean, u.Backend.Sub},
		{std, u.Backend.Div},
		{scale, u.Backend.Mul},
		{bias, u.Backend.Add},
	} {
		if step.operand == nil {
			continue
		}
		operand := step.operand
		if operand.Rank() == 1 && x.Rank() > 2 {
			if operand, err = alignToAxis(operand, x.Rank(), 1); err != nil {
				return nil, err
			}
		}
		if out, err = step.apply(out, operand); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InstanceNorm normalizes each (batch, channel) plane over its spatial
// dimensions using statistics computed at run time.
type InstanceNorm struct {
	Backend backend.Backend
	Scale   *tensor.Tensor
	Bias    *tensor.Tensor
	Eps     float64
}

func (u *InstanceNorm) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("instance_norm", 1, inputs); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() < 3 {
		return nil, errors.Errorf("instance_norm expects at least 3-D input, got %v", x.Shape())
	}
	axes := make([]int, 0, x.Rank()-2)
	for i := 2; i < x.Rank(); i++ {
		axes = append(axes, i)
	}
	mean, err := u.Backend.ReduceMean(x, axes, true)
	if err != nil {
		return nil, errors.Wrap(err, "instance_norm mean")
	}
	centered, err := u.Backend.Sub(x, mean)
	if err != nil {
		return nil, err
	}
	sq, err := u.Backend.Mul(centered, centered)
	if err != nil {
		return nil, err
	}
	variance, err := u.Backend.ReduceMean(sq, axes, true)
	if err != nil {
		return nil, errors.Wrap(err, "instance_norm variance")
	}
	bn := &BatchNorm{Backend: u.Backend, Eps: u.Eps}
	std, err := bn.channelStd(variance, x.DType())
	if err != nil {
		return nil, err
	}
	out, err := u.Backend.Div(centered, std)
	if err != nil {
		return nil, err
	}
	if u.Scale != nil {
		scale, err := alignToAxis(u.Scale, x.Rank(), 1)
		if err != nil {
			return nil, err
		}
		if out, err = u.Backend.Mul(out, scale); err != nil {
			return nil, err
		}
	}
	if u.Bias != nil {
		bias, err := alignToAxis(u.Bias, x.Rank(), 1)
		if err != nil {
			return nil, err
		}
		if out, err = u.Backend.Add(out, bias); err != nil {
			return nil, err
		}
	}
	return one(out), nil
}
