package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// Linear is the affine unit: y = x·Wᵀ + b. Weight is stored [out, in];
// a fused MatMul+Add or a Gemm node both lower to this.
type Linear struct {
	Backend backend.Backend
	Weight  *tensor.Tensor
	Bias    *tensor.Tensor
	// FeatureAxis is the activation feature dimension, batch axis + 1.
	FeatureAxis int

	wt *tensor.Tensor // transposed weight, built on first use
}

// NewLinear binds an [out, in] weight and optional bias.
func NewLinear(be backend.Backend, weight, bias *tensor.Tensor, featureAxis int) (*Linear, error) {
	if weight.Rank() != 2 {
		return nil, errors.Errorf("linear weight must be 2-D, got %v", weight.Shape())
	}
	if bias != nil && bias.NumElements() != weight.Shape()[0] {
		return nil, errors.Errorf("linear bias %v does not match weight %v", bias.Shape(), weight.Shape())
	}
	return &Linear{Backend: be, Weight: weight, Bias: bias, FeatureAxis: featureAxis}, nil
}

// InFeatures returns the expected size of the input feature dimension.
func (u *Linear) InFeatures() int { return u.Weight.Shape()[1] }

// OutFeatures returns the size of the produced feature dimension.
func (u *Linear) OutFeatures() int { return u.Weight.Shape()[0] }

func (u *Linear) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("linear", 1, inputs); err != nil {
		return nil, err
	}
	if u.wt == nil {
		wt, err := tensor.Transpose(u.Weight)
		if err != nil {
			return nil, errors.Wrap(err, "linear weight")
		}
		u.wt = wt
	}
	out, err := u.Backend.MatMul(inputs[0], u.wt)
	if err != nil {
		return nil, errors.Wrap(err, "linear")
	}
	if u.Bias != nil {
		if out, err = u.Backend.Add(out, u.Bias); err != nil {
			return nil, errors.Wrap(err, "linear bias")
		}
	}
	return one(out), nil
}

// MatMul is the plain matrix-product primitive for nodes with no constant
// operand.
type MatMul struct {
	Backend backend.Backend
}

func (u *MatMul) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("matmul", 2, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.MatMul(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return one(out), nil
}
