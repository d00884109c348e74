package ops

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// Resize resamples the spatial dimensions of an NCHW tensor. Scales comes
// from the node attribute on older opsets; newer opsets pass scales or
// explicit sizes as runtime inputs (with an ignored roi input in between).
type Resize struct {
	Backend backend.Backend
	Mode    string
	Scales  []float64
}

// Upsample is the pre-Resize spelling of the same operation.
type Upsample = Resize

func (u *Resize) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("resize", 1, inputs); err != nil {
		return nil, err
	}
	x := inputs[0]
	sizes, err := u.targetSizes(x, inputs[1:])
	if err != nil {
		return nil, errors.Wrap(err, "resize")
	}
	for i := 0; i < len(sizes)-2; i++ {
		if sizes[i] != x.Shape()[i] {
			return nil, errors.Errorf("resize only supports spatial dimensions, target %v for input %v", sizes, x.Shape())
		}
	}
	out, err := u.Backend.Resize(x, sizes[len(sizes)-2:], u.Mode)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

func (u *Resize) targetSizes(x *tensor.Tensor, rest []*tensor.Tensor) ([]int, error) {
	scales := u.Scales
	for _, t := range rest {
		if t == nil || t.NumElements() != x.Rank() {
			continue
		}
		if !t.DType().IsFloat() {
			// Explicit per-axis sizes.
			return t.Ints()
		}
		vals, err := t.Floats()
		if err != nil {
			return nil, err
		}
		scales = vals
	}
	if scales == nil {
		return nil, errors.New("neither scales nor sizes provided")
	}
	if len(scales) != x.Rank() {
		return nil, errors.Errorf("got %d scales for rank %d", len(scales), x.Rank())
	}
	sizes := make([]int, x.Rank())
	for i, s := range scales {
		sizes[i] = int(math.Floor(float64(x.Shape()[i]) * s))
	}
	return sizes, nil
}
