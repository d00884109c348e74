package ops

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

// Constant yields a literal tensor decoded at translation time. It takes no
// runtime inputs.
type Constant struct {
	Value *tensor.Tensor
}

func (u *Constant) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	return one(u.Value), nil
}

// ConstantOfShape fills a tensor of the runtime-provided shape with a fixed
// scalar. A nil Value means float32 zero.
type ConstantOfShape struct {
	Value *tensor.Tensor
}

func (u *ConstantOfShape) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("constant_of_shape", 1, inputs); err != nil {
		return nil, err
	}
	dims, err := inputs[0].Ints()
	if err != nil {
		return nil, errors.Wrap(err, "constant_of_shape")
	}
	dtype := tensor.Float32
	value := 0.0
	if u.Value != nil {
		dtype = u.Value.DType()
		if value, err = u.Value.Item(); err != nil {
			return nil, errors.Wrap(err, "constant_of_shape value")
		}
	}
	out, err := tensor.Full(tensor.Shape(dims), dtype, value)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Shape reports the input's dimensions as a 1-D int64 tensor.
type Shape struct{}

func (Shape) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("shape", 1, inputs); err != nil {
		return nil, err
	}
	shape := inputs[0].Shape()
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	out, err := tensor.FromInt64(tensor.Shape{len(dims)}, dims)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Range produces the arithmetic sequence [start, limit) with the given step.
// The output dtype follows the start tensor.
type Range struct{}

func (Range) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("range", 3, inputs); err != nil {
		return nil, err
	}
	start, err := inputs[0].Item()
	if err != nil {
		return nil, errors.Wrap(err, "range start")
	}
	limit, err := inputs[1].Item()
	if err != nil {
		return nil, errors.Wrap(err, "range limit")
	}
	delta, err := inputs[2].Item()
	if err != nil {
		return nil, errors.Wrap(err, "range delta")
	}
	if delta == 0 {
		return nil, errors.New("range delta must be nonzero")
	}
	n := int(math.Ceil((limit - start) / delta))
	if n <= 0 {
		return nil, errors.Errorf("range [%v, %v) step %v is empty", start, limit, delta)
	}
	out, err := tensor.New(tensor.Shape{n}, inputs[0].DType())
	if err != nil {
		return nil, err
	}
	switch inputs[0].DType() {
	case tensor.Float32:
		dst := out.Float32s()
		for i := range dst {
			dst[i] = float32(start + float64(i)*delta)
		}
	case tensor.Float64:
		dst := out.Float64s()
		for i := range dst {
			dst[i] = start + float64(i)*delta
		}
	case tensor.Int32:
		dst := out.Int32s()
		for i := range dst {
			dst[i] = int32(start + float64(i)*delta)
		}
	case tensor.Int64:
		dst := out.Int64s()
		for i := range dst {
			dst[i] = int64(start + float64(i)*delta)
		}
	default:
		return nil, errors.Errorf("range does not support dtype %s", inputs[0].DType())
	}
	return one(out), nil
}

// Expand broadcasts the input to the shape named by the second input.
type Expand struct{}

func (Expand) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("expand", 2, inputs); err != nil {
		return nil, err
	}
	dims, err := inputs[1].Ints()
	if err != nil {
		return nil, errors.Wrap(err, "expand shape")
	}
	out, err := tensor.Expand(inputs[0], tensor.Shape(dims))
	if err != nil {
		return nil, err
	}
	return one(out), nil
}
