package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

// Reshape changes the view of its input. Target is resolved at translation
// time when the shape was an initializer; nil means the shape arrives as the
// second runtime input. A 0 dimension copies the input dimension, -1 is
// inferred.
type Reshape struct {
	Target tensor.Shape
}

func (u *Reshape) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("reshape", 1, inputs); err != nil {
		return nil, err
	}
	target := u.Target
	if target == nil {
		if err := need("reshape", 2, inputs); err != nil {
			return nil, err
		}
		dims, err := inputs[1].Ints()
		if err != nil {
			return nil, errors.Wrap(err, "reshape shape")
		}
		target = tensor.Shape(dims)
	}
	resolved := target.Clone()
	for i, d := range resolved {
		if d == 0 && i < inputs[0].Rank() {
			resolved[i] = inputs[0].Shape()[i]
		}
	}
	out, err := tensor.Reshape(inputs[0], resolved)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Flatten collapses to 2-D around Axis.
type Flatten struct {
	Axis int
}

func (u *Flatten) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("flatten", 1, inputs); err != nil {
		return nil, err
	}
	out, err := tensor.Flatten(inputs[0], u.Axis)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Squeeze drops size-1 dimensions. Nil Axes means: take them from the second
// runtime input when present, otherwise drop every size-1 dimension.
type Squeeze struct {
	Axes []int
}

func (u *Squeeze) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("squeeze", 1, inputs); err != nil {
		return nil, err
	}
	axes := u.Axes
	if axes == nil && len(inputs) > 1 && inputs[1] != nil {
		var err error
		if axes, err = inputs[1].Ints(); err != nil {
			return nil, errors.Wrap(err, "squeeze axes")
		}
	}
	out, err := tensor.Squeeze(inputs[0], axes...)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Unsqueeze inserts size-1 dimensions. Nil Axes means they arrive as the
// second runtime input.
type Unsqueeze struct {
	Axes []int
}

func (u *Unsqueeze) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("unsqueeze", 1, inputs); err != nil {
		return nil, err
	}
	axes := u.Axes
	if axes == nil {
		if err := need("unsqueeze", 2, inputs); err != nil {
			return nil, err
		}
		var err error
		if axes, err = inputs[1].Ints(); err != nil {
			return nil, errors.Wrap(err, "unsqueeze axes")
		}
	}
	out, err := tensor.Unsqueeze(inputs[0], axes...)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Transpose permutes dimensions; an empty permutation reverses them.
type Transpose struct {
	Perm []int
}

func (u *Transpose) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("transpose", 1, inputs); err != nil {
		return nil, err
	}
	out, err := tensor.Transpose(inputs[0], u.Perm...)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Concat joins all runtime inputs along Axis.
type Concat struct {
	Axis int
}

func (u *Concat) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("concat", 1, inputs); err != nil {
		return nil, err
	}
	out, err := tensor.Concat(inputs, u.Axis)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Split divides the input along Axis. Explicit Sizes win; otherwise the
// second runtime input supplies them; otherwise the input splits into
// NumOutputs equal segments.
type Split struct {
	Axis       int
	Sizes      []int
	NumOutputs int
}

func (u *Split) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("split", 1, inputs); err != nil {
		return nil, err
	}
	sizes := u.Sizes
	if sizes == nil && len(inputs) > 1 && inputs[1] != nil {
		var err error
		if sizes, err = inputs[1].Ints(); err != nil {
			return nil, errors.Wrap(err, "split sizes")
		}
	}
	if sizes != nil {
		return tensor.Split(inputs[0], u.Axis, sizes)
	}
	if u.NumOutputs <= 0 {
		return nil, errors.New("split has neither sizes nor an output count")
	}
	return tensor.SplitEven(inputs[0], u.Axis, u.NumOutputs)
}

// Slice extracts strided ranges. Attribute form fills the fields at
// translation time; otherwise starts/ends/axes/steps arrive as runtime
// inputs two through five.
type Slice struct {
	Starts, Ends, Axes, Steps []int
}

func (u *Slice) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("slice", 1, inputs); err != nil {
		return nil, err
	}
	starts, ends, axes, steps := u.Starts, u.Ends, u.Axes, u.Steps
	if starts == nil {
		if err := need("slice", 3, inputs); err != nil {
			return nil, err
		}
		var err error
		if starts, err = inputs[1].Ints(); err != nil {
			return nil, errors.Wrap(err, "slice starts")
		}
		if ends, err = inputs[2].Ints(); err != nil {
			return nil, errors.Wrap(err, "slice ends")
		}
		if len(inputs) > 3 && inputs[3] != nil {
			if axes, err = inputs[3].Ints(); err != nil {
				return nil, errors.Wrap(err, "slice axes")
			}
		}
		if len(inputs) > 4 && inputs[4] != nil {
			if steps, err = inputs[4].Ints(); err != nil {
				return nil, errors.Wrap(err, "slice steps")
			}
		}
	}
	out, err := tensor.Slice(inputs[0], starts, ends, axes, steps)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Gather selects slices along Axis by an integer index tensor.
type Gather struct {
	Axis int
}

func (u *Gather) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("gather", 2, inputs); err != nil {
		return nil, err
	}
	out, err := tensor.Gather(inputs[0], inputs[1], u.Axis)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Cast converts the input to the target element type.
type Cast struct {
	To tensor.DataType
}

func (u *Cast) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("cast", 1, inputs); err != nil {
		return nil, err
	}
	out, err := tensor.Cast(inputs[0], u.To)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Pad adds constant padding. Nil Pads means they arrive as the second
// runtime input, with an optional scalar value as the third.
type Pad struct {
	Mode  string
	Pads  []int
	Value float64
}

func (u *Pad) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("pad", 1, inputs); err != nil {
		return nil, err
	}
	if u.Mode != "" && u.Mode != "constant" {
		return nil, errors.Errorf("pad mode %q not supported", u.Mode)
	}
	pads, value := u.Pads, u.Value
	if pads == nil {
		if err := need("pad", 2, inputs); err != nil {
			return nil, err
		}
		var err error
		if pads, err = inputs[1].Ints(); err != nil {
			return nil, errors.Wrap(err, "pad counts")
		}
		if len(inputs) > 2 && inputs[2] != nil {
			if value, err = inputs[2].Item(); err != nil {
				return nil, errors.Wrap(err, "pad value")
			}
		}
	}
	out, err := tensor.Pad(inputs[0], pads, value)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// OneHot expands indices into one-hot vectors at Axis. Depth and the
// [off, on] value pair arrive as runtime inputs.
type OneHot struct {
	Axis int
}

func (u *OneHot) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("one_hot", 3, inputs); err != nil {
		return nil, err
	}
	depth, err := inputs[1].Item()
	if err != nil {
		return nil, errors.Wrap(err, "one_hot depth")
	}
	out, err := tensor.OneHot(inputs[0], int(depth), u.Axis, inputs[2])
	if err != nil {
		return nil, err
	}
	return one(out), nil
}
