package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// Unary applies a one-argument backend primitive.
type Unary struct {
	Op string
	F  func(*tensor.Tensor) (*tensor.Tensor, error)
}

func (u *Unary) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need(u.Op, 1, inputs); err != nil {
		return nil, err
	}
	out, err := u.F(inputs[0])
	if err != nil {
		return nil, errors.Wrap(err, u.Op)
	}
	return one(out), nil
}

// Binary left-folds a two-argument backend primitive over all inputs, so
// variadic kinds such as Min and Max reduce naturally.
type Binary struct {
	Op string
	F  func(a, b *tensor.Tensor) (*tensor.Tensor, error)
}

func (u *Binary) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need(u.Op, 2, inputs); err != nil {
		return nil, err
	}
	out := inputs[0]
	var err error
	for _, rhs := range inputs[1:] {
		if out, err = u.F(out, rhs); err != nil {
			return nil, errors.Wrap(err, u.Op)
		}
	}
	return one(out), nil
}

// Where selects element-wise between two tensors by a bool condition.
type Where struct {
	Backend backend.Backend
}

func (u *Where) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("where", 3, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.Where(inputs[0], inputs[1], inputs[2])
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Clip clamps to [Min, Max]. Nil bounds are open; on newer opsets the bounds
// arrive as optional runtime inputs instead and override the fields.
type Clip struct {
	Backend  backend.Backend
	Min, Max *float64
}

func (u *Clip) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("clip", 1, inputs); err != nil {
		return nil, err
	}
	min, max := u.Min, u.Max
	if len(inputs) > 1 && inputs[1] != nil {
		v, err := inputs[1].Item()
		if err != nil {
			return nil, errors.Wrap(err, "clip min")
		}
		min = &v
	}
	if len(inputs) > 2 && inputs[2] != nil {
		v, err := inputs[2].Item()
		if err != nil {
			return nil, errors.Wrap(err, "clip max")
		}
		max = &v
	}
	out, err := u.Backend.Clamp(inputs[0], min, max)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// Add sums two tensors with broadcasting. A 1-D operand whose length matches
// the other operand's feature dimension is reshaped to broadcast there, so
// bias vectors line up with channel-major layouts.
type Add struct {
	Backend     backend.Backend
	FeatureAxis int
}

func (u *Add) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("add", 2, inputs); err != nil {
		return nil, err
	}
	x, y := inputs[0], inputs[1]
	if x.Rank() == 1 && y.Rank() > 1 {
		x, y = y, x
	}
	if y.Rank() == 1 && x.Rank() > u.FeatureAxis+1 && y.Shape()[0] == x.Shape()[u.FeatureAxis] {
		aligned, err := alignToAxis(y, x.Rank(), u.FeatureAxis)
		if err != nil {
			return nil, errors.Wrap(err, "add")
		}
		y = aligned
	}
	out, err := u.Backend.Add(x, y)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// alignToAxis views a 1-D tensor as rank-dimensional with its length at the
// given axis and 1 elsewhere.
func alignToAxis(t *tensor.Tensor, rank, axis int) (*tensor.Tensor, error) {
	shape := make(tensor.Shape, rank)
	for i := range shape {
		shape[i] = 1
	}
	shape[axis] = t.Shape()[0]
	return t.WithShape(shape)
}

// SubConst subtracts a captured constant from its single input.
type SubConst struct {
	Backend backend.Backend
	Y       *tensor.Tensor
}

func (u *SubConst) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("sub", 1, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.Sub(inputs[0], u.Y)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

// DivConst divides its single input by a captured constant.
type DivConst struct {
	Backend backend.Backend
	Y       *tensor.Tensor
}

func (u *DivConst) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("div", 1, inputs); err != nil {
		return nil, err
	}
	out, err := u.Backend.Div(inputs[0], u.Y)
	if err != nil {
		return nil, err
	}
	return one(out), nil
}
