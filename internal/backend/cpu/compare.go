package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

// Equal compares element-wise with broadcasting and returns a Bool tensor.
func (b *Backend) Equal(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	if a.DType() != c.DType() {
		return nil, errors.Errorf("equal: dtype mismatch %s vs %s", a.DType(), c.DType())
	}
	osh, err := tensor.Broadcast(a.Shape(), c.Shape())
	if err != nil {
		return nil, errors.Wrap(err, "equal")
	}
	out, err := tensor.New(osh, tensor.Bool)
	if err != nil {
		return nil, err
	}
	dst := out.Bools()
	switch a.DType() {
	case tensor.Float32:
		compareLoop(dst, a.Float32s(), c.Float32s(), a.Shape(), c.Shape(), osh)
	case tensor.Float64:
		compareLoop(dst, a.Float64s(), c.Float64s(), a.Shape(), c.Shape(), osh)
	case tensor.Int32:
		compareLoop(dst, a.Int32s(), c.Int32s(), a.Shape(), c.Shape(), osh)
	case tensor.Int64:
		compareLoop(dst, a.Int64s(), c.Int64s(), a.Shape(), c.Shape(), osh)
	case tensor.Uint8:
		compareLoop(dst, a.Uint8s(), c.Uint8s(), a.Shape(), c.Shape(), osh)
	case tensor.Bool:
		compareLoop(dst, a.Bools(), c.Bools(), a.Shape(), c.Shape(), osh)
	default:
		return nil, errors.Errorf("equal: unsupported dtype %s", a.DType())
	}
	return out, nil
}

func compareLoop[T comparable](dst []bool, av, bv []T, ash, bsh, osh tensor.Shape) {
	as := tensor.BroadcastStrides(ash, osh)
	bs := tensor.BroadcastStrides(bsh, osh)
	coord := make([]int, len(osh))
	for i := range dst {
		ai, bi := 0, 0
		for d := range coord {
			ai += coord[d] * as[d]
			bi += coord[d] * bs[d]
		}
		dst[i] = av[ai] == bv[bi]
		odometer(coord, osh)
	}
}

// Where selects a where cond is true, b otherwise, with broadcasting.
func (b *Backend) Where(cond, x, y *tensor.Tensor) (*tensor.Tensor, error) {
	if cond.DType() != tensor.Bool {
		return nil, errors.Errorf("where condition must be bool, got %s", cond.DType())
	}
	if x.DType() != y.DType() {
		return nil, errors.Errorf("where: dtype mismatch %s vs %s", x.DType(), y.DType())
	}
	osh, err := tensor.Broadcast(cond.Shape(), x.Shape())
	if err == nil {
		osh, err = tensor.Broadcast(osh, y.Shape())
	}
	if err != nil {
		return nil, errors.Wrap(err, "where")
	}
	out, err := tensor.New(osh, x.DType())
	if err != nil {
		return nil, err
	}

	cs := tensor.BroadcastStrides(cond.Shape(), osh)
	xs := tensor.BroadcastStrides(x.Shape(), osh)
	ys := tensor.BroadcastStrides(y.Shape(), osh)
	cv := cond.Bools()
	es := x.DType().Size()
	xd, yd, od := x.Data(), y.Data(), out.Data()
	coord := make([]int, len(osh))
	for i := 0; i < osh.NumElements(); i++ {
		ci, xi, yi := 0, 0, 0
		for d := range coord {
			ci += coord[d] * cs[d]
			xi += coord[d] * xs[d]
			yi += coord[d] * ys[d]
		}
		if cv[ci] {
			copy(od[i*es:(i+1)*es], xd[xi*es:(xi+1)*es])
		} else {
			copy(od[i*es:(i+1)*es], yd[yi*es:(yi+1)*es])
		}
		odometer(coord, osh)
	}
	return out, nil
}

func (b *Backend) boolBinary(name string, a, c *tensor.Tensor, f func(bool, bool) bool) (*tensor.Tensor, error) {
	if a.DType() != tensor.Bool || c.DType() != tensor.Bool {
		return nil, errors.Errorf("%s requires bool tensors, got %s and %s", name, a.DType(), c.DType())
	}
	osh, err := tensor.Broadcast(a.Shape(), c.Shape())
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	out, err := tensor.New(osh, tensor.Bool)
	if err != nil {
		return nil, err
	}
	bcastLoop(out.Bools(), a.Bools(), c.Bools(), a.Shape(), c.Shape(), osh, f)
	return out, nil
}

// And computes logical AND with broadcasting.
func (b *Backend) And(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	return b.boolBinary("and", a, c, func(x, y bool) bool { return x && y })
}

// Or computes logical OR with broadcasting.
func (b *Backend) Or(a, c *tensor.Tensor) (*tensor.Tensor, error) {
	return b.boolBinary("or", a, c, func(x, y bool) bool { return x || y })
}

// Not negates a bool tensor.
func (b *Backend) Not(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.DType() != tensor.Bool {
		return nil, errors.Errorf("not requires a bool tensor, got %s", x.DType())
	}
	out, err := tensor.New(x.Shape(), tensor.Bool)
	if err != nil {
		return nil, err
	}
	dst := out.Bools()
	for i, v := range x.Bools() {
		dst[i] = !v
	}
	return out, nil
}
