package tensor

import (
	"unsafe"

	"github.com/pkg/errors"
)

// Tensor is a dense, row-major, byte-backed tensor. It is a plain value
// container: all numeric operations live in the backend packages, all
// layout operations in this package.
type Tensor struct {
	data  []byte
	shape Shape
	dtype DataType
}

// New allocates a zero-filled tensor with the given shape and element type.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid shape")
	}
	return &Tensor{
		data:  make([]byte, shape.NumElements()*dtype.Size()),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// FromFloat32 builds a float32 tensor from a value slice.
func FromFloat32(shape Shape, values []float32) (*Tensor, error) {
	t, err := New(shape, Float32)
	if err != nil {
		return nil, err
	}
	if len(values) != t.NumElements() {
		return nil, errors.Errorf("shape %v needs %d values, got %d", shape, t.NumElements(), len(values))
	}
	copy(t.Float32s(), values)
	return t, nil
}

// FromInt64 builds an int64 tensor from a value slice.
func FromInt64(shape Shape, values []int64) (*Tensor, error) {
	t, err := New(shape, Int64)
	if err != nil {
		return nil, err
	}
	if len(values) != t.NumElements() {
		return nil, errors.Errorf("shape %v needs %d values, got %d", shape, t.NumElements(), len(values))
	}
	copy(t.Int64s(), values)
	return t, nil
}

// Full builds a tensor filled with a single value.
func Full(shape Shape, dtype DataType, value float64) (*Tensor, error) {
	t, err := New(shape, dtype)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		fill(t.Float32s(), float32(value))
	case Float64:
		fill(t.Float64s(), value)
	case Int32:
		fill(t.Int32s(), int32(value))
	case Int64:
		fill(t.Int64s(), int64(value))
	case Uint8:
		fill(t.Uint8s(), uint8(value))
	case Bool:
		fill(t.Bools(), value != 0)
	}
	return t, nil
}

func fill[T any](dst []T, v T) {
	for i := range dst {
		dst[i] = v
	}
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape }

// DType returns the tensor's element type.
func (t *Tensor) DType() DataType { return t.dtype }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int { return t.shape.NumElements() }

// ByteSize returns the backing buffer size in bytes.
func (t *Tensor) ByteSize() int { return len(t.data) }

// Data returns the raw backing bytes.
func (t *Tensor) Data() []byte { return t.data }

// Float32s interprets the data as []float32. Panics on dtype mismatch.
func (t *Tensor) Float32s() []float32 {
	t.check(Float32)
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Float64s interprets the data as []float64. Panics on dtype mismatch.
func (t *Tensor) Float64s() []float64 {
	t.check(Float64)
	return unsafe.Slice((*float64)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Int32s interprets the data as []int32. Panics on dtype mismatch.
func (t *Tensor) Int32s() []int32 {
	t.check(Int32)
	return unsafe.Slice((*int32)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Int64s interprets the data as []int64. Panics on dtype mismatch.
func (t *Tensor) Int64s() []int64 {
	t.check(Int64)
	return unsafe.Slice((*int64)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Uint8s interprets the data as []uint8. Panics on dtype mismatch.
func (t *Tensor) Uint8s() []uint8 {
	t.check(Uint8)
	return t.data
}

// Bools interprets the data as []bool. Panics on dtype mismatch.
func (t *Tensor) Bools() []bool {
	t.check(Bool)
	return unsafe.Slice((*bool)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

func (t *Tensor) check(dt DataType) {
	if t.dtype != dt {
		panic("tensor dtype is " + t.dtype.String() + ", not " + dt.String())
	}
	if len(t.data) == 0 {
		panic("tensor has no data")
	}
}

// Floats widens the tensor to []float64 regardless of numeric dtype.
// Used by kernels that accept any numeric input.
func (t *Tensor) Floats() ([]float64, error) {
	n := t.NumElements()
	out := make([]float64, n)
	switch t.dtype {
	case Float32:
		for i, v := range t.Float32s() {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, t.Float64s())
	case Int32:
		for i, v := range t.Int32s() {
			out[i] = float64(v)
		}
	case Int64:
		for i, v := range t.Int64s() {
			out[i] = float64(v)
		}
	case Uint8:
		for i, v := range t.Uint8s() {
			out[i] = float64(v)
		}
	default:
		return nil, errors.Errorf("cannot widen %s tensor to float", t.dtype)
	}
	return out, nil
}

// Ints reads the tensor as a flat []int. Only integer dtypes are accepted;
// used for shape-, axis- and index-carrying tensors.
func (t *Tensor) Ints() ([]int, error) {
	n := t.NumElements()
	out := make([]int, n)
	switch t.dtype {
	case Int64:
		for i, v := range t.Int64s() {
			out[i] = int(v)
		}
	case Int32:
		for i, v := range t.Int32s() {
			out[i] = int(v)
		}
	default:
		return nil, errors.Errorf("expected an integer tensor, got %s", t.dtype)
	}
	return out, nil
}

// Item returns the single element of a one-element tensor as float64.
func (t *Tensor) Item() (float64, error) {
	if t.NumElements() != 1 {
		return 0, errors.Errorf("Item on tensor with %d elements", t.NumElements())
	}
	vals, err := t.Floats()
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	data := make([]byte, len(t.data))
	copy(data, t.data)
	return &Tensor{data: data, shape: t.shape.Clone(), dtype: t.dtype}
}

// WithShape returns a view over the same data with a new shape. The element
// count must match. A single -1 dimension is inferred.
func (t *Tensor) WithShape(shape Shape) (*Tensor, error) {
	resolved, err := ResolveDim(shape, t.NumElements())
	if err != nil {
		return nil, err
	}
	return &Tensor{data: t.data, shape: resolved, dtype: t.dtype}, nil
}

// ResolveDim resolves at most one -1 entry in a target shape against a known
// element count. A 0 entry is invalid here; callers substitute it beforehand.
func ResolveDim(shape Shape, numElements int) (Shape, error) {
	resolved := shape.Clone()
	infer := -1
	known := 1
	for i, dim := range resolved {
		switch {
		case dim == -1:
			if infer >= 0 {
				return nil, errors.Errorf("shape %v has more than one -1", shape)
			}
			infer = i
		case dim <= 0:
			return nil, errors.Errorf("invalid dimension %d in shape %v", dim, shape)
		default:
			known *= dim
		}
	}
	if infer >= 0 {
		if known == 0 || numElements%known != 0 {
			return nil, errors.Errorf("cannot infer -1 in shape %v for %d elements", shape, numElements)
		}
		resolved[infer] = numElements / known
	}
	if resolved.NumElements() != numElements {
		return nil, errors.Errorf("shape %v does not hold %d elements", shape, numElements)
	}
	return resolved, nil
}
