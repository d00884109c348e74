package tensor

import "github.com/pkg/errors"

// Cast converts a tensor to another element type, rounding toward zero for
// float-to-integer conversions.
func Cast(t *Tensor, dtype DataType) (*Tensor, error) {
	if t.dtype == dtype {
		return t.Clone(), nil
	}
	out, err := New(t.shape, dtype)
	if err != nil {
		return nil, err
	}

	var src []float64
	if t.dtype == Bool {
		src = make([]float64, t.NumElements())
		for i, v := range t.Bools() {
			if v {
				src[i] = 1
			}
		}
	} else {
		src, err = t.Floats()
		if err != nil {
			return nil, errors.Wrap(err, "cast")
		}
	}

	switch dtype {
	case Float32:
		dst := out.Float32s()
		for i, v := range src {
			dst[i] = float32(v)
		}
	case Float64:
		copy(out.Float64s(), src)
	case Int32:
		dst := out.Int32s()
		for i, v := range src {
			dst[i] = int32(v)
		}
	case Int64:
		dst := out.Int64s()
		for i, v := range src {
			dst[i] = int64(v)
		}
	case Uint8:
		dst := out.Uint8s()
		for i, v := range src {
			dst[i] = uint8(v)
		}
	case Bool:
		dst := out.Bools()
		for i, v := range src {
			dst[i] = v != 0
		}
	default:
		return nil, errors.Errorf("cast to %s not supported", dtype)
	}
	return out, nil
}
