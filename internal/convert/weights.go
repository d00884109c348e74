// Package convert lowers a parsed ONNX graph into an ordered sequence of
// executable operator units and assembles them into a runnable model.
package convert

import (
	encbinary "encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/onnx2born/internal/onnxpb"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// WeightIndex maps initializer names to their tensors. Built once per graph;
// decoding is lazy and cached, reads are side-effect free afterwards.
type WeightIndex struct {
	protos map[string]*onnxpb.TensorProto
	cache  map[string]*tensor.Tensor
}

// NewWeightIndex indexes a graph's initializers.
func NewWeightIndex(graph *onnxpb.GraphProto) *WeightIndex {
	w := &WeightIndex{
		protos: make(map[string]*onnxpb.TensorProto, len(graph.Initializers)),
		cache:  make(map[string]*tensor.Tensor, len(graph.Initializers)),
	}
	for i := range graph.Initializers {
		tp := &graph.Initializers[i]
		w.protos[tp.Name] = tp
	}
	return w
}

// Has reports whether name is an initializer.
func (w *WeightIndex) Has(name string) bool {
	_, ok := w.protos[name]
	return ok
}

// Len returns the number of initializers.
func (w *WeightIndex) Len() int { return len(w.protos) }

// Names returns all initializer names in arbitrary order.
func (w *WeightIndex) Names() []string {
	names := make([]string, 0, len(w.protos))
	for name := range w.protos {
		names = append(names, name)
	}
	return names
}

// Tensor decodes the named initializer, caching the result.
func (w *WeightIndex) Tensor(name string) (*tensor.Tensor, error) {
	if t, ok := w.cache[name]; ok {
		return t, nil
	}
	tp, ok := w.protos[name]
	if !ok {
		return nil, errors.Errorf("no initializer named %q", name)
	}
	t, err := DecodeTensor(tp)
	if err != nil {
		return nil, errors.Wrapf(err, "initializer %q", name)
	}
	w.cache[name] = t
	return t, nil
}

// dtypeOf maps an ONNX element type to the runtime's DataType. FLOAT16
// widens to float32.
func dtypeOf(onnxType int32) (tensor.DataType, error) {
	switch onnxType {
	case onnxpb.TensorFloat, onnxpb.TensorFloat16:
		return tensor.Float32, nil
	case onnxpb.TensorDouble:
		return tensor.Float64, nil
	case onnxpb.TensorInt32:
		return tensor.Int32, nil
	case onnxpb.TensorInt64:
		return tensor.Int64, nil
	case onnxpb.TensorUint8:
		return tensor.Uint8, nil
	case onnxpb.TensorBool:
		return tensor.Bool, nil
	default:
		return 0, errors.Errorf("unsupported tensor element type %d", onnxType)
	}
}

// DecodeTensor converts a TensorProto to a runtime tensor, reading raw_data
// when present and the typed storage field otherwise.
func DecodeTensor(tp *onnxpb.TensorProto) (*tensor.Tensor, error) {
	dtype, err := dtypeOf(tp.DataType)
	if err != nil {
		return nil, err
	}
	shape := make(tensor.Shape, len(tp.Dims))
	for i, d := range tp.Dims {
		shape[i] = int(d)
	}
	out, err := tensor.New(shape, dtype)
	if err != nil {
		return nil, err
	}
	n := out.NumElements()

	if tp.DataType == onnxpb.TensorFloat16 {
		return out, decodeFloat16(tp, out, n)
	}
	if tp.RawData != nil {
		if len(tp.RawData) != out.ByteSize() {
			return nil, errors.Errorf("raw data holds %d bytes, shape %v needs %d", len(tp.RawData), shape, out.ByteSize())
		}
		copy(out.Data(), tp.RawData)
		return out, nil
	}

	switch tp.DataType {
	case onnxpb.TensorFloat:
		if len(tp.FloatData) != n {
			return nil, errors.Errorf("float data holds %d values, shape %v needs %d", len(tp.FloatData), shape, n)
		}
		copy(out.Float32s(), tp.FloatData)
	case onnxpb.TensorDouble:
		if len(tp.DoubleData) != n {
			return nil, errors.Errorf("double data holds %d values, shape %v needs %d", len(tp.DoubleData), shape, n)
		}
		copy(out.Float64s(), tp.DoubleData)
	case onnxpb.TensorInt32:
		if len(tp.Int32Data) != n {
			return nil, errors.Errorf("int32 data holds %d values, shape %v needs %d", len(tp.Int32Data), shape, n)
		}
		copy(out.Int32s(), tp.Int32Data)
	case onnxpb.TensorInt64:
		if len(tp.Int64Data) != n {
			return nil, errors.Errorf("int64 data holds %d values, shape %v needs %d", len(tp.Int64Data), shape, n)
		}
		copy(out.Int64s(), tp.Int64Data)
	case onnxpb.TensorUint8:
		// Narrow types ride in int32_data.
		if len(tp.Int32Data) != n {
			return nil, errors.Errorf("uint8 data holds %d values, shape %v needs %d", len(tp.Int32Data), shape, n)
		}
		dst := out.Uint8s()
		for i, v := range tp.Int32Data {
			dst[i] = uint8(v)
		}
	case onnxpb.TensorBool:
		if len(tp.Int32Data) != n {
			return nil, errors.Errorf("bool data holds %d values, shape %v needs %d", len(tp.Int32Data), shape, n)
		}
		dst := out.Bools()
		for i, v := range tp.Int32Data {
			dst[i] = v != 0
		}
	default:
		return nil, errors.Errorf("unsupported tensor element type %d", tp.DataType)
	}
	return out, nil
}

func decodeFloat16(tp *onnxpb.TensorProto, out *tensor.Tensor, n int) error {
	dst := out.Float32s()
	if tp.RawData != nil {
		if len(tp.RawData) != 2*n {
			return errors.Errorf("float16 raw data holds %d bytes, need %d", len(tp.RawData), 2*n)
		}
		for i := 0; i < n; i++ {
			bits := encbinary.LittleEndian.Uint16(tp.RawData[2*i:])
			dst[i] = float16.Frombits(bits).Float32()
		}
		return nil
	}
	// Bits also ride in int32_data.
	if len(tp.Int32Data) != n {
		return errors.Errorf("float16 data holds %d values, need %d", len(tp.Int32Data), n)
	}
	for i, v := range tp.Int32Data {
		dst[i] = float16.Frombits(uint16(v)).Float32()
	}
	return nil
}

// scalarFloat wraps a float64 in a one-element tensor of the given dtype.
func scalarFloat(dtype tensor.DataType, v float64) (*tensor.Tensor, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, errors.Errorf("non-finite scalar %v", v)
	}
	return tensor.Full(tensor.Shape{1}, dtype, v)
}
