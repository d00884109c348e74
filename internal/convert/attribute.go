package convert

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/onnxpb"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// attrMap gives keyed access to a node's attributes. Accessors return the
// declared default when the attribute is absent and an error when it is
// present with the wrong type; type confusion here is always a malformed
// model and must abort the pass.
type attrMap map[string]*onnxpb.AttributeProto

func attrsOf(node *onnxpb.NodeProto) attrMap {
	m := make(attrMap, len(node.Attributes))
	for i := range node.Attributes {
		m[node.Attributes[i].Name] = &node.Attributes[i]
	}
	return m
}

func (m attrMap) has(name string) bool {
	_, ok := m[name]
	return ok
}

func (m attrMap) int(name string, def int64) (int64, error) {
	a, ok := m[name]
	if !ok {
		return def, nil
	}
	if a.Type != onnxpb.AttrInt && a.Type != onnxpb.AttrUndefined {
		return 0, errors.Errorf("attribute %q is not an int", name)
	}
	return a.I, nil
}

func (m attrMap) float(name string, def float64) (float64, error) {
	a, ok := m[name]
	if !ok {
		return def, nil
	}
	if a.Type != onnxpb.AttrFloat && a.Type != onnxpb.AttrUndefined {
		return 0, errors.Errorf("attribute %q is not a float", name)
	}
	return float64(a.F), nil
}

func (m attrMap) str(name, def string) (string, error) {
	a, ok := m[name]
	if !ok {
		return def, nil
	}
	if a.Type != onnxpb.AttrString && a.Type != onnxpb.AttrUndefined {
		return "", errors.Errorf("attribute %q is not a string", name)
	}
	return string(a.S), nil
}

// ints returns a repeated-int attribute as []int, nil when absent.
func (m attrMap) ints(name string) ([]int, error) {
	a, ok := m[name]
	if !ok {
		return nil, nil
	}
	if a.Type != onnxpb.AttrInts && a.Type != onnxpb.AttrUndefined {
		return nil, errors.Errorf("attribute %q is not an int list", name)
	}
	out := make([]int, len(a.Ints))
	for i, v := range a.Ints {
		out[i] = int(v)
	}
	return out, nil
}

func (m attrMap) floats(name string) ([]float64, error) {
	a, ok := m[name]
	if !ok {
		return nil, nil
	}
	if a.Type != onnxpb.AttrFloats && a.Type != onnxpb.AttrUndefined {
		return nil, errors.Errorf("attribute %q is not a float list", name)
	}
	out := make([]float64, len(a.Floats))
	for i, v := range a.Floats {
		out[i] = float64(v)
	}
	return out, nil
}

func (m attrMap) tensor(name string) (*onnxpb.TensorProto, error) {
	a, ok := m[name]
	if !ok {
		return nil, nil
	}
	if a.T == nil {
		return nil, errors.Errorf("attribute %q holds no tensor", name)
	}
	return a.T, nil
}

// constantValue decodes the literal of a Constant node. The value may be an
// embedded tensor or one of the scalar/list shorthand attributes.
func constantValue(node *onnxpb.NodeProto) (*tensor.Tensor, error) {
	attrs := attrsOf(node)
	if tp, err := attrs.tensor("value"); err != nil {
		return nil, err
	} else if tp != nil {
		return DecodeTensor(tp)
	}
	if attrs.has("value_float") {
		v, err := attrs.float("value_float", 0)
		if err != nil {
			return nil, err
		}
		return tensor.Full(tensor.Shape{}, tensor.Float32, v)
	}
	if attrs.has("value_int") {
		v, err := attrs.int("value_int", 0)
		if err != nil {
			return nil, err
		}
		return tensor.Full(tensor.Shape{}, tensor.Int64, float64(v))
	}
	if attrs.has("value_floats") {
		vals, err := attrs.floats("value_floats")
		if err != nil {
			return nil, err
		}
		f32 := make([]float32, len(vals))
		for i, v := range vals {
			f32[i] = float32(v)
		}
		return tensor.FromFloat32(tensor.Shape{len(f32)}, f32)
	}
	if attrs.has("value_ints") {
		vals, err := attrs.ints("value_ints")
		if err != nil {
			return nil, err
		}
		i64 := make([]int64, len(vals))
		for i, v := range vals {
			i64[i] = int64(v)
		}
		return tensor.FromInt64(tensor.Shape{len(i64)}, i64)
	}
	return nil, errors.New("constant node carries no value")
}
