package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnx2born/internal/backend/cpu"
	"github.com/born-ml/onnx2born/internal/onnxpb"
	"github.com/born-ml/onnx2born/internal/tensor"
)

func mlpModel() *onnxpb.ModelProto {
	return &onnxpb.ModelProto{
		ProducerName: "test",
		OpsetImport:  []onnxpb.OperatorSetID{{Version: 13}},
		Graph: &onnxpb.GraphProto{
			Name: "mlp",
			Nodes: []onnxpb.NodeProto{
				node("MatMul", []string{"x", "W"}, []string{"mm"}),
				node("Add", []string{"mm", "b"}, []string{"h"}),
				node("Relu", []string{"h"}, []string{"y"}),
			},
			Initializers: []onnxpb.TensorProto{
				floatWeight("W", []int64{3, 2}, 1, 0, 0, 1, 1, 1),
				floatWeight("b", []int64{2}, 10, -20),
			},
			Inputs:  []onnxpb.ValueInfoProto{{Name: "x"}},
			Outputs: []onnxpb.ValueInfoProto{{Name: "y"}},
		},
	}
}

func TestModelForwardRunsFusedGraph(t *testing.T) {
	m, err := NewModel(mlpModel(), cpu.New(), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, m.Inputs())
	assert.Equal(t, []string{"y"}, m.Outputs())
	require.Len(t, m.Units(), 2, "MatMul+Add fuse into one unit")
	assert.Equal(t, "h", m.Units()[0].ID)
	assert.Equal(t, int64(13), m.Opset)
	assert.Equal(t, "test", m.Producer)

	x, err := tensor.FromFloat32(tensor.Shape{1, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	y, err := m.Forward(x)
	require.NoError(t, err)

	// x·W = [4, 5]; +b = [14, -15]; relu = [14, 0].
	assert.Equal(t, tensor.Shape{1, 2}, y.Shape())
	assert.Equal(t, []float32{14, 0}, y.Float32s())
}

func TestModelForwardNamed(t *testing.T) {
	m, err := NewModel(mlpModel(), cpu.New(), 0)
	require.NoError(t, err)

	x, err := tensor.FromFloat32(tensor.Shape{1, 3}, []float32{0, 0, 0})
	require.NoError(t, err)
	outs, err := m.ForwardNamed(map[string]*tensor.Tensor{"x": x})
	require.NoError(t, err)

	require.Contains(t, outs, "y")
	assert.Equal(t, []float32{10, 0}, outs["y"].Float32s())

	_, err = m.ForwardNamed(map[string]*tensor.Tensor{})
	assert.Error(t, err, "missing graph input")
}

func TestModelRunsConstantFolding(t *testing.T) {
	cval := onnxpb.TensorProto{DataType: onnxpb.TensorFloat, Dims: []int64{1}, RawData: rawFloat32(4)}
	m, err := NewModel(&onnxpb.ModelProto{
		OpsetImport: []onnxpb.OperatorSetID{{Version: 13}},
		Graph: &onnxpb.GraphProto{
			Nodes: []onnxpb.NodeProto{
				node("Constant", nil, []string{"c"}, tensorAttr("value", cval)),
				node("Div", []string{"x", "c"}, []string{"y"}),
			},
			Inputs:  []onnxpb.ValueInfoProto{{Name: "x"}},
			Outputs: []onnxpb.ValueInfoProto{{Name: "y"}},
		},
	}, cpu.New(), 0)
	require.NoError(t, err)

	x, err := tensor.FromFloat32(tensor.Shape{2}, []float32{8, 12})
	require.NoError(t, err)
	y, err := m.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, y.Float32s())
}

func TestModelRunsGemmGraph(t *testing.T) {
	m, err := NewModel(&onnxpb.ModelProto{
		OpsetImport: []onnxpb.OperatorSetID{{Version: 13}},
		Graph: &onnxpb.GraphProto{
			Nodes: []onnxpb.NodeProto{
				node("Gemm", []string{"x", "W", "b"}, []string{"y"}, intAttr("transB", 1)),
			},
			Initializers: []onnxpb.TensorProto{
				floatWeight("W", []int64{2, 2}, 1, 0, 0, 1),
				floatWeight("b", []int64{2}, 1, 2),
			},
			Inputs:  []onnxpb.ValueInfoProto{{Name: "x"}},
			Outputs: []onnxpb.ValueInfoProto{{Name: "y"}},
		},
	}, cpu.New(), 0)
	require.NoError(t, err)

	x, err := tensor.FromFloat32(tensor.Shape{1, 2}, []float32{3, 4})
	require.NoError(t, err)
	y, err := m.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 6}, y.Float32s())
}

func TestModelSplitOutputs(t *testing.T) {
	m, err := NewModel(&onnxpb.ModelProto{
		OpsetImport: []onnxpb.OperatorSetID{{Version: 13}},
		Graph: &onnxpb.GraphProto{
			Nodes: []onnxpb.NodeProto{
				node("Split", []string{"x"}, []string{"a", "b"}, intAttr("axis", 0)),
			},
			Inputs:  []onnxpb.ValueInfoProto{{Name: "x"}},
			Outputs: []onnxpb.ValueInfoProto{{Name: "a"}, {Name: "b"}},
		},
	}, cpu.New(), 0)
	require.NoError(t, err)

	x, err := tensor.FromFloat32(tensor.Shape{4}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	outs, err := m.ForwardNamed(map[string]*tensor.Tensor{"x": x})
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 2}, outs["a"].Float32s())
	assert.Equal(t, []float32{3, 4}, outs["b"].Float32s())
}

func TestModelGraphInputListedAsInitializerIsNotFed(t *testing.T) {
	// Some exporters declare initializers among the graph inputs; they must
	// not count as feedable inputs.
	proto := mlpModel()
	proto.Graph.Inputs = append(proto.Graph.Inputs, onnxpb.ValueInfoProto{Name: "W"})

	m, err := NewModel(proto, cpu.New(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, m.Inputs())
}

func TestModelUnknownOutput(t *testing.T) {
	proto := mlpModel()
	proto.Graph.Outputs = []onnxpb.ValueInfoProto{{Name: "nope"}}

	m, err := NewModel(proto, cpu.New(), 0)
	require.NoError(t, err)

	x, err := tensor.FromFloat32(tensor.Shape{1, 3}, []float32{0, 0, 0})
	require.NoError(t, err)
	_, err = m.ForwardNamed(map[string]*tensor.Tensor{"x": x})
	assert.Error(t, err)
}
