package convert

import (
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnx2born/internal/backend/cpu"
	"github.com/born-ml/onnx2born/internal/onnxpb"
	"github.com/born-ml/onnx2born/internal/ops"
	"github.com/born-ml/onnx2born/internal/tensor"
)

func node(op string, inputs, outputs []string, attrs ...onnxpb.AttributeProto) onnxpb.NodeProto {
	return onnxpb.NodeProto{
		Name:       op + "/" + outputs[0],
		OpType:     op,
		Inputs:     inputs,
		Outputs:    outputs,
		Attributes: attrs,
	}
}

func intsAttr(name string, vals ...int64) onnxpb.AttributeProto {
	return onnxpb.AttributeProto{Name: name, Type: onnxpb.AttrInts, Ints: vals}
}

func intAttr(name string, v int64) onnxpb.AttributeProto {
	return onnxpb.AttributeProto{Name: name, Type: onnxpb.AttrInt, I: v}
}

func floatAttr(name string, v float32) onnxpb.AttributeProto {
	return onnxpb.AttributeProto{Name: name, Type: onnxpb.AttrFloat, F: v}
}

func tensorAttr(name string, tp onnxpb.TensorProto) onnxpb.AttributeProto {
	return onnxpb.AttributeProto{Name: name, Type: onnxpb.AttrTensor, T: &tp}
}

func translate(t *testing.T, g *onnxpb.GraphProto, opset int64) []Translation {
	t.Helper()
	out, err := Translate(g, NewWeightIndex(g), cpu.New(), opset, 0)
	require.NoError(t, err)
	return out
}

func TestTranslateEmitsOneTriplePerNode(t *testing.T) {
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Relu", []string{"x"}, []string{"r"}),
		node("Sigmoid", []string{"r"}, []string{"s"}),
		node("Identity", []string{"s"}, []string{"y"}),
	}}
	out := translate(t, g, 13)

	require.Len(t, out, 3)
	assert.Equal(t, "r", out[0].ID)
	assert.Equal(t, "Relu_r", out[0].Name)
	assert.Equal(t, "s", out[1].ID)
	assert.Equal(t, "Sigmoid_s", out[1].Name)
	assert.Equal(t, "y", out[2].ID)
	assert.Equal(t, "Identity_y", out[2].Name)
}

func TestMatMulAddFusion(t *testing.T) {
	g := &onnxpb.GraphProto{
		Nodes: []onnxpb.NodeProto{
			node("MatMul", []string{"x", "W"}, []string{"mm"}),
			node("Add", []string{"mm", "b"}, []string{"y"}),
			node("Relu", []string{"y"}, []string{"out"}),
		},
		Initializers: []onnxpb.TensorProto{
			floatWeight("W", []int64{3, 2}, 1, 2, 3, 4, 5, 6),
			floatWeight("b", []int64{2}, 10, 20),
		},
	}
	out := translate(t, g, 13)

	require.Len(t, out, 2, "the Add is absorbed")
	assert.Equal(t, "y", out[0].ID, "fused unit assumes the Add's output name")
	assert.Equal(t, "MatMul_y", out[0].Name)

	lin, ok := out[0].Unit.(*ops.Linear)
	require.True(t, ok)
	require.NotNil(t, lin.Bias)
	assert.Equal(t, []float32{10, 20}, lin.Bias.Float32s())
	assert.Equal(t, 3, lin.InFeatures())
	assert.Equal(t, 2, lin.OutFeatures())
	assert.Equal(t, []string{"x"}, out[0].Inputs, "the weight is bound, not fed")

	assert.Equal(t, "out", out[1].ID)
}

func TestMatMulOrientation(t *testing.T) {
	w := floatWeight("W", []int64{3, 2}, 1, 2, 3, 4, 5, 6)

	// Second operand constant: x·W with W [in, out], weight transposes.
	g := &onnxpb.GraphProto{
		Nodes:        []onnxpb.NodeProto{node("MatMul", []string{"x", "W"}, []string{"y"})},
		Initializers: []onnxpb.TensorProto{w},
	}
	lin := translate(t, g, 13)[0].Unit.(*ops.Linear)
	assert.Equal(t, 3, lin.InFeatures())
	assert.Equal(t, 2, lin.OutFeatures())
	assert.Equal(t, []float32{1, 3, 5, 2, 4, 6}, lin.Weight.Float32s())
	assert.Nil(t, lin.Bias, "no following Add, no bias")

	// First operand constant: W·x, weight binds unmodified.
	g = &onnxpb.GraphProto{
		Nodes:        []onnxpb.NodeProto{node("MatMul", []string{"W", "x"}, []string{"y"})},
		Initializers: []onnxpb.TensorProto{w},
	}
	lin = translate(t, g, 13)[0].Unit.(*ops.Linear)
	assert.Equal(t, 2, lin.InFeatures())
	assert.Equal(t, 3, lin.OutFeatures())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, lin.Weight.Float32s())
}

func TestMatMulWithoutConstantStaysGeneric(t *testing.T) {
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("MatMul", []string{"a", "b"}, []string{"mm"}),
		node("Add", []string{"mm", "c"}, []string{"y"}),
	}}
	out := translate(t, g, 13)

	require.Len(t, out, 2, "nothing is absorbed")
	assert.IsType(t, &ops.MatMul{}, out[0].Unit)
	assert.Equal(t, "mm", out[0].ID)
	assert.IsType(t, &ops.Add{}, out[1].Unit)
	assert.Equal(t, "y", out[1].ID)
}

func TestMatMulAddWithoutConstantBiasNotFused(t *testing.T) {
	// The Add has no initializer input, so the MatMul keeps its own name
	// and the Add survives.
	g := &onnxpb.GraphProto{
		Nodes: []onnxpb.NodeProto{
			node("MatMul", []string{"x", "W"}, []string{"mm"}),
			node("Add", []string{"mm", "dyn"}, []string{"y"}),
		},
		Initializers: []onnxpb.TensorProto{floatWeight("W", []int64{2, 2}, 1, 0, 0, 1)},
	}
	out := translate(t, g, 13)

	require.Len(t, out, 2)
	lin := out[0].Unit.(*ops.Linear)
	assert.Nil(t, lin.Bias)
	assert.Equal(t, "mm", out[0].ID)
}

func TestSubDivFolding(t *testing.T) {
	cval := onnxpb.TensorProto{DataType: onnxpb.TensorFloat, Dims: []int64{1}, RawData: rawFloat32(2)}
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Constant", nil, []string{"c"}, tensorAttr("value", cval)),
		node("Sub", []string{"x", "c"}, []string{"s"}),
		node("Constant", nil, []string{"c2"}, tensorAttr("value", cval)),
		node("Div", []string{"s", "c2"}, []string{"d"}),
		node("Sub", []string{"d", "other"}, []string{"y"}),
	}}
	out := translate(t, g, 13)

	require.Len(t, out, 5)
	sub, ok := out[1].Unit.(*ops.SubConst)
	require.True(t, ok, "Sub after Constant folds")
	assert.Equal(t, []float32{2}, sub.Y.Float32s())

	div, ok := out[3].Unit.(*ops.DivConst)
	require.True(t, ok, "Div after Constant folds")
	assert.Equal(t, []float32{2}, div.Y.Float32s())

	assert.IsType(t, &ops.Binary{}, out[4].Unit, "Sub without preceding Constant stays generic")
}

func TestSplitOutputsDefaultCount(t *testing.T) {
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Split", []string{"x"}, []string{"a", "b", "c"}, intAttr("axis", 1)),
	}}
	out := translate(t, g, 13)

	split := out[0].Unit.(*ops.Split)
	assert.Equal(t, 3, split.NumOutputs)
	assert.Equal(t, 1, split.Axis)
	assert.Equal(t, []string{"a", "b", "c"}, out[0].Outputs)
}

func TestFallbackBuiltins(t *testing.T) {
	// Abs is not registered; it maps onto the same-named backend builtin.
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Abs", []string{"x"}, []string{"y"}),
	}}
	out := translate(t, g, 13)

	u, ok := out[0].Unit.(*ops.Unary)
	require.True(t, ok)
	assert.Equal(t, "abs", u.Op)

	g = &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Max", []string{"a", "b"}, []string{"y"}),
	}}
	out = translate(t, g, 13)
	b, ok := out[0].Unit.(*ops.Binary)
	require.True(t, ok)
	assert.Equal(t, "max", b.Op)
}

func TestUnsupportedOpIsFatal(t *testing.T) {
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Relu", []string{"x"}, []string{"r"}),
		node("LSTM", []string{"r"}, []string{"y"}),
	}}
	_, err := Translate(g, NewWeightIndex(g), cpu.New(), 13, 0)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedOp))
	assert.Contains(t, err.Error(), "LSTM")
}

func TestDuplicateIDRejected(t *testing.T) {
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Relu", []string{"x"}, []string{"y"}),
		node("Sigmoid", []string{"x"}, []string{"y"}),
	}}
	_, err := Translate(g, NewWeightIndex(g), cpu.New(), 13, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestTranslateDoesNotMutateGraph(t *testing.T) {
	g := &onnxpb.GraphProto{
		Nodes: []onnxpb.NodeProto{
			node("MatMul", []string{"x", "W"}, []string{"mm"}),
			node("Add", []string{"mm", "b"}, []string{"y"}),
		},
		Initializers: []onnxpb.TensorProto{
			floatWeight("W", []int64{2, 2}, 1, 0, 0, 1),
			floatWeight("b", []int64{2}, 1, 1),
		},
	}
	translate(t, g, 13)

	require.Len(t, g.Nodes, 2, "the engine works on its own copy")
	assert.Equal(t, []string{"mm"}, g.Nodes[0].Outputs)
	assert.Equal(t, "Add", g.Nodes[1].OpType)

	// A second pass over the same graph yields the same result.
	again := translate(t, g, 13)
	require.Len(t, again, 1)
	assert.Equal(t, "y", again[0].ID)
}

func TestOpsetDependentAxes(t *testing.T) {
	// Before opset 13 squeeze axes are an attribute.
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Squeeze", []string{"x"}, []string{"y"}, intsAttr("axes", 0)),
	}}
	sq := translate(t, g, 11)[0].Unit.(*ops.Squeeze)
	assert.Equal(t, []int{0}, sq.Axes)

	// From opset 13 they arrive as a runtime input.
	g = &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Squeeze", []string{"x", "ax"}, []string{"y"}),
	}}
	sq = translate(t, g, 13)[0].Unit.(*ops.Squeeze)
	assert.Nil(t, sq.Axes)
}

func TestReduceMeanKeepsDimsByDefault(t *testing.T) {
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("ReduceMean", []string{"x"}, []string{"y"}, intsAttr("axes", 1)),
	}}
	rm := translate(t, g, 13)[0].Unit.(*ops.ReduceMean)
	assert.True(t, rm.KeepDims)
	assert.Equal(t, []int{1}, rm.Axes)

	g = &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("ReduceMean", []string{"x"}, []string{"y"}, intAttr("keepdims", 0)),
	}}
	rm = translate(t, g, 13)[0].Unit.(*ops.ReduceMean)
	assert.False(t, rm.KeepDims)
}

func TestReshapeResolvesInitializerShape(t *testing.T) {
	g := &onnxpb.GraphProto{
		Nodes: []onnxpb.NodeProto{
			node("Reshape", []string{"x", "shape"}, []string{"y"}),
		},
		Initializers: []onnxpb.TensorProto{int64Weight("shape", []int64{2}, 4, -1)},
	}
	rs := translate(t, g, 13)[0].Unit.(*ops.Reshape)
	assert.Equal(t, tensor.Shape{4, -1}, rs.Target)

	g = &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Reshape", []string{"x", "shape"}, []string{"y"}),
	}}
	rs = translate(t, g, 13)[0].Unit.(*ops.Reshape)
	assert.Nil(t, rs.Target, "non-initializer shapes resolve at run time")
}

func TestGemmFoldsAlphaBeta(t *testing.T) {
	g := &onnxpb.GraphProto{
		Nodes: []onnxpb.NodeProto{
			node("Gemm", []string{"x", "W", "b"}, []string{"y"},
				floatAttr("alpha", 2), floatAttr("beta", 3), intAttr("transB", 1)),
		},
		Initializers: []onnxpb.TensorProto{
			floatWeight("W", []int64{2, 3}, 1, 2, 3, 4, 5, 6),
			floatWeight("b", []int64{2}, 1, 1),
		},
	}
	lin := translate(t, g, 13)[0].Unit.(*ops.Linear)
	assert.Equal(t, []float32{2, 4, 6, 8, 10, 12}, lin.Weight.Float32s())
	assert.Equal(t, []float32{3, 3}, lin.Bias.Float32s())
	assert.Equal(t, 3, lin.InFeatures())
}

func TestConstantTripleHasNoRuntimeInputs(t *testing.T) {
	cval := onnxpb.TensorProto{DataType: onnxpb.TensorFloat, Dims: []int64{1}, RawData: rawFloat32(5)}
	g := &onnxpb.GraphProto{Nodes: []onnxpb.NodeProto{
		node("Constant", nil, []string{"c"}, tensorAttr("value", cval)),
	}}
	out := translate(t, g, 13)

	assert.Empty(t, out[0].Inputs)
	c := out[0].Unit.(*ops.Constant)
	assert.Equal(t, []float32{5}, c.Value.Float32s())
}

func TestRegisteredKindsSortedAndComplete(t *testing.T) {
	kinds := RegisteredKinds()
	assert.True(t, sort.StringsAreSorted(kinds))
	for _, want := range []string{"Conv", "MatMul", "Sub", "Div", "Gemm", "Reshape", "Softmax"} {
		assert.Contains(t, kinds, want)
	}
}
