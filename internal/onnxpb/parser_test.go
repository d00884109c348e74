package onnxpb

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Minimal wire encoder for fixtures.

func appendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func appendTag(b []byte, field, wire int) []byte {
	return appendVarint(b, uint64(field<<3|wire))
}

func appendBytes(b []byte, field int, data []byte) []byte {
	b = appendTag(b, field, wireBytes)
	b = appendVarint(b, uint64(len(data)))
	return append(b, data...)
}

func appendString(b []byte, field int, s string) []byte {
	return appendBytes(b, field, []byte(s))
}

func appendInt(b []byte, field int, v int64) []byte {
	b = appendTag(b, field, wireVarint)
	return appendVarint(b, uint64(v))
}

func appendFloat(b []byte, field int, v float32) []byte {
	b = appendTag(b, field, wire32Bit)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	return append(b, buf[:]...)
}

func packedVarints(vals ...int64) []byte {
	var b []byte
	for _, v := range vals {
		b = appendVarint(b, uint64(v))
	}
	return b
}

func encodeWeight() []byte {
	var t []byte
	t = appendBytes(t, 1, packedVarints(2, 2)) // dims, packed
	t = appendInt(t, 2, TensorFloat)
	t = appendString(t, 8, "w")
	raw := make([]byte, 16)
	for i, v := range []float32{1, 2, 3, 4} {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return appendBytes(t, 9, raw)
}

func encodeModel() []byte {
	// Constant node with an embedded tensor attribute.
	var ct []byte
	ct = appendInt(ct, 2, TensorFloat)
	var craw [4]byte
	binary.LittleEndian.PutUint32(craw[:], math.Float32bits(2.5))
	ct = appendBytes(ct, 9, craw[:])

	var attr []byte
	attr = appendString(attr, 1, "value")
	attr = appendBytes(attr, 5, ct)
	attr = appendInt(attr, 20, AttrTensor)

	var constant []byte
	constant = appendString(constant, 2, "c")
	constant = appendString(constant, 4, "Constant")
	constant = appendString(constant, 3, "const0")
	constant = appendBytes(constant, 5, attr)

	var alphaAttr []byte
	alphaAttr = appendString(alphaAttr, 1, "alpha")
	alphaAttr = appendFloat(alphaAttr, 2, 0.2)
	alphaAttr = appendInt(alphaAttr, 20, AttrFloat)

	var relu []byte
	relu = appendString(relu, 1, "x")
	relu = appendString(relu, 2, "y")
	relu = appendString(relu, 4, "LeakyRelu")
	relu = appendBytes(relu, 5, alphaAttr)

	var input []byte
	input = appendString(input, 1, "x")
	var output []byte
	output = appendString(output, 1, "y")

	var graph []byte
	graph = appendBytes(graph, 1, constant)
	graph = appendBytes(graph, 1, relu)
	graph = appendString(graph, 2, "g")
	graph = appendBytes(graph, 5, encodeWeight())
	graph = appendBytes(graph, 11, input)
	graph = appendBytes(graph, 12, output)

	var opset []byte
	opset = appendInt(opset, 2, 13)

	var m []byte
	m = appendInt(m, 1, 8) // ir_version
	m = appendString(m, 2, "pytorch")
	m = appendBytes(m, 7, graph)
	m = appendBytes(m, 8, opset)
	return m
}

func TestParseModel(t *testing.T) {
	m, err := Parse(encodeModel())
	require.NoError(t, err)

	assert.Equal(t, int64(8), m.IRVersion)
	assert.Equal(t, "pytorch", m.ProducerName)
	assert.Equal(t, int64(13), m.OpsetVersion())

	require.NotNil(t, m.Graph)
	assert.Equal(t, "g", m.Graph.Name)
	require.Len(t, m.Graph.Nodes, 2)
	require.Len(t, m.Graph.Initializers, 1)
	require.Len(t, m.Graph.Inputs, 1)
	require.Len(t, m.Graph.Outputs, 1)
	assert.Equal(t, "x", m.Graph.Inputs[0].Name)
	assert.Equal(t, "y", m.Graph.Outputs[0].Name)

	w := m.Graph.Initializers[0]
	assert.Equal(t, "w", w.Name)
	assert.Equal(t, []int64{2, 2}, w.Dims)
	assert.Equal(t, int32(TensorFloat), w.DataType)
	assert.Len(t, w.RawData, 16)

	constant := m.Graph.Nodes[0]
	assert.Equal(t, "Constant", constant.OpType)
	assert.Equal(t, "const0", constant.Name)
	assert.Equal(t, []string{"c"}, constant.Outputs)
	require.Len(t, constant.Attributes, 1)
	val := constant.Attributes[0]
	assert.Equal(t, "value", val.Name)
	assert.Equal(t, int32(AttrTensor), val.Type)
	require.NotNil(t, val.T, "embedded tensor attribute must decode")
	assert.Equal(t, int32(TensorFloat), val.T.DataType)
	assert.Equal(t, math.Float32bits(2.5), binary.LittleEndian.Uint32(val.T.RawData))

	relu := m.Graph.Nodes[1]
	assert.Equal(t, "LeakyRelu", relu.OpType)
	assert.Equal(t, []string{"x"}, relu.Inputs)
	assert.Equal(t, []string{"y"}, relu.Outputs)
	require.Len(t, relu.Attributes, 1)
	assert.Equal(t, "alpha", relu.Attributes[0].Name)
	assert.InDelta(t, 0.2, relu.Attributes[0].F, 1e-6)
}

func TestParseSkipsUnknownFields(t *testing.T) {
	b := encodeModel()
	// Append an unknown length-delimited field and an unknown varint field.
	b = appendBytes(b, 19, []byte("metadata the decoder does not know"))
	b = appendInt(b, 21, 42)

	m, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, "pytorch", m.ProducerName)
	require.NotNil(t, m.Graph)
	assert.Len(t, m.Graph.Nodes, 2)
}

func TestParsePackedAndRepeatedInts(t *testing.T) {
	// Same dims encoded packed vs one-by-one must decode identically.
	var packed []byte
	packed = appendBytes(packed, 1, packedVarints(3, 4, 5))

	var repeated []byte
	repeated = appendInt(repeated, 1, 3)
	repeated = appendInt(repeated, 1, 4)
	repeated = appendInt(repeated, 1, 5)

	var a, b TensorProto
	require.NoError(t, a.unmarshal(packed))
	require.NoError(t, b.unmarshal(repeated))
	assert.Equal(t, []int64{3, 4, 5}, a.Dims)
	assert.Equal(t, a.Dims, b.Dims)
}

func TestParseTruncated(t *testing.T) {
	full := encodeModel()
	_, err := Parse(full[:len(full)-3])
	assert.Error(t, err)
}

func TestOpsetVersionDefaultDomain(t *testing.T) {
	m := &ModelProto{OpsetImport: []OperatorSetID{
		{Domain: "com.example", Version: 4},
		{Domain: "ai.onnx", Version: 11},
	}}
	assert.Equal(t, int64(11), m.OpsetVersion())
	assert.Equal(t, int64(0), (&ModelProto{}).OpsetVersion())
}
