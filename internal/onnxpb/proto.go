// Package onnxpb holds the subset of the ONNX protobuf schema the
// converter consumes, together with a minimal wire-format decoder.
package onnxpb

// Tensor element types (TensorProto.data_type).
const (
	TensorUndefined = 0
	TensorFloat     = 1  // float32
	TensorUint8     = 2  // uint8
	TensorInt8      = 3  // int8
	TensorUint16    = 4  // uint16
	TensorInt16     = 5  // int16
	TensorInt32     = 6  // int32
	TensorInt64     = 7  // int64
	TensorString    = 8  // string
	TensorBool      = 9  // bool
	TensorFloat16   = 10 // float16
	TensorDouble    = 11 // float64
	TensorUint32    = 12 // uint32
	TensorUint64    = 13 // uint64
)

// Attribute value types (AttributeProto.type).
const (
	AttrUndefined = 0
	AttrFloat     = 1
	AttrInt       = 2
	AttrString    = 3
	AttrTensor    = 4
	AttrGraph     = 5
	AttrFloats    = 6
	AttrInts      = 7
	AttrStrings   = 8
	AttrTensors   = 9
)

// ModelProto is the top-level serialized model.
type ModelProto struct {
	IRVersion       int64
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	OpsetImport     []OperatorSetID
	MetadataProps   []StringStringEntry
}

// OpsetVersion returns the version of the default ONNX operator domain.
func (m *ModelProto) OpsetVersion() int64 {
	for _, opset := range m.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			return opset.Version
		}
	}
	return 0
}

// GraphProto is the computation graph: the ordered node list, the named
// constant tensors and the declared graph inputs/outputs.
type GraphProto struct {
	Name         string
	Nodes        []NodeProto
	Initializers []TensorProto
	Inputs       []ValueInfoProto
	Outputs      []ValueInfoProto
}

// NodeProto is one operator invocation.
type NodeProto struct {
	Name       string
	OpType     string
	Domain     string
	Inputs     []string
	Outputs    []string
	Attributes []AttributeProto
}

// TensorProto is a named constant tensor.
type TensorProto struct {
	Name     string
	DataType int32
	Dims     []int64
	RawData  []byte
	// Typed storage variants; at most one is populated.
	FloatData  []float32
	Int32Data  []int32
	Int64Data  []int64
	DoubleData []float64
	Uint64Data []uint64
}

// AttributeProto is one declared node attribute.
type AttributeProto struct {
	Name    string
	Type    int32
	F       float32
	I       int64
	S       []byte
	T       *TensorProto
	Floats  []float32
	Ints    []int64
	Strings [][]byte
}

// ValueInfoProto declares the name and type of a graph input or output.
type ValueInfoProto struct {
	Name string
	Type *TypeProto
}

// TypeProto wraps the tensor type of a value.
type TypeProto struct {
	TensorType *TensorTypeProto
}

// TensorTypeProto holds element type and symbolic shape.
type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto
}

// TensorShapeProto is a list of dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto is either a concrete size or a named symbolic dimension.
type DimensionProto struct {
	DimValue int64
	DimParam string
}

// OperatorSetID pins an operator domain to a version.
type OperatorSetID struct {
	Domain  string
	Version int64
}

// StringStringEntry is a metadata key/value pair.
type StringStringEntry struct {
	Key   string
	Value string
}
