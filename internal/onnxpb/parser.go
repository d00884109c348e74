package onnxpb

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
)

// ParseFile parses a serialized ONNX model from a file.
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read model file")
	}
	return Parse(data)
}

// Parse parses a serialized ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	if err := m.unmarshal(data); err != nil {
		return nil, errors.Wrap(err, "parse model")
	}
	return m, nil
}

// Protobuf wire types.
const (
	wireVarint = 0
	wire64Bit  = 1
	wireBytes  = 2
	wire32Bit  = 5
)

// reader is a cursor over one protobuf message's bytes.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) done() bool { return r.pos >= len(r.data) }

func (r *reader) tag() (field, wire int, err error) {
	v, err := r.varint()
	if err != nil {
		return 0, 0, err
	}
	return int(v >> 3), int(v & 0x7), nil
}

func (r *reader) varint() (uint64, error) {
	var v uint64
	var shift uint
	for {
		if r.pos >= len(r.data) {
			return 0, errors.New("truncated varint")
		}
		b := r.data[r.pos]
		r.pos++
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("varint overflow")
		}
	}
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.varint()
	if err != nil {
		return nil, err
	}
	end := r.pos + int(n)
	if end < r.pos || end > len(r.data) {
		return nil, errors.New("truncated length-delimited field")
	}
	out := r.data[r.pos:end]
	r.pos = end
	return out, nil
}

func (r *reader) str() (string, error) {
	b, err := r.bytes()
	return string(b), err
}

func (r *reader) fixed32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, errors.New("truncated fixed32")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) fixed64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, errors.New("truncated fixed64")
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) skip(wire int) error {
	switch wire {
	case wireVarint:
		_, err := r.varint()
		return err
	case wire64Bit:
		_, err := r.fixed64()
		return err
	case wireBytes:
		_, err := r.bytes()
		return err
	case wire32Bit:
		_, err := r.fixed32()
		return err
	default:
		return errors.Errorf("unknown wire type %d", wire)
	}
}

// packedInt64 reads a packed or single repeated varint field.
func (r *reader) packedInt64(wire int, dst []int64) ([]int64, error) {
	if wire == wireBytes {
		data, err := r.bytes()
		if err != nil {
			return nil, err
		}
		sub := &reader{data: data}
		for !sub.done() {
			v, err := sub.varint()
			if err != nil {
				return nil, err
			}
			dst = append(dst, int64(v))
		}
		return dst, nil
	}
	v, err := r.varint()
	if err != nil {
		return nil, err
	}
	return append(dst, int64(v)), nil
}

// packedFloat32 reads a packed or single repeated float field.
func (r *reader) packedFloat32(wire int, dst []float32) ([]float32, error) {
	if wire == wireBytes {
		data, err := r.bytes()
		if err != nil {
			return nil, err
		}
		for i := 0; i+4 <= len(data); i += 4 {
			dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
		}
		return dst, nil
	}
	v, err := r.fixed32()
	if err != nil {
		return nil, err
	}
	return append(dst, math.Float32frombits(v)), nil
}

func (m *ModelProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // ir_version
			v, err := r.varint()
			if err != nil {
				return err
			}
			m.IRVersion = int64(v)
		case 2: // producer_name
			if m.ProducerName, err = r.str(); err != nil {
				return err
			}
		case 3: // producer_version
			if m.ProducerVersion, err = r.str(); err != nil {
				return err
			}
		case 4: // domain
			if m.Domain, err = r.str(); err != nil {
				return err
			}
		case 5: // model_version
			v, err := r.varint()
			if err != nil {
				return err
			}
			m.ModelVersion = int64(v)
		case 6: // doc_string
			if m.DocString, err = r.str(); err != nil {
				return err
			}
		case 7: // graph
			data, err := r.bytes()
			if err != nil {
				return err
			}
			m.Graph = &GraphProto{}
			if err := m.Graph.unmarshal(data); err != nil {
				return err
			}
		case 8: // opset_import
			data, err := r.bytes()
			if err != nil {
				return err
			}
			var opset OperatorSetID
			if err := opset.unmarshal(data); err != nil {
				return err
			}
			m.OpsetImport = append(m.OpsetImport, opset)
		case 14: // metadata_props
			data, err := r.bytes()
			if err != nil {
				return err
			}
			var entry StringStringEntry
			if err := entry.unmarshal(data); err != nil {
				return err
			}
			m.MetadataProps = append(m.MetadataProps, entry)
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *GraphProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // node
			data, err := r.bytes()
			if err != nil {
				return err
			}
			var node NodeProto
			if err := node.unmarshal(data); err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, node)
		case 2: // name
			if g.Name, err = r.str(); err != nil {
				return err
			}
		case 5: // initializer
			data, err := r.bytes()
			if err != nil {
				return err
			}
			var t TensorProto
			if err := t.unmarshal(data); err != nil {
				return err
			}
			g.Initializers = append(g.Initializers, t)
		case 11: // input
			data, err := r.bytes()
			if err != nil {
				return err
			}
			var vi ValueInfoProto
			if err := vi.unmarshal(data); err != nil {
				return err
			}
			g.Inputs = append(g.Inputs, vi)
		case 12: // output
			data, err := r.bytes()
			if err != nil {
				return err
			}
			var vi ValueInfoProto
			if err := vi.unmarshal(data); err != nil {
				return err
			}
			g.Outputs = append(g.Outputs, vi)
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *NodeProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // input
			s, err := r.str()
			if err != nil {
				return err
			}
			n.Inputs = append(n.Inputs, s)
		case 2: // output
			s, err := r.str()
			if err != nil {
				return err
			}
			n.Outputs = append(n.Outputs, s)
		case 3: // name
			if n.Name, err = r.str(); err != nil {
				return err
			}
		case 4: // op_type
			if n.OpType, err = r.str(); err != nil {
				return err
			}
		case 5: // attribute
			data, err := r.bytes()
			if err != nil {
				return err
			}
			var attr AttributeProto
			if err := attr.unmarshal(data); err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, attr)
		case 7: // domain
			if n.Domain, err = r.str(); err != nil {
				return err
			}
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *TensorProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // dims
			if t.Dims, err = r.packedInt64(wire, t.Dims); err != nil {
				return err
			}
		case 2: // data_type
			v, err := r.varint()
			if err != nil {
				return err
			}
			t.DataType = int32(v)
		case 4: // float_data
			if t.FloatData, err = r.packedFloat32(wire, t.FloatData); err != nil {
				return err
			}
		case 5: // int32_data
			vals, err := r.packedInt64(wire, nil)
			if err != nil {
				return err
			}
			for _, v := range vals {
				t.Int32Data = append(t.Int32Data, int32(v))
			}
		case 7: // int64_data
			if t.Int64Data, err = r.packedInt64(wire, t.Int64Data); err != nil {
				return err
			}
		case 8: // name
			if t.Name, err = r.str(); err != nil {
				return err
			}
		case 9: // raw_data
			if t.RawData, err = r.bytes(); err != nil {
				return err
			}
		case 10: // double_data
			if wire == wireBytes {
				data, err := r.bytes()
				if err != nil {
					return err
				}
				for i := 0; i+8 <= len(data); i += 8 {
					t.DoubleData = append(t.DoubleData, math.Float64frombits(binary.LittleEndian.Uint64(data[i:])))
				}
			} else {
				v, err := r.fixed64()
				if err != nil {
					return err
				}
				t.DoubleData = append(t.DoubleData, math.Float64frombits(v))
			}
		case 11: // uint64_data
			vals, err := r.packedInt64(wire, nil)
			if err != nil {
				return err
			}
			for _, v := range vals {
				t.Uint64Data = append(t.Uint64Data, uint64(v))
			}
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *AttributeProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // name
			if a.Name, err = r.str(); err != nil {
				return err
			}
		case 2: // f
			v, err := r.fixed32()
			if err != nil {
				return err
			}
			a.F = math.Float32frombits(v)
		case 3: // i
			v, err := r.varint()
			if err != nil {
				return err
			}
			a.I = int64(v)
		case 4: // s
			if a.S, err = r.bytes(); err != nil {
				return err
			}
		case 5: // t
			data, err := r.bytes()
			if err != nil {
				return err
			}
			a.T = &TensorProto{}
			if err := a.T.unmarshal(data); err != nil {
				return err
			}
		case 7: // floats
			if a.Floats, err = r.packedFloat32(wire, a.Floats); err != nil {
				return err
			}
		case 8: // ints
			if a.Ints, err = r.packedInt64(wire, a.Ints); err != nil {
				return err
			}
		case 9: // strings
			b, err := r.bytes()
			if err != nil {
				return err
			}
			a.Strings = append(a.Strings, b)
		case 20: // type
			v, err := r.varint()
			if err != nil {
				return err
			}
			a.Type = int32(v)
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *ValueInfoProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // name
			if v.Name, err = r.str(); err != nil {
				return err
			}
		case 2: // type
			data, err := r.bytes()
			if err != nil {
				return err
			}
			v.Type = &TypeProto{}
			if err := v.Type.unmarshal(data); err != nil {
				return err
			}
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *TypeProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		if field == 1 { // tensor_type
			data, err := r.bytes()
			if err != nil {
				return err
			}
			t.TensorType = &TensorTypeProto{}
			if err := t.TensorType.unmarshal(data); err != nil {
				return err
			}
			continue
		}
		if err := r.skip(wire); err != nil {
			return err
		}
	}
	return nil
}

func (t *TensorTypeProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // elem_type
			v, err := r.varint()
			if err != nil {
				return err
			}
			t.ElemType = int32(v)
		case 2: // shape
			data, err := r.bytes()
			if err != nil {
				return err
			}
			t.Shape = &TensorShapeProto{}
			if err := t.Shape.unmarshal(data); err != nil {
				return err
			}
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *TensorShapeProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		if field == 1 { // dim
			data, err := r.bytes()
			if err != nil {
				return err
			}
			var dim DimensionProto
			if err := dim.unmarshal(data); err != nil {
				return err
			}
			t.Dims = append(t.Dims, dim)
			continue
		}
		if err := r.skip(wire); err != nil {
			return err
		}
	}
	return nil
}

func (d *DimensionProto) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // dim_value
			v, err := r.varint()
			if err != nil {
				return err
			}
			d.DimValue = int64(v)
		case 2: // dim_param
			if d.DimParam, err = r.str(); err != nil {
				return err
			}
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *OperatorSetID) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // domain
			if o.Domain, err = r.str(); err != nil {
				return err
			}
		case 2: // version
			v, err := r.varint()
			if err != nil {
				return err
			}
			o.Version = int64(v)
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *StringStringEntry) unmarshal(data []byte) error {
	r := &reader{data: data}
	for !r.done() {
		field, wire, err := r.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // key
			if s.Key, err = r.str(); err != nil {
				return err
			}
		case 2: // value
			if s.Value, err = r.str(); err != nil {
				return err
			}
		default:
			if err := r.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}
