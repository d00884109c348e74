package convert

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/onnxpb"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// Model wires translated units into a runnable graph. Execution follows the
// emitted order: every unit input must name an initializer, a graph input or
// an earlier output; that precondition comes from the model, the engine does
// not validate it.
type Model struct {
	backend backend.Backend
	weights *WeightIndex
	units   []Translation
	inputs  []string
	outputs []string

	Producer string
	Opset    int64
}

// NewModel translates a parsed ONNX model and assembles it.
func NewModel(m *onnxpb.ModelProto, be backend.Backend, batchAxis int) (*Model, error) {
	if m.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	weights := NewWeightIndex(m.Graph)
	units, err := Translate(m.Graph, weights, be, m.OpsetVersion(), batchAxis)
	if err != nil {
		return nil, err
	}

	inputs := make([]string, 0, len(m.Graph.Inputs))
	for _, vi := range m.Graph.Inputs {
		if !weights.Has(vi.Name) {
			inputs = append(inputs, vi.Name)
		}
	}
	outputs := make([]string, 0, len(m.Graph.Outputs))
	for _, vi := range m.Graph.Outputs {
		outputs = append(outputs, vi.Name)
	}

	return &Model{
		backend:  be,
		weights:  weights,
		units:    units,
		inputs:   inputs,
		outputs:  outputs,
		Producer: m.ProducerName,
		Opset:    m.OpsetVersion(),
	}, nil
}

// Units exposes the emitted translation sequence.
func (m *Model) Units() []Translation { return m.units }

// Inputs returns the graph input names that must be fed.
func (m *Model) Inputs() []string { return m.inputs }

// Outputs returns the graph output names.
func (m *Model) Outputs() []string { return m.outputs }

// Backend returns the bound numeric runtime.
func (m *Model) Backend() backend.Backend { return m.backend }

// ForwardNamed executes the graph on a named feed and returns every declared
// graph output.
func (m *Model) ForwardNamed(feed map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	acts := make(map[string]*tensor.Tensor, len(m.units)+m.weights.Len()+len(feed))
	for _, name := range m.weights.Names() {
		t, err := m.weights.Tensor(name)
		if err != nil {
			return nil, err
		}
		acts[name] = t
	}
	for _, name := range m.inputs {
		t, ok := feed[name]
		if !ok {
			return nil, errors.Errorf("missing graph input %q", name)
		}
		acts[name] = t
	}

	for i := range m.units {
		u := &m.units[i]
		ins := make([]*tensor.Tensor, len(u.Inputs))
		for j, name := range u.Inputs {
			if name == "" {
				continue // optional input left unbound
			}
			t, ok := acts[name]
			if !ok {
				return nil, errors.Errorf("%s: input %q has not been computed", u.Name, name)
			}
			ins[j] = t
		}
		outs, err := u.Unit.Forward(ins...)
		if err != nil {
			return nil, errors.Wrap(err, u.Name)
		}
		for j, name := range u.Outputs {
			if name == "" || j >= len(outs) {
				continue
			}
			acts[name] = outs[j]
		}
	}

	result := make(map[string]*tensor.Tensor, len(m.outputs))
	for _, name := range m.outputs {
		t, ok := acts[name]
		if !ok {
			return nil, errors.Errorf("graph output %q was never produced", name)
		}
		result[name] = t
	}
	return result, nil
}

// Forward is the single input, single output convenience path.
func (m *Model) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(m.inputs) != 1 {
		return nil, errors.Errorf("Forward requires exactly one graph input, model has %d", len(m.inputs))
	}
	if len(m.outputs) != 1 {
		return nil, errors.Errorf("Forward requires exactly one graph output, model has %d", len(m.outputs))
	}
	outs, err := m.ForwardNamed(map[string]*tensor.Tensor{m.inputs[0]: x})
	if err != nil {
		return nil, err
	}
	return outs[m.outputs[0]], nil
}
