// Package onnx2born loads serialized ONNX models and lowers them into
// executable operator units running on the built-in CPU tensor runtime.
package onnx2born

import (
	"os"

	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend/cpu"
	"github.com/born-ml/onnx2born/internal/convert"
	"github.com/born-ml/onnx2born/internal/onnxpb"
)

// Model is a translated, runnable ONNX graph.
type Model = convert.Model

// Option adjusts how a model is loaded.
type Option func(*options)

type options struct {
	batchAxis int
}

// WithBatchAxis sets the batch dimension of the model's activations:
// 0 for vision models (the default), 1 for sequence models.
func WithBatchAxis(axis int) Option {
	return func(o *options) { o.batchAxis = axis }
}

// Load reads and translates a model file.
func Load(path string, opts ...Option) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read model")
	}
	return LoadFromBytes(data, opts...)
}

// LoadFromBytes translates a serialized model.
func LoadFromBytes(data []byte, opts ...Option) (*Model, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	proto, err := onnxpb.Parse(data)
	if err != nil {
		return nil, err
	}
	return convert.NewModel(proto, cpu.New(), o.batchAxis)
}

// ModelInfo summarizes a serialized model without translating it.
type ModelInfo struct {
	Producer        string
	ProducerVersion string
	IRVersion       int64
	Opset           int64
	GraphName       string
	Inputs          []string
	Outputs         []string
	NodeCount       int
	WeightCount     int
	ByteSize        int
}

// Info parses a model file and reports its headline facts.
func Info(path string) (*ModelInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read model")
	}
	proto, err := onnxpb.Parse(data)
	if err != nil {
		return nil, err
	}
	if proto.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	info := &ModelInfo{
		Producer:        proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
		IRVersion:       proto.IRVersion,
		Opset:           proto.OpsetVersion(),
		GraphName:       proto.Graph.Name,
		NodeCount:       len(proto.Graph.Nodes),
		WeightCount:     len(proto.Graph.Initializers),
		ByteSize:        len(data),
	}
	weights := convert.NewWeightIndex(proto.Graph)
	for _, vi := range proto.Graph.Inputs {
		if !weights.Has(vi.Name) {
			info.Inputs = append(info.Inputs, vi.Name)
		}
	}
	for _, vi := range proto.Graph.Outputs {
		info.Outputs = append(info.Outputs, vi.Name)
	}
	return info, nil
}
