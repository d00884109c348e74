// Package ops holds the executable operator units the converter emits.
// Each unit is a small struct: structural layers bind their parameters at
// construction time, primitives receive everything through Forward.
package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

// Unit is one executable operator. Forward takes the node's runtime inputs
// in declared order and returns its outputs.
type Unit interface {
	Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error)
}

// one wraps a single output.
func one(t *tensor.Tensor) []*tensor.Tensor { return []*tensor.Tensor{t} }

// need checks the minimum input count.
func need(op string, n int, inputs []*tensor.Tensor) error {
	if len(inputs) < n {
		return errors.Errorf("%s expects at least %d input(s), got %d", op, n, len(inputs))
	}
	for i := 0; i < n; i++ {
		if inputs[i] == nil {
			return errors.Errorf("%s input %d is nil", op, i)
		}
	}
	return nil
}

// Identity passes its input through unchanged. Also stands in for Dropout,
// which is a no-op at inference time.
type Identity struct{}

func (Identity) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := need("identity", 1, inputs); err != nil {
		return nil, err
	}
	return one(inputs[0]), nil
}
