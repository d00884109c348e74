package convert

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/onnxpb"
	"github.com/born-ml/onnx2born/internal/ops"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// Builders for structural kinds: units that bind their parameter tensors at
// translation time and take only activations at run time.

func buildConv(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	w, bias, err := tc.convWeights(node)
	if err != nil {
		return nil, err
	}
	p, err := convParams(attrsOf(node))
	if err != nil {
		return nil, err
	}
	return &ops.Conv2D{Backend: tc.backend, Weight: w, Bias: bias, Params: p}, nil
}

func buildConvTranspose(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	w, bias, err := tc.convWeights(node)
	if err != nil {
		return nil, err
	}
	p, err := convParams(attrsOf(node))
	if err != nil {
		return nil, err
	}
	return &ops.ConvTranspose2D{Backend: tc.backend, Weight: w, Bias: bias, Params: p}, nil
}

// convWeights resolves the kernel and optional bias initializers.
func (tc *translator) convWeights(node *onnxpb.NodeProto) (w, bias *tensor.Tensor, err error) {
	if len(node.Inputs) < 2 {
		return nil, nil, errors.New("convolution needs a weight input")
	}
	if w, err = tc.weights.Tensor(node.Inputs[1]); err != nil {
		return nil, nil, err
	}
	if len(node.Inputs) > 2 && node.Inputs[2] != "" {
		if bias, err = tc.weights.Tensor(node.Inputs[2]); err != nil {
			return nil, nil, err
		}
	}
	return w, bias, nil
}

func convParams(attrs attrMap) (backend.ConvParams, error) {
	var p backend.ConvParams
	if pad, err := attrs.str("auto_pad", "NOTSET"); err != nil {
		return p, err
	} else if pad != "NOTSET" {
		return p, errors.Errorf("auto_pad %q not supported, models must carry explicit pads", pad)
	}
	strides, err := attrs.ints("strides")
	if err != nil {
		return p, err
	}
	if p.Strides, err = pair(strides, 1, "strides"); err != nil {
		return p, err
	}
	dilations, err := attrs.ints("dilations")
	if err != nil {
		return p, err
	}
	if p.Dilations, err = pair(dilations, 1, "dilations"); err != nil {
		return p, err
	}
	pads, err := attrs.ints("pads")
	if err != nil {
		return p, err
	}
	if p.Pads, err = quad(pads, "pads"); err != nil {
		return p, err
	}
	outPad, err := attrs.ints("output_padding")
	if err != nil {
		return p, err
	}
	if p.OutputPadding, err = pair(outPad, 0, "output_padding"); err != nil {
		return p, err
	}
	group, err := attrs.int("group", 1)
	if err != nil {
		return p, err
	}
	p.Groups = int(group)
	return p, nil
}

func buildMaxPool(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	p, err := poolParams(attrsOf(node))
	if err != nil {
		return nil, err
	}
	return &ops.MaxPool2D{Backend: tc.backend, Params: p}, nil
}

func buildAvgPool(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	p, err := poolParams(attrsOf(node))
	if err != nil {
		return nil, err
	}
	return &ops.AvgPool2D{Backend: tc.backend, Params: p}, nil
}

func poolParams(attrs attrMap) (backend.PoolParams, error) {
	var p backend.PoolParams
	kernel, err := attrs.ints("kernel_shape")
	if err != nil {
		return p, err
	}
	if len(kernel) != 2 {
		return p, errors.Errorf("pooling needs a 2-D kernel_shape, got %v", kernel)
	}
	p.Kernel = [2]int{kernel[0], kernel[1]}
	strides, err := attrs.ints("strides")
	if err != nil {
		return p, err
	}
	if strides == nil {
		p.Strides = p.Kernel
	} else if p.Strides, err = pair(strides, 1, "strides"); err != nil {
		return p, err
	}
	pads, err := attrs.ints("pads")
	if err != nil {
		return p, err
	}
	if p.Pads, err = quad(pads, "pads"); err != nil {
		return p, err
	}
	cip, err := attrs.int("count_include_pad", 0)
	if err != nil {
		return p, err
	}
	p.CountIncludePad = cip != 0
	return p, nil
}

// buildGemm lowers y = alpha·A·B + beta·C into an affine unit with alpha
// folded into the weight and beta into the bias.
func buildGemm(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	attrs := attrsOf(node)
	transA, err := attrs.int("transA", 0)
	if err != nil {
		return nil, err
	}
	if transA != 0 {
		return nil, errors.New("gemm with transA is not supported")
	}
	transB, err := attrs.int("transB", 0)
	if err != nil {
		return nil, err
	}
	alpha, err := attrs.float("alpha", 1)
	if err != nil {
		return nil, err
	}
	beta, err := attrs.float("beta", 1)
	if err != nil {
		return nil, err
	}

	if len(node.Inputs) < 2 || !tc.weights.Has(node.Inputs[1]) {
		return nil, errors.New("gemm weight must be an initializer")
	}
	w, err := tc.weights.Tensor(node.Inputs[1])
	if err != nil {
		return nil, err
	}
	// Store [out, in]: transB means the model already provides that layout.
	if transB == 0 {
		if w, err = tensor.Transpose(w); err != nil {
			return nil, errors.Wrap(err, "gemm weight")
		}
	}
	if alpha != 1 {
		if w, err = tc.scale(w, alpha); err != nil {
			return nil, errors.Wrap(err, "gemm alpha")
		}
	}

	var bias *tensor.Tensor
	if len(node.Inputs) > 2 && node.Inputs[2] != "" {
		if bias, err = tc.weights.Tensor(node.Inputs[2]); err != nil {
			return nil, err
		}
		if beta != 1 {
			if bias, err = tc.scale(bias, beta); err != nil {
				return nil, errors.Wrap(err, "gemm beta")
			}
		}
	}
	return ops.NewLinear(tc.backend, w, bias, tc.batchAxis+1)
}

func (tc *translator) scale(t *tensor.Tensor, by float64) (*tensor.Tensor, error) {
	s, err := scalarFloat(t.DType(), by)
	if err != nil {
		return nil, err
	}
	return tc.backend.Mul(t, s)
}

func buildBatchNorm(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	if len(node.Inputs) < 5 {
		return nil, errors.New("batch normalization needs scale, bias, mean and variance inputs")
	}
	params := make([]*tensor.Tensor, 4)
	for i := 0; i < 4; i++ {
		t, err := tc.weights.Tensor(node.Inputs[i+1])
		if err != nil {
			return nil, err
		}
		params[i] = t
	}
	eps, err := attrsOf(node).float("epsilon", 1e-5)
	if err != nil {
		return nil, err
	}
	return &ops.BatchNorm{
		Backend: tc.backend,
		Scale:   params[0],
		Bias:    params[1],
		Mean:    params[2],
		Var:     params[3],
		Eps:     eps,
	}, nil
}

func buildInstanceNorm(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	if len(node.Inputs) < 3 {
		return nil, errors.New("instance normalization needs scale and bias inputs")
	}
	scale, err := tc.weights.Tensor(node.Inputs[1])
	if err != nil {
		return nil, err
	}
	bias, err := tc.weights.Tensor(node.Inputs[2])
	if err != nil {
		return nil, err
	}
	eps, err := attrsOf(node).float("epsilon", 1e-5)
	if err != nil {
		return nil, err
	}
	return &ops.InstanceNorm{Backend: tc.backend, Scale: scale, Bias: bias, Eps: eps}, nil
}

func pair(vals []int, def int, name string) ([2]int, error) {
	switch len(vals) {
	case 0:
		return [2]int{def, def}, nil
	case 1:
		return [2]int{vals[0], vals[0]}, nil
	case 2:
		return [2]int{vals[0], vals[1]}, nil
	default:
		return [2]int{}, errors.Errorf("%s must be 2-D, got %v", name, vals)
	}
}

func quad(vals []int, name string) ([4]int, error) {
	switch len(vals) {
	case 0:
		return [4]int{}, nil
	case 2:
		return [4]int{vals[0], vals[1], vals[0], vals[1]}, nil
	case 4:
		return [4]int{vals[0], vals[1], vals[2], vals[3]}, nil
	default:
		return [4]int{}, errors.Errorf("%s must hold 2 or 4 values, got %v", name, vals)
	}
}
