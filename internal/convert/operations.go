package convert

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/onnxpb"
	"github.com/born-ml/onnx2born/internal/ops"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// ErrUnsupportedOp marks an operator kind the engine cannot lower. The
// returned error wraps it with the offending op type; match with errors.Is.
var ErrUnsupportedOp = errors.New("unsupported operator")

// Translation is one emitted unit: ID is the producing node's first output
// name and keys the unit for the assembler; Name is "{OpType}_{ID}" and
// exists for diagnostics only.
type Translation struct {
	ID   string
	Name string
	Unit ops.Unit

	// Runtime wiring for the assembler. Inputs excludes parameters already
	// bound into the unit at translation time.
	Inputs  []string
	Outputs []string
}

// translator carries the per-pass state shared by the translate functions.
type translator struct {
	backend   backend.Backend
	weights   *WeightIndex
	opset     int64
	batchAxis int

	unaryBuiltins  map[string]func(*tensor.Tensor) (*tensor.Tensor, error)
	binaryBuiltins map[string]func(a, b *tensor.Tensor) (*tensor.Tensor, error)
}

// translateFunc lowers one node. prev and next are the neighbouring nodes in
// pass order (nil at the edges); the bool reports that next was absorbed.
type translateFunc func(tc *translator, node, prev, next *onnxpb.NodeProto) (ops.Unit, bool, error)

// simple adapts a builder that never looks at its neighbours.
func simple(f func(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error)) translateFunc {
	return func(tc *translator, node, _, _ *onnxpb.NodeProto) (ops.Unit, bool, error) {
		u, err := f(tc, node)
		return u, false, err
	}
}

var registry = map[string]translateFunc{
	// Structural layers.
	"Conv":                  simple(buildConv),
	"ConvTranspose":         simple(buildConvTranspose),
	"MaxPool":               simple(buildMaxPool),
	"AveragePool":           simple(buildAvgPool),
	"GlobalAveragePool":     simple(translateGlobalAvgPool),
	"Gemm":                  simple(buildGemm),
	"BatchNormalization":    simple(buildBatchNorm),
	"InstanceNormalization": simple(buildInstanceNorm),

	// Parameterless primitives.
	"Relu":       simple(unary("relu", func(tc *translator) unaryFn { return tc.backend.Relu })),
	"Sigmoid":    simple(unary("sigmoid", func(tc *translator) unaryFn { return tc.backend.Sigmoid })),
	"Tanh":       simple(unary("tanh", func(tc *translator) unaryFn { return tc.backend.Tanh })),
	"Erf":        simple(unary("erf", func(tc *translator) unaryFn { return tc.backend.Erf })),
	"Log":        simple(unary("log", func(tc *translator) unaryFn { return tc.backend.Log })),
	"Exp":        simple(unary("exp", func(tc *translator) unaryFn { return tc.backend.Exp })),
	"Sqrt":       simple(unary("sqrt", func(tc *translator) unaryFn { return tc.backend.Sqrt })),
	"Reciprocal": simple(unary("reciprocal", func(tc *translator) unaryFn { return tc.backend.Reciprocal })),
	"Not":        simple(unary("not", func(tc *translator) unaryFn { return tc.backend.Not })),
	"Mul":        simple(binary("mul", func(tc *translator) binaryFn { return tc.backend.Mul })),
	"Pow":        simple(binary("pow", func(tc *translator) binaryFn { return tc.backend.Pow })),
	"Equal":      simple(binary("equal", func(tc *translator) binaryFn { return tc.backend.Equal })),
	"And":        simple(binary("and", func(tc *translator) binaryFn { return tc.backend.And })),
	"Or":         simple(binary("or", func(tc *translator) binaryFn { return tc.backend.Or })),
	"Where":      simple(func(tc *translator, _ *onnxpb.NodeProto) (ops.Unit, error) { return &ops.Where{Backend: tc.backend}, nil }),
	"Identity":   simple(func(_ *translator, _ *onnxpb.NodeProto) (ops.Unit, error) { return ops.Identity{}, nil }),
	"Dropout":    simple(func(_ *translator, _ *onnxpb.NodeProto) (ops.Unit, error) { return ops.Identity{}, nil }),
	"Shape":      simple(func(_ *translator, _ *onnxpb.NodeProto) (ops.Unit, error) { return ops.Shape{}, nil }),
	"Expand":     simple(func(_ *translator, _ *onnxpb.NodeProto) (ops.Unit, error) { return ops.Expand{}, nil }),
	"Range":      simple(func(_ *translator, _ *onnxpb.NodeProto) (ops.Unit, error) { return ops.Range{}, nil }),

	// Attribute-parameterized library units.
	"LeakyRelu":       simple(translateLeakyRelu),
	"Elu":             simple(translateElu),
	"Clip":            simple(translateClip),
	"Softmax":         simple(translateSoftmax),
	"Flatten":         simple(translateFlatten),
	"Concat":          simple(translateConcat),
	"Transpose":       simple(translateTranspose),
	"Gather":          simple(translateGather),
	"Squeeze":         simple(translateSqueeze),
	"Unsqueeze":       simple(translateUnsqueeze),
	"Slice":           simple(translateSlice),
	"Cast":            simple(translateCast),
	"OneHot":          simple(translateOneHot),
	"Pad":             simple(translatePad),
	"Resize":          simple(translateResize),
	"Upsample":        simple(translateUpsample),
	"Split":           simple(translateSplit),
	"ReduceMean":      simple(translateReduceMean),
	"Reshape":         simple(translateReshape),
	"Constant":        simple(translateConstant),
	"ConstantOfShape": simple(translateConstantOfShape),
	"Add":             simple(translateAdd),

	// Kinds with local graph rewrites.
	"MatMul": translateMatMul,
	"Sub":    translateSub,
	"Div":    translateDiv,
}

// RegisteredKinds lists every operator kind the registry lowers, sorted.
func RegisteredKinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Translate lowers a graph into an ordered unit sequence: a single forward
// pass over its own copy of the node slice, one Translation per surviving
// node. MatMul+Add fusion advances the cursor past the absorbed Add and the
// fused unit assumes its output name.
func Translate(graph *onnxpb.GraphProto, weights *WeightIndex, be backend.Backend, opset int64, batchAxis int) ([]Translation, error) {
	tc := newTranslator(be, weights, opset, batchAxis)
	nodes := make([]onnxpb.NodeProto, len(graph.Nodes))
	copy(nodes, graph.Nodes)

	out := make([]Translation, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for i := 0; i < len(nodes); i++ {
		node := &nodes[i]
		var prev, next *onnxpb.NodeProto
		if i > 0 {
			prev = &nodes[i-1]
		}
		if i+1 < len(nodes) {
			next = &nodes[i+1]
		}

		var unit ops.Unit
		var consumed bool
		var err error
		if fn, ok := registry[node.OpType]; ok {
			unit, consumed, err = fn(tc, node, prev, next)
		} else {
			unit, err = tc.fallback(node)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "node %q (%s)", node.Name, node.OpType)
		}
		if len(node.Outputs) == 0 {
			return nil, errors.Errorf("node %q (%s) declares no outputs", node.Name, node.OpType)
		}

		outputs := node.Outputs
		if consumed {
			outputs = next.Outputs
			i++
		}
		id := outputs[0]
		if seen[id] {
			return nil, errors.Errorf("duplicate operator id %q", id)
		}
		seen[id] = true

		out = append(out, Translation{
			ID:      id,
			Name:    node.OpType + "_" + id,
			Unit:    unit,
			Inputs:  tc.runtimeInputs(node, unit),
			Outputs: outputs,
		})
	}
	return out, nil
}

func newTranslator(be backend.Backend, weights *WeightIndex, opset int64, batchAxis int) *translator {
	return &translator{
		backend:   be,
		weights:   weights,
		opset:     opset,
		batchAxis: batchAxis,
		unaryBuiltins: map[string]func(*tensor.Tensor) (*tensor.Tensor, error){
			"abs":   be.Abs,
			"ceil":  be.Ceil,
			"floor": be.Floor,
			"neg":   be.Neg,
			"sign":  be.Sign,
			"sin":   be.Sin,
			"cos":   be.Cos,
			"tan":   be.Tan,
			"round": be.Round,
		},
		binaryBuiltins: map[string]func(a, b *tensor.Tensor) (*tensor.Tensor, error){
			"min": be.Minimum,
			"max": be.Maximum,
		},
	}
}

// fallback maps an unregistered kind onto a same-named backend built-in.
// A miss is fatal.
func (tc *translator) fallback(node *onnxpb.NodeProto) (ops.Unit, error) {
	lower := strings.ToLower(node.OpType)
	if f, ok := tc.unaryBuiltins[lower]; ok {
		klog.Infof("inferred operator %s -> backend builtin %q", node.OpType, lower)
		return &ops.Unary{Op: lower, F: f}, nil
	}
	if f, ok := tc.binaryBuiltins[lower]; ok {
		klog.Infof("inferred operator %s -> backend builtin %q", node.OpType, lower)
		return &ops.Binary{Op: lower, F: f}, nil
	}
	return nil, errors.Wrap(ErrUnsupportedOp, node.OpType)
}

// runtimeInputs lists the input names the unit reads at run time. Units that
// bound their parameters during translation skip initializer inputs.
func (tc *translator) runtimeInputs(node *onnxpb.NodeProto, unit ops.Unit) []string {
	switch unit.(type) {
	case *ops.Constant:
		return nil
	case *ops.Linear, *ops.Conv2D, *ops.ConvTranspose2D, *ops.BatchNorm, *ops.InstanceNorm:
		kept := make([]string, 0, 1)
		for _, in := range node.Inputs {
			if in != "" && !tc.weights.Has(in) {
				kept = append(kept, in)
			}
		}
		return kept
	default:
		return node.Inputs
	}
}

type unaryFn = func(*tensor.Tensor) (*tensor.Tensor, error)
type binaryFn = func(a, b *tensor.Tensor) (*tensor.Tensor, error)

func unary(op string, pick func(tc *translator) unaryFn) func(*translator, *onnxpb.NodeProto) (ops.Unit, error) {
	return func(tc *translator, _ *onnxpb.NodeProto) (ops.Unit, error) {
		return &ops.Unary{Op: op, F: pick(tc)}, nil
	}
}

func binary(op string, pick func(tc *translator) binaryFn) func(*translator, *onnxpb.NodeProto) (ops.Unit, error) {
	return func(tc *translator, _ *onnxpb.NodeProto) (ops.Unit, error) {
		return &ops.Binary{Op: op, F: pick(tc)}, nil
	}
}

// translateMatMul lowers MatMul, fusing a directly following Add into an
// affine unit when a constant operand is present. The matmul output is
// assumed to have no other consumers; the engine does not verify this.
func translateMatMul(tc *translator, node, _, next *onnxpb.NodeProto) (ops.Unit, bool, error) {
	var wName string
	for _, in := range node.Inputs {
		if tc.weights.Has(in) {
			wName = in
			break
		}
	}
	if wName == "" {
		return &ops.MatMul{Backend: tc.backend}, false, nil
	}

	w, err := tc.weights.Tensor(wName)
	if err != nil {
		return nil, false, err
	}
	if w.Rank() != 2 {
		return nil, false, errors.Errorf("matmul constant operand must be 2-D, got %v", w.Shape())
	}
	// First operand constant: y = W·x, the weight is already [out, in].
	// Second operand constant: y = x·W, so [in, out] transposes.
	if !tc.weights.Has(node.Inputs[0]) {
		if w, err = tensor.Transpose(w); err != nil {
			return nil, false, err
		}
	}

	var bias *tensor.Tensor
	consumed := false
	if next != nil && next.OpType == "Add" {
		for _, in := range next.Inputs {
			if tc.weights.Has(in) {
				if bias, err = tc.weights.Tensor(in); err != nil {
					return nil, false, err
				}
				consumed = true
				break
			}
		}
	}
	if consumed {
		klog.V(1).Infof("fused MatMul %q with following Add %q", node.Outputs[0], next.Outputs[0])
	}
	lin, err := ops.NewLinear(tc.backend, w, bias, tc.batchAxis+1)
	return lin, consumed, err
}

// translateSub folds a preceding Constant into the unit as the right-hand
// operand; otherwise it is the generic primitive.
func translateSub(tc *translator, _, prev, _ *onnxpb.NodeProto) (ops.Unit, bool, error) {
	if prev != nil && prev.OpType == "Constant" {
		y, err := constantValue(prev)
		if err != nil {
			return nil, false, err
		}
		return &ops.SubConst{Backend: tc.backend, Y: y}, false, nil
	}
	return &ops.Binary{Op: "sub", F: tc.backend.Sub}, false, nil
}

func translateDiv(tc *translator, _, prev, _ *onnxpb.NodeProto) (ops.Unit, bool, error) {
	if prev != nil && prev.OpType == "Constant" {
		y, err := constantValue(prev)
		if err != nil {
			return nil, false, err
		}
		return &ops.DivConst{Backend: tc.backend, Y: y}, false, nil
	}
	return &ops.Binary{Op: "div", F: tc.backend.Div}, false, nil
}

func translateGlobalAvgPool(tc *translator, _ *onnxpb.NodeProto) (ops.Unit, error) {
	return &ops.GlobalAvgPool{Backend: tc.backend}, nil
}

func translateAdd(tc *translator, _ *onnxpb.NodeProto) (ops.Unit, error) {
	return &ops.Add{Backend: tc.backend, FeatureAxis: tc.batchAxis + 1}, nil
}

func translateLeakyRelu(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	alpha, err := attrsOf(node).float("alpha", 0.01)
	if err != nil {
		return nil, err
	}
	return &ops.Unary{Op: "leaky_relu", F: func(x *tensor.Tensor) (*tensor.Tensor, error) {
		return tc.backend.LeakyRelu(x, alpha)
	}}, nil
}

func translateElu(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	alpha, err := attrsOf(node).float("alpha", 1.0)
	if err != nil {
		return nil, err
	}
	return &ops.Unary{Op: "elu", F: func(x *tensor.Tensor) (*tensor.Tensor, error) {
		return tc.backend.Elu(x, alpha)
	}}, nil
}

func translateClip(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	u := &ops.Clip{Backend: tc.backend}
	attrs := attrsOf(node)
	// Bounds are attributes before opset 11 and runtime inputs afterwards.
	if attrs.has("min") {
		v, err := attrs.float("min", 0)
		if err != nil {
			return nil, err
		}
		u.Min = &v
	}
	if attrs.has("max") {
		v, err := attrs.float("max", 0)
		if err != nil {
			return nil, err
		}
		u.Max = &v
	}
	return u, nil
}

func translateSoftmax(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	def := int64(-1)
	if tc.opset < 13 {
		def = 1
	}
	axis, err := attrsOf(node).int("axis", def)
	if err != nil {
		return nil, err
	}
	return &ops.Softmax{Backend: tc.backend, Axis: int(axis)}, nil
}

func translateFlatten(_ *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	axis, err := attrsOf(node).int("axis", 1)
	if err != nil {
		return nil, err
	}
	return &ops.Flatten{Axis: int(axis)}, nil
}

func translateConcat(_ *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	attrs := attrsOf(node)
	if !attrs.has("axis") {
		return nil, errors.New("concat requires an axis attribute")
	}
	axis, err := attrs.int("axis", 0)
	if err != nil {
		return nil, err
	}
	return &ops.Concat{Axis: int(axis)}, nil
}

func translateTranspose(_ *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	perm, err := attrsOf(node).ints("perm")
	if err != nil {
		return nil, err
	}
	return &ops.Transpose{Perm: perm}, nil
}

func translateGather(_ *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	axis, err := attrsOf(node).int("axis", 0)
	if err != nil {
		return nil, err
	}
	return &ops.Gather{Axis: int(axis)}, nil
}

// translateSqueeze reads axes from the attribute on older opsets; from
// opset 13 they arrive as a runtime input.
func translateSqueeze(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	u := &ops.Squeeze{}
	if tc.opset < 13 {
		axes, err := attrsOf(node).ints("axes")
		if err != nil {
			return nil, err
		}
		u.Axes = axes
	}
	return u, nil
}

func translateUnsqueeze(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	u := &ops.Unsqueeze{}
	if tc.opset < 13 {
		axes, err := attrsOf(node).ints("axes")
		if err != nil {
			return nil, err
		}
		if axes == nil {
			return nil, errors.New("unsqueeze requires an axes attribute before opset 13")
		}
		u.Axes = axes
	}
	return u, nil
}

// translateSlice reads ranges from attributes before opset 10; afterwards
// they arrive as runtime inputs.
func translateSlice(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	u := &ops.Slice{}
	if tc.opset < 10 {
		attrs := attrsOf(node)
		starts, err := attrs.ints("starts")
		if err != nil {
			return nil, err
		}
		ends, err := attrs.ints("ends")
		if err != nil {
			return nil, err
		}
		if starts == nil || ends == nil {
			return nil, errors.New("slice requires starts and ends attributes before opset 10")
		}
		axes, err := attrs.ints("axes")
		if err != nil {
			return nil, err
		}
		u.Starts, u.Ends, u.Axes = starts, ends, axes
	}
	return u, nil
}

func translateCast(_ *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	attrs := attrsOf(node)
	if !attrs.has("to") {
		return nil, errors.New("cast requires a to attribute")
	}
	to, err := attrs.int("to", 0)
	if err != nil {
		return nil, err
	}
	dtype, err := dtypeOf(int32(to))
	if err != nil {
		return nil, errors.Wrap(err, "cast target")
	}
	return &ops.Cast{To: dtype}, nil
}

func translateOneHot(_ *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	axis, err := attrsOf(node).int("axis", -1)
	if err != nil {
		return nil, err
	}
	return &ops.OneHot{Axis: int(axis)}, nil
}

// translatePad reads pads from attributes before opset 11; afterwards they
// arrive as runtime inputs.
func translatePad(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	attrs := attrsOf(node)
	mode, err := attrs.str("mode", "constant")
	if err != nil {
		return nil, err
	}
	u := &ops.Pad{Mode: mode}
	if tc.opset < 11 {
		pads, err := attrs.ints("pads")
		if err != nil {
			return nil, err
		}
		if pads == nil {
			return nil, errors.New("pad requires a pads attribute before opset 11")
		}
		value, err := attrs.float("value", 0)
		if err != nil {
			return nil, err
		}
		u.Pads, u.Value = pads, value
	}
	return u, nil
}

func translateResize(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	mode, err := attrsOf(node).str("mode", "nearest")
	if err != nil {
		return nil, err
	}
	return &ops.Resize{Backend: tc.backend, Mode: mode}, nil
}

// translateUpsample is the pre-Resize spelling: opset 7 carries scales as an
// attribute, opset 9 as a runtime input.
func translateUpsample(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	attrs := attrsOf(node)
	mode, err := attrs.str("mode", "nearest")
	if err != nil {
		return nil, err
	}
	scales, err := attrs.floats("scales")
	if err != nil {
		return nil, err
	}
	return &ops.Upsample{Backend: tc.backend, Mode: mode, Scales: scales}, nil
}

// translateSplit falls back to splitting evenly across the declared outputs
// when no sizes are given.
func translateSplit(_ *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	attrs := attrsOf(node)
	axis, err := attrs.int("axis", 0)
	if err != nil {
		return nil, err
	}
	sizes, err := attrs.ints("split")
	if err != nil {
		return nil, err
	}
	u := &ops.Split{Axis: int(axis), Sizes: sizes}
	if sizes == nil {
		u.NumOutputs = len(node.Outputs)
	}
	return u, nil
}

// translateReduceMean keeps reduced dimensions unless the attribute says
// otherwise.
func translateReduceMean(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	attrs := attrsOf(node)
	axes, err := attrs.ints("axes")
	if err != nil {
		return nil, err
	}
	keep, err := attrs.int("keepdims", 1)
	if err != nil {
		return nil, err
	}
	return &ops.ReduceMean{Backend: tc.backend, Axes: axes, KeepDims: keep != 0}, nil
}

// translateReshape resolves the target shape eagerly when the shape input is
// an initializer; otherwise the unit reads it at run time.
func translateReshape(tc *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	u := &ops.Reshape{}
	if len(node.Inputs) > 1 && tc.weights.Has(node.Inputs[1]) {
		shape, err := tc.weights.Tensor(node.Inputs[1])
		if err != nil {
			return nil, err
		}
		dims, err := shape.Ints()
		if err != nil {
			return nil, errors.Wrap(err, "reshape target")
		}
		u.Target = tensor.Shape(dims)
	}
	return u, nil
}

func translateConstant(_ *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	value, err := constantValue(node)
	if err != nil {
		return nil, err
	}
	return &ops.Constant{Value: value}, nil
}

func translateConstantOfShape(_ *translator, node *onnxpb.NodeProto) (ops.Unit, error) {
	tp, err := attrsOf(node).tensor("value")
	if err != nil {
		return nil, err
	}
	u := &ops.ConstantOfShape{}
	if tp != nil {
		if u.Value, err = DecodeTensor(tp); err != nil {
			return nil, err
		}
	}
	return u, nil
}
