package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnx2born/internal/backend/cpu"
	"github.com/born-ml/onnx2born/internal/tensor"
)

func f32(t *testing.T, shape tensor.Shape, vals ...float32) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.FromFloat32(shape, vals)
	require.NoError(t, err)
	return tt
}

func i64(t *testing.T, shape tensor.Shape, vals ...int64) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.FromInt64(shape, vals)
	require.NoError(t, err)
	return tt
}

func forward1(t *testing.T, u Unit, inputs ...*tensor.Tensor) *tensor.Tensor {
	t.Helper()
	outs, err := u.Forward(inputs...)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	return outs[0]
}

func TestIdentity(t *testing.T) {
	x := f32(t, tensor.Shape{2}, 1, 2)
	assert.Same(t, x, forward1(t, Identity{}, x))

	_, err := Identity{}.Forward()
	assert.Error(t, err)
}

func TestLinear(t *testing.T) {
	be := cpu.New()
	// weight [out=2, in=3]
	w := f32(t, tensor.Shape{2, 3}, 1, 0, 0, 0, 1, 0)
	bias := f32(t, tensor.Shape{2}, 10, 20)
	lin, err := NewLinear(be, w, bias, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, lin.InFeatures())
	assert.Equal(t, 2, lin.OutFeatures())

	x := f32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	y := forward1(t, lin, x)
	assert.Equal(t, tensor.Shape{2, 2}, y.Shape())
	assert.Equal(t, []float32{11, 22, 14, 25}, y.Float32s())
}

func TestLinearBiasShapeMismatch(t *testing.T) {
	_, err := NewLinear(cpu.New(), f32(t, tensor.Shape{2, 3}, make([]float32, 6)...), f32(t, tensor.Shape{3}, 1, 2, 3), 1)
	assert.Error(t, err)
}

func TestAddFeatureAxis(t *testing.T) {
	be := cpu.New()
	// NCHW activations plus a per-channel vector: the vector must land on
	// axis 1, not broadcast against the trailing axis.
	x := f32(t, tensor.Shape{1, 2, 1, 2}, 1, 2, 3, 4)
	ch := f32(t, tensor.Shape{2}, 10, 20)

	add := &Add{Backend: be, FeatureAxis: 1}
	y := forward1(t, add, x, ch)
	assert.Equal(t, []float32{11, 12, 23, 24}, y.Float32s())

	// Operand order does not matter.
	y = forward1(t, add, ch, x)
	assert.Equal(t, []float32{11, 12, 23, 24}, y.Float32s())

	// Matching ranks fall through to plain broadcasting.
	y = forward1(t, add, x, x)
	assert.Equal(t, []float32{2, 4, 6, 8}, y.Float32s())
}

func TestSubDivConst(t *testing.T) {
	be := cpu.New()
	x := f32(t, tensor.Shape{3}, 10, 20, 30)
	y := f32(t, tensor.Shape{1}, 2)

	out := forward1(t, &SubConst{Backend: be, Y: y}, x)
	assert.Equal(t, []float32{8, 18, 28}, out.Float32s())

	out = forward1(t, &DivConst{Backend: be, Y: y}, x)
	assert.Equal(t, []float32{5, 10, 15}, out.Float32s())

	// Extra inputs, such as the constant-producing node's own output,
	// are ignored.
	out = forward1(t, &SubConst{Backend: be, Y: y}, x, y)
	assert.Equal(t, []float32{8, 18, 28}, out.Float32s())
}

func TestBinaryFoldsVariadic(t *testing.T) {
	be := cpu.New()
	u := &Binary{Op: "max", F: be.Maximum}
	out := forward1(t, u,
		f32(t, tensor.Shape{2}, 1, 9),
		f32(t, tensor.Shape{2}, 5, 2),
		f32(t, tensor.Shape{2}, 3, 3),
	)
	assert.Equal(t, []float32{5, 9}, out.Float32s())
}

func TestConstantUnits(t *testing.T) {
	v := f32(t, tensor.Shape{2}, 7, 8)
	assert.Same(t, v, forward1(t, &Constant{Value: v}))

	shape := i64(t, tensor.Shape{2}, 2, 3)
	fill := f32(t, tensor.Shape{1}, 5)
	out := forward1(t, &ConstantOfShape{Value: fill}, shape)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{5, 5, 5, 5, 5, 5}, out.Float32s())

	// Default fill is float32 zero.
	out = forward1(t, &ConstantOfShape{}, shape)
	assert.Equal(t, tensor.Float32, out.DType())
	assert.Equal(t, []float32{0, 0, 0, 0, 0, 0}, out.Float32s())
}

func TestShapeUnit(t *testing.T) {
	x := f32(t, tensor.Shape{2, 3, 4}, make([]float32, 24)...)
	out := forward1(t, Shape{}, x)
	assert.Equal(t, tensor.Int64, out.DType())
	assert.Equal(t, []int64{2, 3, 4}, out.Int64s())
}

func TestRange(t *testing.T) {
	out := forward1(t, Range{},
		i64(t, tensor.Shape{}, 2),
		i64(t, tensor.Shape{}, 10),
		i64(t, tensor.Shape{}, 3),
	)
	assert.Equal(t, []int64{2, 5, 8}, out.Int64s())

	fout := forward1(t, Range{},
		f32(t, tensor.Shape{}, 0),
		f32(t, tensor.Shape{}, 1),
		f32(t, tensor.Shape{}, 0.5),
	)
	assert.Equal(t, []float32{0, 0.5}, fout.Float32s())

	_, err := Range{}.Forward(
		i64(t, tensor.Shape{}, 0),
		i64(t, tensor.Shape{}, 1),
		i64(t, tensor.Shape{}, 0),
	)
	assert.Error(t, err)
}

func TestReshapeUnit(t *testing.T) {
	x := f32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	out := forward1(t, &Reshape{Target: tensor.Shape{3, 2}}, x)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())

	// Runtime shape input with 0 (copy) and -1 (infer).
	out = forward1(t, &Reshape{}, x, i64(t, tensor.Shape{2}, 0, -1))
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())

	_, err := (&Reshape{}).Forward(x)
	assert.Error(t, err, "no target and no shape input")
}

func TestSqueezeUnsqueezeUnits(t *testing.T) {
	x := f32(t, tensor.Shape{1, 3, 1}, 1, 2, 3)

	out := forward1(t, &Squeeze{}, x)
	assert.Equal(t, tensor.Shape{3}, out.Shape())

	out = forward1(t, &Squeeze{}, x, i64(t, tensor.Shape{1}, 2))
	assert.Equal(t, tensor.Shape{1, 3}, out.Shape())

	out = forward1(t, &Unsqueeze{Axes: []int{0}}, f32(t, tensor.Shape{2}, 1, 2))
	assert.Equal(t, tensor.Shape{1, 2}, out.Shape())

	out = forward1(t, &Unsqueeze{}, f32(t, tensor.Shape{2}, 1, 2), i64(t, tensor.Shape{1}, 1))
	assert.Equal(t, tensor.Shape{2, 1}, out.Shape())
}

func TestSliceUnit(t *testing.T) {
	x := f32(t, tensor.Shape{4}, 0, 1, 2, 3)

	out := forward1(t, &Slice{Starts: []int{1}, Ends: []int{3}}, x)
	assert.Equal(t, []float32{1, 2}, out.Float32s())

	out = forward1(t, &Slice{}, x,
		i64(t, tensor.Shape{1}, 0),
		i64(t, tensor.Shape{1}, 4),
		i64(t, tensor.Shape{1}, 0),
		i64(t, tensor.Shape{1}, 2),
	)
	assert.Equal(t, []float32{0, 2}, out.Float32s())
}

func TestSplitUnit(t *testing.T) {
	x := f32(t, tensor.Shape{6}, 0, 1, 2, 3, 4, 5)

	outs, err := (&Split{Axis: 0, NumOutputs: 3}).Forward(x)
	require.NoError(t, err)
	require.Len(t, outs, 3)
	assert.Equal(t, []float32{2, 3}, outs[1].Float32s())

	outs, err = (&Split{Axis: 0, Sizes: []int{4, 2}}).Forward(x)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, []float32{4, 5}, outs[1].Float32s())
}

func TestPadUnit(t *testing.T) {
	x := f32(t, tensor.Shape{2}, 1, 2)

	out := forward1(t, &Pad{Pads: []int{1, 1}, Value: 7}, x)
	assert.Equal(t, []float32{7, 1, 2, 7}, out.Float32s())

	out = forward1(t, &Pad{}, x, i64(t, tensor.Shape{2}, 2, 0), f32(t, tensor.Shape{1}, 3))
	assert.Equal(t, []float32{3, 3, 1, 2}, out.Float32s())

	_, err := (&Pad{Mode: "reflect", Pads: []int{1, 1}}).Forward(x)
	assert.Error(t, err)
}

func TestClipUnit(t *testing.T) {
	be := cpu.New()
	x := f32(t, tensor.Shape{3}, -5, 0, 5)

	lo := -1.0
	out := forward1(t, &Clip{Backend: be, Min: &lo}, x)
	assert.Equal(t, []float32{-1, 0, 5}, out.Float32s())

	// Runtime bounds override; a nil slot leaves the bound open.
	out = forward1(t, &Clip{Backend: be}, x, nil, f32(t, tensor.Shape{1}, 1))
	assert.Equal(t, []float32{-5, 0, 1}, out.Float32s())
}

func TestResizeUnit(t *testing.T) {
	be := cpu.New()
	x := f32(t, tensor.Shape{1, 1, 2, 2}, 1, 2, 3, 4)

	// Attribute scales, nearest mode.
	u := &Resize{Backend: be, Mode: "nearest", Scales: []float64{1, 1, 2, 2}}
	out := forward1(t, u, x)
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, out.Shape())

	// Runtime scales input (roi slot left empty).
	scales := f32(t, tensor.Shape{4}, 1, 1, 2, 2)
	out = forward1(t, &Resize{Backend: be, Mode: "nearest"}, x, nil, scales)
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, out.Shape())

	// Explicit sizes input wins.
	sizes := i64(t, tensor.Shape{4}, 1, 1, 3, 3)
	out = forward1(t, &Resize{Backend: be, Mode: "nearest"}, x, nil, nil, sizes)
	assert.Equal(t, tensor.Shape{1, 1, 3, 3}, out.Shape())

	// Non-spatial scaling is rejected.
	bad := f32(t, tensor.Shape{4}, 2, 1, 1, 1)
	_, err := (&Resize{Backend: be, Mode: "nearest"}).Forward(x, nil, bad)
	assert.Error(t, err)
}

func TestBatchNorm(t *testing.T) {
	be := cpu.New()
	x := f32(t, tensor.Shape{1, 2, 1, 2}, 1, 2, 3, 4)
	u := &BatchNorm{
		Backend: be,
		Scale:   f32(t, tensor.Shape{2}, 1, 2),
		Bias:    f32(t, tensor.Shape{2}, 0, 1),
		Mean:    f32(t, tensor.Shape{2}, 1, 3),
		Var:     f32(t, tensor.Shape{2}, 1, 4),
		Eps:     0,
	}
	y := forward1(t, u, x)
	// channel 0: (x-1)/1*1+0 ; channel 1: (x-3)/2*2+1
	assert.InDeltaSlice(t, []float32{0, 1, 1, 2}, y.Float32s(), 1e-6)
}

func TestInstanceNorm(t *testing.T) {
	be := cpu.New()
	x := f32(t, tensor.Shape{1, 1, 1, 4}, 1, 2, 3, 4)
	u := &InstanceNorm{
		Backend: be,
		Scale:   f32(t, tensor.Shape{1}, 2),
		Bias:    f32(t, tensor.Shape{1}, 1),
		Eps:     0,
	}
	y := forward1(t, u, x)
	// mean 2.5, var 1.25: normalized = (x-2.5)/sqrt(1.25), then *2+1.
	got := y.Float32s()
	assert.InDelta(t, 1-2*1.3416408, float64(got[0]), 1e-5)
	assert.InDelta(t, 1-2*0.4472136, float64(got[1]), 1e-5)
	assert.InDelta(t, 1+2*0.4472136, float64(got[2]), 1e-5)
	assert.InDelta(t, 1+2*1.3416408, float64(got[3]), 1e-5)
}

func TestGlobalAvgPool(t *testing.T) {
	be := cpu.New()
	x := f32(t, tensor.Shape{1, 2, 2, 2}, 1, 2, 3, 4, 5, 6, 7, 8)
	y := forward1(t, &GlobalAvgPool{Backend: be}, x)
	assert.Equal(t, tensor.Shape{1, 2, 1, 1}, y.Shape())
	assert.Equal(t, []float32{2.5, 6.5}, y.Float32s())
}

func TestGatherCastConcatUnits(t *testing.T) {
	x := f32(t, tensor.Shape{3}, 10, 20, 30)

	out := forward1(t, &Gather{Axis: 0}, x, i64(t, tensor.Shape{2}, 2, 0))
	assert.Equal(t, []float32{30, 10}, out.Float32s())

	cast := forward1(t, &Cast{To: tensor.Int64}, x)
	assert.Equal(t, []int64{10, 20, 30}, cast.Int64s())

	cat := forward1(t, &Concat{Axis: 0}, x, x)
	assert.Equal(t, tensor.Shape{6}, cat.Shape())
}
