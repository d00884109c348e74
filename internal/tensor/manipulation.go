package tensor

import (
	"github.com/pkg/errors"
)

// Layout operations. These are dtype-agnostic: they move elements as opaque
// byte groups, so every DataType is supported uniformly.

// incCoord advances a multi-index in row-major order. Returns false after
// the last coordinate.
func incCoord(coord []int, shape Shape) bool {
	for i := len(coord) - 1; i >= 0; i-- {
		coord[i]++
		if coord[i] < shape[i] {
			return true
		}
		coord[i] = 0
	}
	return false
}

// Reshape returns a view with a new shape. One dimension may be -1.
func Reshape(t *Tensor, shape Shape) (*Tensor, error) {
	return t.WithShape(shape)
}

// Flatten collapses dimensions [0,axis) into one and [axis,rank) into
// another, yielding a 2-D tensor.
func Flatten(t *Tensor, axis int) (*Tensor, error) {
	rank := t.Rank()
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis > rank {
		return nil, errors.Errorf("flatten axis %d out of range for rank %d", axis, rank)
	}
	outer := 1
	for _, d := range t.shape[:axis] {
		outer *= d
	}
	return t.WithShape(Shape{outer, t.NumElements() / outer})
}

// Squeeze removes size-1 dimensions. With no axes, all size-1 dimensions
// are removed.
func Squeeze(t *Tensor, axes ...int) (*Tensor, error) {
	drop := make(map[int]bool, len(axes))
	for _, a := range axes {
		n, err := t.shape.Normalize(a)
		if err != nil {
			return nil, err
		}
		if t.shape[n] != 1 {
			return nil, errors.Errorf("cannot squeeze axis %d of size %d", n, t.shape[n])
		}
		drop[n] = true
	}
	out := make(Shape, 0, t.Rank())
	for i, d := range t.shape {
		if len(axes) == 0 && d == 1 {
			continue
		}
		if drop[i] {
			continue
		}
		out = append(out, d)
	}
	return t.WithShape(out)
}

// Unsqueeze inserts size-1 dimensions at the given positions in the output
// shape.
func Unsqueeze(t *Tensor, axes ...int) (*Tensor, error) {
	if len(axes) == 0 {
		return nil, errors.New("unsqueeze requires at least one axis")
	}
	outRank := t.Rank() + len(axes)
	insert := make(map[int]bool, len(axes))
	for _, a := range axes {
		if a < 0 {
			a += outRank
		}
		if a < 0 || a >= outRank || insert[a] {
			return nil, errors.Errorf("invalid unsqueeze axes %v for rank %d", axes, t.Rank())
		}
		insert[a] = true
	}
	out := make(Shape, 0, outRank)
	src := 0
	for i := 0; i < outRank; i++ {
		if insert[i] {
			out = append(out, 1)
		} else {
			out = append(out, t.shape[src])
			src++
		}
	}
	return t.WithShape(out)
}

// Transpose permutes dimensions. An empty permutation reverses them.
func Transpose(t *Tensor, perm ...int) (*Tensor, error) {
	rank := t.Rank()
	if len(perm) == 0 {
		perm = make([]int, rank)
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}
	if len(perm) != rank {
		return nil, errors.Errorf("permutation %v does not match rank %d", perm, rank)
	}
	seen := make([]bool, rank)
	outShape := make(Shape, rank)
	for i, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return nil, errors.Errorf("invalid permutation %v", perm)
		}
		seen[p] = true
		outShape[i] = t.shape[p]
	}

	out, err := New(outShape, t.dtype)
	if err != nil {
		return nil, err
	}
	es := t.dtype.Size()
	inStrides := t.shape.Strides()
	coord := make([]int, rank)
	dst := 0
	for {
		src := 0
		for i, p := range perm {
			src += coord[i] * inStrides[p]
		}
		copy(out.data[dst*es:(dst+1)*es], t.data[src*es:(src+1)*es])
		dst++
		if !incCoord(coord, outShape) {
			break
		}
	}
	return out, nil
}

// Concat joins tensors along an axis. All inputs must share dtype and every
// dimension except the concatenation axis.
func Concat(ts []*Tensor, axis int) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.New("concat requires at least one tensor")
	}
	first := ts[0]
	naxis, err := first.shape.Normalize(axis)
	if err != nil {
		return nil, err
	}
	outShape := first.shape.Clone()
	for _, t := range ts[1:] {
		if t.dtype != first.dtype || t.Rank() != first.Rank() {
			return nil, errors.New("concat inputs must share dtype and rank")
		}
		for i, d := range t.shape {
			if i == naxis {
				continue
			}
			if d != first.shape[i] {
				return nil, errors.Errorf("concat shape mismatch at axis %d", i)
			}
		}
		outShape[naxis] += t.shape[naxis]
	}

	out, err := New(outShape, first.dtype)
	if err != nil {
		return nil, err
	}
	es := first.dtype.Size()
	outer := 1
	for _, d := range outShape[:naxis] {
		outer *= d
	}
	inner := es
	for _, d := range outShape[naxis+1:] {
		inner *= d
	}
	dst := 0
	for o := 0; o < outer; o++ {
		for _, t := range ts {
			block := t.shape[naxis] * inner
			copy(out.data[dst:dst+block], t.data[o*block:(o+1)*block])
			dst += block
		}
	}
	return out, nil
}

// Split divides a tensor along an axis into segments of the given sizes.
func Split(t *Tensor, axis int, sizes []int) ([]*Tensor, error) {
	naxis, err := t.shape.Normalize(axis)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total != t.shape[naxis] {
		return nil, errors.Errorf("split sizes %v do not cover axis of size %d", sizes, t.shape[naxis])
	}

	es := t.dtype.Size()
	outer := 1
	for _, d := range t.shape[:naxis] {
		outer *= d
	}
	inner := es
	for _, d := range t.shape[naxis+1:] {
		inner *= d
	}
	srcBlock := t.shape[naxis] * inner

	outs := make([]*Tensor, len(sizes))
	offset := 0
	for i, size := range sizes {
		shape := t.shape.Clone()
		shape[naxis] = size
		part, err := New(shape, t.dtype)
		if err != nil {
			return nil, err
		}
		block := size * inner
		for o := 0; o < outer; o++ {
			copy(part.data[o*block:(o+1)*block], t.data[o*srcBlock+offset:o*srcBlock+offset+block])
		}
		outs[i] = part
		offset += block
	}
	return outs, nil
}

// SplitEven divides a tensor along an axis into n equal segments.
func SplitEven(t *Tensor, axis, n int) ([]*Tensor, error) {
	naxis, err := t.shape.Normalize(axis)
	if err != nil {
		return nil, err
	}
	if n <= 0 || t.shape[naxis]%n != 0 {
		return nil, errors.Errorf("cannot split axis of size %d into %d segments", t.shape[naxis], n)
	}
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = t.shape[naxis] / n
	}
	return Split(t, axis, sizes)
}

// Slice extracts strided ranges. starts/ends follow ONNX semantics: negative
// values wrap, out-of-range values clamp. axes defaults to [0..len(starts)),
// steps defaults to 1. Negative steps are not supported.
func Slice(t *Tensor, starts, ends, axes, steps []int) (*Tensor, error) {
	rank := t.Rank()
	if axes == nil {
		axes = make([]int, len(starts))
		for i := range axes {
			axes[i] = i
		}
	}
	if steps == nil {
		steps = make([]int, len(starts))
		for i := range steps {
			steps[i] = 1
		}
	}
	if len(starts) != len(ends) || len(starts) != len(axes) || len(starts) != len(steps) {
		return nil, errors.New("slice starts/ends/axes/steps length mismatch")
	}

	begin := make([]int, rank)
	step := make([]int, rank)
	outShape := t.shape.Clone()
	for i := range step {
		step[i] = 1
	}
	for i, a := range axes {
		na, err := t.shape.Normalize(a)
		if err != nil {
			return nil, err
		}
		if steps[i] <= 0 {
			return nil, errors.Errorf("slice step %d not supported", steps[i])
		}
		dim := t.shape[na]
		s := clampIndex(starts[i], dim)
		e := clampIndex(ends[i], dim)
		if e < s {
			e = s
		}
		begin[na] = s
		step[na] = steps[i]
		outShape[na] = (e - s + steps[i] - 1) / steps[i]
	}
	for _, d := range outShape {
		if d == 0 {
			return nil, errors.Errorf("slice of %v produces an empty tensor", t.shape)
		}
	}

	out, err := New(outShape, t.dtype)
	if err != nil {
		return nil, err
	}
	es := t.dtype.Size()
	inStrides := t.shape.Strides()
	coord := make([]int, rank)
	dst := 0
	for {
		src := 0
		for i := range coord {
			src += (begin[i] + coord[i]*step[i]) * inStrides[i]
		}
		copy(out.data[dst*es:(dst+1)*es], t.data[src*es:(src+1)*es])
		dst++
		if !incCoord(coord, outShape) {
			break
		}
	}
	return out, nil
}

func clampIndex(idx, dim int) int {
	if idx < 0 {
		idx += dim
	}
	if idx < 0 {
		return 0
	}
	if idx > dim {
		return dim
	}
	return idx
}

// Gather selects slices along an axis using an integer index tensor.
// Output shape: data.shape[:axis] ++ indices.shape ++ data.shape[axis+1:].
func Gather(data, indices *Tensor, axis int) (*Tensor, error) {
	naxis, err := data.shape.Normalize(axis)
	if err != nil {
		return nil, err
	}
	idx, err := indices.Ints()
	if err != nil {
		return nil, errors.Wrap(err, "gather indices")
	}

	outShape := make(Shape, 0, data.Rank()-1+indices.Rank())
	outShape = append(outShape, data.shape[:naxis]...)
	outShape = append(outShape, indices.shape...)
	outShape = append(outShape, data.shape[naxis+1:]...)

	es := data.dtype.Size()
	outer := 1
	for _, d := range data.shape[:naxis] {
		outer *= d
	}
	inner := es
	for _, d := range data.shape[naxis+1:] {
		inner *= d
	}
	axisDim := data.shape[naxis]
	srcBlock := axisDim * inner

	out := &Tensor{
		data:  make([]byte, outer*len(idx)*inner),
		shape: outShape,
		dtype: data.dtype,
	}
	dst := 0
	for o := 0; o < outer; o++ {
		for _, j := range idx {
			if j < 0 {
				j += axisDim
			}
			if j < 0 || j >= axisDim {
				return nil, errors.Errorf("gather index %d out of range for axis of size %d", j, axisDim)
			}
			copy(out.data[dst:dst+inner], data.data[o*srcBlock+j*inner:o*srcBlock+(j+1)*inner])
			dst += inner
		}
	}
	return out, nil
}

// Expand broadcasts a tensor to the target shape.
func Expand(t *Tensor, target Shape) (*Tensor, error) {
	outShape, err := Broadcast(t.shape, target)
	if err != nil {
		return nil, err
	}
	out, err := New(outShape, t.dtype)
	if err != nil {
		return nil, err
	}
	es := t.dtype.Size()
	srcStrides := BroadcastStrides(t.shape, outShape)
	coord := make([]int, len(outShape))
	dst := 0
	for {
		src := 0
		for i := range coord {
			src += coord[i] * srcStrides[i]
		}
		copy(out.data[dst*es:(dst+1)*es], t.data[src*es:(src+1)*es])
		dst++
		if !incCoord(coord, outShape) {
			break
		}
	}
	return out, nil
}

// Pad adds constant padding. pads holds per-axis leading counts followed by
// per-axis trailing counts, ONNX style: [b0, b1, ..., e0, e1, ...].
func Pad(t *Tensor, pads []int, value float64) (*Tensor, error) {
	rank := t.Rank()
	if len(pads) != 2*rank {
		return nil, errors.Errorf("pad expects %d pad values, got %d", 2*rank, len(pads))
	}
	outShape := make(Shape, rank)
	for i := range outShape {
		if pads[i] < 0 || pads[rank+i] < 0 {
			return nil, errors.New("negative padding not supported")
		}
		outShape[i] = t.shape[i] + pads[i] + pads[rank+i]
	}

	fillT, err := Full(Shape{1}, t.dtype, value)
	if err != nil {
		return nil, err
	}
	es := t.dtype.Size()
	out, err := New(outShape, t.dtype)
	if err != nil {
		return nil, err
	}
	inStrides := t.shape.Strides()
	coord := make([]int, rank)
	dst := 0
	for {
		src := 0
		inside := true
		for i := range coord {
			c := coord[i] - pads[i]
			if c < 0 || c >= t.shape[i] {
				inside = false
				break
			}
			src += c * inStrides[i]
		}
		if inside {
			copy(out.data[dst*es:(dst+1)*es], t.data[src*es:(src+1)*es])
		} else {
			copy(out.data[dst*es:(dst+1)*es], fillT.data)
		}
		dst++
		if !incCoord(coord, outShape) {
			break
		}
	}
	return out, nil
}

// OneHot expands an index tensor into one-hot vectors of the given depth
// inserted at axis. values holds [off, on] and fixes the output dtype.
func OneHot(indices *Tensor, depth, axis int, values *Tensor) (*Tensor, error) {
	if values.NumElements() != 2 {
		return nil, errors.New("one-hot values must hold exactly [off, on]")
	}
	idx, err := indices.Ints()
	if err != nil {
		return nil, errors.Wrap(err, "one-hot indices")
	}
	outRank := indices.Rank() + 1
	if axis < 0 {
		axis += outRank
	}
	if axis < 0 || axis >= outRank {
		return nil, errors.Errorf("one-hot axis out of range for rank %d", outRank)
	}
	outShape := make(Shape, 0, outRank)
	outShape = append(outShape, indices.shape[:axis]...)
	outShape = append(outShape, depth)
	outShape = append(outShape, indices.shape[axis:]...)

	es := values.dtype.Size()
	off := values.data[:es]
	on := values.data[es : 2*es]

	out := &Tensor{
		data:  make([]byte, outShape.NumElements()*es),
		shape: outShape,
		dtype: values.dtype,
	}
	inner := 1
	for _, d := range indices.shape[axis:] {
		inner *= d
	}
	outer := len(idx) / inner
	for e := 0; e < len(out.data); e += es {
		copy(out.data[e:e+es], off)
	}
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			j := idx[o*inner+i]
			if j < 0 {
				j += depth
			}
			if j < 0 || j >= depth {
				continue
			}
			pos := (o*depth+j)*inner + i
			copy(out.data[pos*es:(pos+1)*es], on)
		}
	}
	return out, nil
}
