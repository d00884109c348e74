package cpu

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// MaxPool2D slides a max window over NCHW input.
func (b *Backend) MaxPool2D(x *tensor.Tensor, p backend.PoolParams) (*tensor.Tensor, error) {
	return pool2d(x, p, true)
}

// AvgPool2D slides an averaging window over NCHW input. Padded cells are
// excluded from the divisor unless CountIncludePad is set.
func (b *Backend) AvgPool2D(x *tensor.Tensor, p backend.PoolParams) (*tensor.Tensor, error) {
	return pool2d(x, p, false)
}

func pool2d(x *tensor.Tensor, p backend.PoolParams, isMax bool) (*tensor.Tensor, error) {
	if x.Rank() != 4 {
		return nil, errors.Errorf("pool2d expects 4-D input, got %v", x.Shape())
	}
	if !x.DType().IsFloat() {
		return nil, errors.Errorf("pool2d requires a float tensor, got %s", x.DType())
	}
	switch x.DType() {
	case tensor.Float32:
		return pool2dKernel[float32](x, p, isMax)
	default:
		return pool2dKernel[float64](x, p, isMax)
	}
}

func pool2dKernel[T ~float32 | ~float64](x *tensor.Tensor, p backend.PoolParams, isMax bool) (*tensor.Tensor, error) {
	xs := x.Shape()
	n, c, h, w := xs[0], xs[1], xs[2], xs[3]
	kh, kw := p.Kernel[0], p.Kernel[1]
	if kh <= 0 || kw <= 0 {
		return nil, errors.Errorf("pool2d kernel %v must be positive", p.Kernel)
	}
	sh, sw := p.Strides[0], p.Strides[1]
	if sh <= 0 {
		sh = kh
	}
	if sw <= 0 {
		sw = kw
	}
	pt, pl, pb, pr := p.Pads[0], p.Pads[1], p.Pads[2], p.Pads[3]

	oh := (h+pt+pb-kh)/sh + 1
	ow := (w+pl+pr-kw)/sw + 1
	if oh <= 0 || ow <= 0 {
		return nil, errors.Errorf("pool2d produces empty output for input %v", xs)
	}

	out, err := tensor.New(tensor.Shape{n, c, oh, ow}, x.DType())
	if err != nil {
		return nil, err
	}
	src := asSlice[T](x)
	dst := asSlice[T](out)

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			plane := src[(ni*c+ci)*h*w : (ni*c+ci+1)*h*w]
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					var acc float64
					best := math.Inf(-1)
					count := 0
					for ky := 0; ky < kh; ky++ {
						iy := oy*sh - pt + ky
						if iy < 0 || iy >= h {
							continue
						}
						for kx := 0; kx < kw; kx++ {
							ix := ox*sw - pl + kx
							if ix < 0 || ix >= w {
								continue
							}
							v := float64(plane[iy*w+ix])
							if v > best {
								best = v
							}
							acc += v
							count++
						}
					}
					var res float64
					if isMax {
						res = best
					} else {
						div := count
						if p.CountIncludePad {
							div = kh * kw
						}
						if div > 0 {
							res = acc / float64(div)
						}
					}
					dst[((ni*c+ci)*oh+oy)*ow+ox] = T(res)
				}
			}
		}
	}
	return out, nil
}
