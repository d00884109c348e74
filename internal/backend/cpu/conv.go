package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/backend"
	"github.com/born-ml/onnx2born/internal/tensor"
)

// Conv2D computes a grouped 2-D convolution over NCHW input with an
// OIHW kernel (O = out channels, I = in channels / groups).
func (b *Backend) Conv2D(x, w, bias *tensor.Tensor, p backend.ConvParams) (*tensor.Tensor, error) {
	if x.Rank() != 4 || w.Rank() != 4 {
		return nil, errors.Errorf("conv2d expects 4-D input and kernel, got %v and %v", x.Shape(), w.Shape())
	}
	if !x.DType().IsFloat() || x.DType() != w.DType() {
		return nil, errors.Errorf("conv2d requires matching float tensors, got %s and %s", x.DType(), w.DType())
	}
	switch x.DType() {
	case tensor.Float32:
		return conv2dKernel[float32](x, w, bias, p)
	default:
		return conv2dKernel[float64](x, w, bias, p)
	}
}

func conv2dKernel[T ~float32 | ~float64](x, w, bias *tensor.Tensor, p backend.ConvParams) (*tensor.Tensor, error) {
	xs, ws := x.Shape(), w.Shape()
	n, cin, h, wd := xs[0], xs[1], xs[2], xs[3]
	cout, cinG, kh, kw := ws[0], ws[1], ws[2], ws[3]
	g := p.Groups
	if g <= 0 {
		g = 1
	}
	if cin != cinG*g || cout%g != 0 {
		return nil, errors.Errorf("conv2d channel mismatch: input %d, kernel %dx%d groups %d", cin, cout, cinG, g)
	}
	sh, sw := p.Strides[0], p.Strides[1]
	dh, dw := p.Dilations[0], p.Dilations[1]
	if sh <= 0 {
		sh = 1
	}
	if sw <= 0 {
		sw = 1
	}
	if dh <= 0 {
		dh = 1
	}
	if dw <= 0 {
		dw = 1
	}
	pt, pl, pb, pr := p.Pads[0], p.Pads[1], p.Pads[2], p.Pads[3]

	oh := (h+pt+pb-dh*(kh-1)-1)/sh + 1
	ow := (wd+pl+pr-dw*(kw-1)-1)/sw + 1
	if oh <= 0 || ow <= 0 {
		return nil, errors.Errorf("conv2d produces empty output for input %v", xs)
	}

	out, err := tensor.New(tensor.Shape{n, cout, oh, ow}, x.DType())
	if err != nil {
		return nil, err
	}
	src := asSlice[T](x)
	ker := asSlice[T](w)
	dst := asSlice[T](out)
	var bv []T
	if bias != nil {
		bv = asSlice[T](bias)
	}
	coutG := cout / g

	for ni := 0; ni < n; ni++ {
		for co := 0; co < cout; co++ {
			grp := co / coutG
			var base T
			if bv != nil {
				base = bv[co]
			}
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					acc := base
					for ci := 0; ci < cinG; ci++ {
						cIn := grp*cinG + ci
						for ky := 0; ky < kh; ky++ {
							iy := oy*sh - pt + ky*dh
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*sw - pl + kx*dw
								if ix < 0 || ix >= wd {
									continue
								}
								acc += src[((ni*cin+cIn)*h+iy)*wd+ix] * ker[((co*cinG+ci)*kh+ky)*kw+kx]
							}
						}
					}
					dst[((ni*cout+co)*oh+oy)*ow+ox] = acc
				}
			}
		}
	}
	return out, nil
}

// ConvTranspose2D computes a grouped 2-D transposed convolution over NCHW
// input with an IOHW kernel (I = in channels, O = out channels / groups).
func (b *Backend) ConvTranspose2D(x, w, bias *tensor.Tensor, p backend.ConvParams) (*tensor.Tensor, error) {
	if x.Rank() != 4 || w.Rank() != 4 {
		return nil, errors.Errorf("conv_transpose2d expects 4-D input and kernel, got %v and %v", x.Shape(), w.Shape())
	}
	if !x.DType().IsFloat() || x.DType() != w.DType() {
		return nil, errors.Errorf("conv_transpose2d requires matching float tensors, got %s and %s", x.DType(), w.DType())
	}
	switch x.DType() {
	case tensor.Float32:
		return convTranspose2dKernel[float32](x, w, bias, p)
	default:
		return convTranspose2dKernel[float64](x, w, bias, p)
	}
}

func convTranspose2dKernel[T ~float32 | ~float64](x, w, bias *tensor.Tensor, p backend.ConvParams) (*tensor.Tensor, error) {
	xs, ws := x.Shape(), w.Shape()
	n, cin, h, wd := xs[0], xs[1], xs[2], xs[3]
	cinW, coutG, kh, kw := ws[0], ws[1], ws[2], ws[3]
	g := p.Groups
	if g <= 0 {
		g = 1
	}
	if cin != cinW || cin%g != 0 {
		return nil, errors.Errorf("conv_transpose2d channel mismatch: input %d, kernel %d groups %d", cin, cinW, g)
	}
	cout := coutG * g
	sh, sw := p.Strides[0], p.Strides[1]
	dh, dw := p.Dilations[0], p.Dilations[1]
	if sh <= 0 {
		sh = 1
	}
	if sw <= 0 {
		sw = 1
	}
	if dh <= 0 {
		dh = 1
	}
	if dw <= 0 {
		dw = 1
	}
	pt, pl, pb, pr := p.Pads[0], p.Pads[1], p.Pads[2], p.Pads[3]

	oh := (h-1)*sh - pt - pb + dh*(kh-1) + 1 + p.OutputPadding[0]
	ow := (wd-1)*sw - pl - pr + dw*(kw-1) + 1 + p.OutputPadding[1]
	if oh <= 0 || ow <= 0 {
		return nil, errors.Errorf("conv_transpose2d produces empty output for input %v", xs)
	}

	out, err := tensor.New(tensor.Shape{n, cout, oh, ow}, x.DType())
	if err != nil {
		return nil, err
	}
	src := asSlice[T](x)
	ker := asSlice[T](w)
	dst := asSlice[T](out)
	cinG := cin / g

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < cin; ci++ {
			grp := ci / cinG
			for iy := 0; iy < h; iy++ {
				for ix := 0; ix < wd; ix++ {
					v := src[((ni*cin+ci)*h+iy)*wd+ix]
					if v == 0 {
						continue
					}
					for co := 0; co < coutG; co++ {
						cOut := grp*coutG + co
						for ky := 0; ky < kh; ky++ {
							oy := iy*sh - pt + ky*dh
							if oy < 0 || oy >= oh {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ox := ix*sw - pl + kx*dw
								if ox < 0 || ox >= ow {
									continue
								}
								dst[((ni*cout+cOut)*oh+oy)*ow+ox] += v * ker[((ci*coutG+co)*kh+ky)*kw+kx]
							}
						}
					}
				}
			}
		}
	}
	if bias != nil {
		bv := asSlice[T](bias)
		plane := oh * ow
		for ni := 0; ni < n; ni++ {
			for co := 0; co < cout; co++ {
				off := (ni*cout + co) * plane
				for i := 0; i < plane; i++ {
					dst[off+i] += bv[co]
				}
			}
		}
	}
	return out, nil
}

// asSlice views a float tensor's data as []T. The caller guarantees the
// dtype matches T.
func asSlice[T ~float32 | ~float64](t *tensor.Tensor) []T {
	switch any(*new(T)).(type) {
	case float32:
		return any(t.Float32s()).([]T)
	default:
		return any(t.Float64s()).([]T)
	}
}
