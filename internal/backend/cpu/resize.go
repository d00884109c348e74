package cpu

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/onnx2born/internal/tensor"
)

// Resize resamples the spatial dimensions of an NCHW tensor to the target
// sizes. Mode "nearest" works on any dtype; "linear" (bilinear) requires a
// float tensor and uses half-pixel coordinate mapping.
func (b *Backend) Resize(x *tensor.Tensor, sizes []int, mode string) (*tensor.Tensor, error) {
	if x.Rank() != 4 {
		return nil, errors.Errorf("resize expects 4-D input, got %v", x.Shape())
	}
	if len(sizes) != 2 {
		return nil, errors.Errorf("resize expects [height width] target, got %v", sizes)
	}
	oh, ow := sizes[0], sizes[1]
	if oh <= 0 || ow <= 0 {
		return nil, errors.Errorf("invalid resize target %v", sizes)
	}
	switch mode {
	case "", "nearest":
		return resizeNearest(x, oh, ow)
	case "linear", "bilinear":
		if !x.DType().IsFloat() {
			return nil, errors.Errorf("linear resize requires a float tensor, got %s", x.DType())
		}
		if x.DType() == tensor.Float32 {
			return resizeLinear[float32](x, oh, ow)
		}
		return resizeLinear[float64](x, oh, ow)
	default:
		return nil, errors.Errorf("unsupported resize mode %q", mode)
	}
}

func resizeNearest(x *tensor.Tensor, oh, ow int) (*tensor.Tensor, error) {
	xs := x.Shape()
	n, c, h, w := xs[0], xs[1], xs[2], xs[3]
	out, err := tensor.New(tensor.Shape{n, c, oh, ow}, x.DType())
	if err != nil {
		return nil, err
	}
	es := x.DType().Size()
	src, dst := x.Data(), out.Data()
	for nc := 0; nc < n*c; nc++ {
		for oy := 0; oy < oh; oy++ {
			iy := oy * h / oh
			for ox := 0; ox < ow; ox++ {
				ix := ox * w / ow
				si := ((nc*h+iy)*w + ix) * es
				di := ((nc*oh+oy)*ow + ox) * es
				copy(dst[di:di+es], src[si:si+es])
			}
		}
	}
	return out, nil
}

func resizeLinear[T ~float32 | ~float64](x *tensor.Tensor, oh, ow int) (*tensor.Tensor, error) {
	xs := x.Shape()
	n, c, h, w := xs[0], xs[1], xs[2], xs[3]
	out, err := tensor.New(tensor.Shape{n, c, oh, ow}, x.DType())
	if err != nil {
		return nil, err
	}
	src := asSlice[T](x)
	dst := asSlice[T](out)
	scaleY := float64(h) / float64(oh)
	scaleX := float64(w) / float64(ow)
	for nc := 0; nc < n*c; nc++ {
		plane := src[nc*h*w : (nc+1)*h*w]
		for oy := 0; oy < oh; oy++ {
			fy := (float64(oy)+0.5)*scaleY - 0.5
			fy0 := int(math.Floor(fy))
			wy := fy - float64(fy0)
			y0 := clamp(fy0, 0, h-1)
			y1 := clamp(fy0+1, 0, h-1)
			for ox := 0; ox < ow; ox++ {
				fx := (float64(ox)+0.5)*scaleX - 0.5
				fx0 := int(math.Floor(fx))
				wx := fx - float64(fx0)
				x0 := clamp(fx0, 0, w-1)
				x1 := clamp(fx0+1, 0, w-1)
				top := float64(plane[y0*w+x0])*(1-wx) + float64(plane[y0*w+x1])*wx
				bot := float64(plane[y1*w+x0])*(1-wx) + float64(plane[y1*w+x1])*wx
				dst[(nc*oh+oy)*ow+ox] = T(top*(1-wy) + bot*wy)
			}
		}
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
