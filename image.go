package normalmap

import (
	"fmt"
	"image"
	"math/bits"

	xdraw "golang.org/x/image/draw"
)

// NormalMapFromImage converts a square, power-of-two image into normal
// texels and returns them with the log2 side length. Channels are taken
// non-premultiplied so that R and G keep their encoded values.
func NormalMapFromImage(img image.Image) ([]Texel32, int, error) {
	size, err := squareSize(img.Bounds())
	if err != nil {
		return nil, 0, err
	}
	return texels32(toNRGBA(img)), size, nil
}

// Env32FromImage converts img into 32-bit environment texels in raster
// order. The image must be square with a power-of-two side.
func Env32FromImage(img image.Image) ([]Texel32, error) {
	if _, err := squareSize(img.Bounds()); err != nil {
		return nil, err
	}
	return texels32(toNRGBA(img)), nil
}

// Env16FromImage converts img into RGBA5551 environment texels. The image
// must be square with a power-of-two side.
func Env16FromImage(img image.Image) ([]Texel16, error) {
	if _, err := squareSize(img.Bounds()); err != nil {
		return nil, err
	}
	src := toNRGBA(img)
	out := make([]Texel16, len(src.Pix)/4)
	for i := range out {
		p := src.Pix[i*4 : i*4+4]
		out[i] = PackRGBA5551(p[0], p[1], p[2], p[3])
	}
	return out, nil
}

// MagnifyEnvironment scales img up by 2^filterFactor for use with the
// filtered samplers. interp defaults to xdraw.CatmullRom when nil.
func MagnifyEnvironment(img image.Image, filterFactor int, interp xdraw.Interpolator) (*image.NRGBA, error) {
	if filterFactor < 0 || filterFactor > MaxFilterFactor {
		return nil, &ParamError{Name: "filterFactor", Value: filterFactor, Min: 0, Max: MaxFilterFactor}
	}
	if interp == nil {
		interp = xdraw.CatmullRom
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()<<filterFactor, b.Dy()<<filterFactor))
	interp.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, nil
}

// Image32 wraps 32-bit texels of side 2^size as an image.
func Image32(texels []Texel32, size int) (*image.NRGBA, error) {
	n, err := imageSide(len(texels), size)
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for i, t := range texels {
		img.Pix[i*4+0] = t.R
		img.Pix[i*4+1] = t.G
		img.Pix[i*4+2] = t.B
		img.Pix[i*4+3] = t.A
	}
	return img, nil
}

// Image16 expands RGBA5551 texels of side 2^size into an image.
func Image16(texels []Texel16, size int) (*image.NRGBA, error) {
	n, err := imageSide(len(texels), size)
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for i, t := range texels {
		img.Pix[i*4+0], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = t.RGBA()
	}
	return img, nil
}

func imageSide(count, size int) (int, error) {
	if size < 0 || size > MaxSize {
		return 0, &ParamError{Name: "size", Value: size, Min: 0, Max: MaxSize}
	}
	n := 1 << size
	if err := checkLen("texel buffer", count, n*n); err != nil {
		return 0, err
	}
	return n, nil
}

func squareSize(b image.Rectangle) (int, error) {
	w, h := b.Dx(), b.Dy()
	if w != h || w <= 0 || w&(w-1) != 0 {
		return 0, fmt.Errorf("%w: image is %dx%d, want a square power-of-two side", ErrShapeMismatch, w, h)
	}
	size := bits.TrailingZeros(uint(w))
	if size > MaxSize {
		return 0, &ParamError{Name: "size", Value: size, Min: 0, Max: MaxSize}
	}
	return size, nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && len(n.Pix) == 4*n.Rect.Dx()*n.Rect.Dy() {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

func texels32(img *image.NRGBA) []Texel32 {
	out := make([]Texel32, len(img.Pix)/4)
	for i := range out {
		p := img.Pix[i*4 : i*4+4]
		out[i] = Texel32{R: p[0], G: p[1], B: p[2], A: p[3]}
	}
	return out
}
