package compute

// Texels is host storage for one image, row-major with interleaved channels.
type Texels struct {
	W, H, C int
	Pix     []float32
}

// NewTexels allocates zeroed storage for a w x h image of format f.
func NewTexels(w, h int, f Format) *Texels {
	c := f.Channels()
	return &Texels{W: w, H: h, C: c, Pix: make([]float32, w*h*c)}
}

// At returns the channels of texel (x, y). The slice aliases Pix.
func (t *Texels) At(x, y int) []float32 {
	i := (y*t.W + x) * t.C
	return t.Pix[i : i+t.C : i+t.C]
}

// Wrap returns the texel at (x, y) with coordinates taken modulo the size.
func (t *Texels) Wrap(x, y int) []float32 {
	x %= t.W
	if x < 0 {
		x += t.W
	}
	y %= t.H
	if y < 0 {
		y += t.H
	}
	return t.At(x, y)
}

// Args is the argument list seen by a host kernel. Images arrive as *Texels.
type Args []any

func (a Args) Image(i int) *Texels { return a[i].(*Texels) }

func (a Args) Int(i int) int {
	switch v := a[i].(type) {
	case int32:
		return int(v)
	case int:
		return v
	}
	panic("compute: argument is not an integer")
}

func (a Args) Float(i int) float32 {
	switch v := a[i].(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	}
	panic("compute: argument is not a float")
}

// KernelFunc runs one work item of a host kernel.
type KernelFunc func(a Args, x, y int)
