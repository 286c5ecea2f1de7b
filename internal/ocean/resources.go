package ocean

import (
	"fmt"

	"oceancl/internal/compute"
)

// resources are the images of the spectral pipeline. They are sized once at
// startup and live until Close.
type resources struct {
	noise   compute.Image
	h0k     compute.Image
	twiddle compute.Image
	axes    [3]compute.Image // x, y and height fields
	scratch [3]compute.Image
	zrange  [2]compute.Image
	targets [][targetCount]compute.Image
	owned   []compute.Image
}

func (r *resources) image(dev compute.Device, w, h int, f compute.Format, what string) (compute.Image, error) {
	img, err := dev.NewImage(w, h, f)
	if err != nil {
		return nil, fmt.Errorf("allocating %s: %w", what, err)
	}
	r.owned = append(r.owned, img)
	return img, nil
}

func allocResources(dev compute.Device, plan FFTPlan, slots int) (r *resources, err error) {
	r = &resources{targets: make([][targetCount]compute.Image, slots)}
	defer func() {
		if err != nil {
			r.release()
		}
	}()
	n := plan.N
	if r.noise, err = r.image(dev, n, n, compute.FormatRGBA, "noise"); err != nil {
		return nil, err
	}
	if r.h0k, err = r.image(dev, n, n, compute.FormatRGBA, "initial spectrum"); err != nil {
		return nil, err
	}
	if r.twiddle, err = r.image(dev, plan.Stages, n, compute.FormatRGBA, "twiddle factors"); err != nil {
		return nil, err
	}
	for a := range r.axes {
		if r.axes[a], err = r.image(dev, n, n, compute.FormatRG, "displacement field"); err != nil {
			return nil, err
		}
		if r.scratch[a], err = r.image(dev, n, n, compute.FormatRG, "fft scratch"); err != nil {
			return nil, err
		}
	}
	if r.zrange[0], err = r.image(dev, n, n, compute.FormatRG, "range buffer"); err != nil {
		return nil, err
	}
	if r.zrange[1], err = r.image(dev, n/2, n/2, compute.FormatRG, "range buffer"); err != nil {
		return nil, err
	}
	for slot := range r.targets {
		for t := range targetCount {
			if r.targets[slot][t], err = r.image(dev, n, n, compute.FormatRGBA, Target(t).String()+" image"); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *resources) release() {
	for _, img := range r.owned {
		img.Release()
	}
	r.owned = nil
}
