package ocean

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"oceancl/internal/compute"
)

// Target names one of the per-slot output images.
type Target int

const (
	TargetDisplacement Target = iota
	TargetNormal
	targetCount
)

func (t Target) String() string {
	switch t {
	case TargetDisplacement:
		return "displacement"
	case TargetNormal:
		return "normal"
	}
	return fmt.Sprintf("Target(%d)", int(t))
}

// ZRange is the vertical extent of the displacement field of a frame.
type ZRange struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// Surface is the consumer side of the output images, usually a renderer.
// Each slot holds one RGBA image of side N per Target.
type Surface interface {
	// Share hands the surface a view that aliases the device image. It is
	// only called when the device shares memory.
	Share(slot int, t Target, view []float32) error
	// Upload copies a frame that was read back through the host.
	Upload(slot int, t Target, pix []float32) error
	// Publish marks slot as the latest complete frame.
	Publish(slot int, zr ZRange)
}

// Bridge moves the output images between the compute queue and a Surface.
// With shared memory the frame is bracketed by acquire and release commands;
// otherwise the images are read back and uploaded after compute finishes.
type Bridge struct {
	surface Surface
	dev     compute.Device
	slots   [][targetCount]compute.Image
	shared  bool
	log     *slog.Logger
	pending []float32
}

// NewBridge binds the per-slot images to surface. When share is set the
// device views are exported to the surface; if that fails the bridge logs
// and falls back to host copies.
func NewBridge(dev compute.Device, surface Surface, slots [][targetCount]compute.Image, share bool, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{surface: surface, dev: dev, slots: slots, log: logger}
	if !share {
		return b, nil
	}
	if !dev.Capabilities().ExternalMemory {
		logger.Info("device cannot share memory, using host copies", "device", dev.Identity().Name)
		return b, nil
	}
	for slot, imgs := range slots {
		for t, img := range imgs {
			view, err := dev.Export(img)
			if err == nil {
				err = surface.Share(slot, Target(t), view)
			}
			if errors.Is(err, compute.ErrUnsupported) {
				logger.Warn("sharing output images failed, using host copies", "err", err)
				return b, nil
			}
			if err != nil {
				return nil, fmt.Errorf("sharing %s image of slot %d: %w", Target(t), slot, err)
			}
		}
	}
	b.shared = true
	return b, nil
}

// Shared reports whether the zero-copy path is active.
func (b *Bridge) Shared() bool { return b.shared }

// Images returns the output images of slot.
func (b *Bridge) Images(slot int) []compute.Image {
	imgs := b.slots[slot]
	return imgs[:]
}

// Acquire hands the slot's images to compute.
func (b *Bridge) Acquire(exec Executor, slot int, deps ...Handle) (Handle, error) {
	if !b.shared {
		return exec.Marker("acquire", NodeAcquire, deps...), nil
	}
	h, err := exec.Acquire(b.Images(slot), deps...)
	if err != nil {
		return Handle{}, fmt.Errorf("acquiring slot %d: %w", slot, err)
	}
	return h, nil
}

// Release hands the slot's images back to the surface. On the copy path the
// images are read back here and uploaded once the reads complete.
func (b *Bridge) Release(exec Executor, slot int, deps ...Handle) (Handle, error) {
	if b.shared {
		h, err := exec.Release(b.Images(slot), deps...)
		if err != nil {
			return Handle{}, fmt.Errorf("releasing slot %d: %w", slot, err)
		}
		return h, nil
	}
	reads := make([]Handle, 0, targetCount)
	for t, img := range b.slots[slot] {
		n := img.Width() * img.Height() * img.Format().Channels()
		if cap(b.pending) < n {
			b.pending = make([]float32, n)
		}
		pix := b.pending[:n]
		h, err := exec.ReadImage(Target(t).String()+" readback", img, 0, 0, img.Width(), img.Height(), pix, deps...)
		if err != nil {
			return Handle{}, err
		}
		if err := b.surface.Upload(slot, Target(t), pix); err != nil {
			return Handle{}, fmt.Errorf("uploading %s of slot %d: %w", Target(t), slot, err)
		}
		reads = append(reads, h)
	}
	return exec.Marker("release", NodeRelease, reads...), nil
}

// Publish tells the surface that slot is complete.
func (b *Bridge) Publish(slot int, zr ZRange) { b.surface.Publish(slot, zr) }

type stagingImage struct {
	f32  []float32
	f16  []uint16
	view []float32
}

// StagingSurface is a host-side Surface. Uploaded frames are kept as float32
// or, when half is set, as binary16.
type StagingSurface struct {
	mu     sync.RWMutex
	n      int
	half   bool
	slots  [][targetCount]stagingImage
	latest int
	zr     ZRange
	frames uint64
}

// NewStagingSurface returns a surface for slots RGBA images of side n.
func NewStagingSurface(n, slots int, half bool) *StagingSurface {
	return &StagingSurface{
		n:      n,
		half:   half,
		slots:  make([][targetCount]stagingImage, slots),
		latest: -1,
	}
}

func (s *StagingSurface) image(slot int, t Target) (*stagingImage, error) {
	if slot < 0 || slot >= len(s.slots) || t < 0 || t >= targetCount {
		return nil, fmt.Errorf("no staging image for slot %d target %d", slot, t)
	}
	return &s.slots[slot][t], nil
}

func (s *StagingSurface) Share(slot int, t Target, view []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, err := s.image(slot, t)
	if err != nil {
		return err
	}
	if len(view) != s.n*s.n*4 {
		return fmt.Errorf("shared view has %d values, want %d", len(view), s.n*s.n*4)
	}
	img.view = view
	return nil
}

func (s *StagingSurface) Upload(slot int, t Target, pix []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, err := s.image(slot, t)
	if err != nil {
		return err
	}
	if len(pix) != s.n*s.n*4 {
		return fmt.Errorf("upload has %d values, want %d", len(pix), s.n*s.n*4)
	}
	if s.half {
		if img.f16 == nil {
			img.f16 = make([]uint16, len(pix))
		}
		float32ToFloat16(img.f16, pix)
		return nil
	}
	if img.f32 == nil {
		img.f32 = make([]float32, len(pix))
	}
	copy(img.f32, pix)
	return nil
}

func (s *StagingSurface) Publish(slot int, zr ZRange) {
	s.mu.Lock()
	s.latest = slot
	s.zr = zr
	s.frames++
	s.mu.Unlock()
}

// Latest returns the most recently published slot.
func (s *StagingSurface) Latest() (slot int, zr ZRange, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.zr, s.latest >= 0
}

// Frames is the number of published frames.
func (s *StagingSurface) Frames() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// Size is the image side.
func (s *StagingSurface) Size() int { return s.n }

// Pixels decodes the image of slot into dst, growing it as needed. It returns
// nil when nothing was uploaded or shared for that slot yet.
func (s *StagingSurface) Pixels(slot int, t Target, dst []float32) []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, err := s.image(slot, t)
	if err != nil {
		return nil
	}
	n := s.n * s.n * 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	switch {
	case img.view != nil:
		copy(dst, img.view)
	case img.f16 != nil:
		float16ToFloat32(dst, img.f16)
	case img.f32 != nil:
		copy(dst, img.f32)
	default:
		return nil
	}
	return dst
}
