// Package compute abstracts the device that runs the ocean kernels: images,
// compiled kernels, execution queues and completion events.
//
// Two backends implement it. The CPU reference device is always available and
// runs every kernel as Go code on goroutines. The OpenCL device is compiled in
// with the opencl build tag.
package compute

import (
	"errors"
	"fmt"
)

// Format is the channel layout of an image. Every channel is a float32.
type Format int

const (
	FormatR Format = iota + 1
	FormatRG
	FormatRGBA
)

// Channels returns the number of float32 channels per texel.
func (f Format) Channels() int {
	switch f {
	case FormatR:
		return 1
	case FormatRG:
		return 2
	case FormatRGBA:
		return 4
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case FormatR:
		return "R32F"
	case FormatRG:
		return "RG32F"
	case FormatRGBA:
		return "RGBA32F"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Image is a 2D device-resident grid of float texels.
type Image interface {
	Width() int
	Height() int
	Format() Format
	Release()
}

// Event signals completion of one enqueued command.
type Event interface {
	// Wait blocks until the command finished and returns its error, if any.
	Wait() error
}

// Kernel is one compiled entry point.
type Kernel interface {
	Name() string
	Release()
}

// Kernels maps entry point names to compiled kernels.
type Kernels map[string]Kernel

// Release releases every kernel in the set.
func (ks Kernels) Release() {
	for name, k := range ks {
		k.Release()
		delete(ks, name)
	}
}

// Program describes one compilable unit. Source is OpenCL C; Host holds the Go
// rendition of the same entry points used by the CPU device.
type Program struct {
	Name    string
	Source  string
	Entries []string
	Host    map[string]KernelFunc
}

// Queue issues commands to a device. Commands on an in-order queue run one
// after another; on an out-of-order queue a command only waits for the events
// in its wait list. Nil entries in a wait list are ignored.
type Queue interface {
	Launch(k Kernel, global, local [2]int, args []any, waits []Event) (Event, error)
	// ReadImage copies the region (x, y, w, h) into dst and blocks until done.
	ReadImage(img Image, x, y, w, h int, dst []float32, waits []Event) error
	WriteImage(img Image, src []float32, waits []Event) (Event, error)
	// Acquire and Release bracket the commands that write images shared with
	// another API. They fail with ErrUnsupported when the device cannot share.
	Acquire(imgs []Image, waits []Event) (Event, error)
	Release(imgs []Image, waits []Event) (Event, error)
	Finish() error
	OutOfOrder() bool
	Close()
}

// Identity names a physical device.
type Identity struct {
	Platform string
	Name     string
	UUID     string
	Index    int
}

// Capabilities is the subset of device limits the pipeline cares about.
type Capabilities struct {
	// ExternalMemory reports zero-copy sharing of images with the renderer.
	ExternalMemory  bool
	HandleType      string
	MaxImage2DWidth int
	MaxAllocSize    int64
	GlobalMemSize   int64
}

// Device owns images, programs and queues.
type Device interface {
	Identity() Identity
	Capabilities() Capabilities
	Build(p Program) (Kernels, error)
	NewImage(w, h int, f Format) (Image, error)
	NewQueue(outOfOrder bool) (Queue, error)
	// Export returns host-visible storage aliasing img. Only devices with
	// ExternalMemory support it.
	Export(img Image) ([]float32, error)
	Close() error
}

var (
	ErrInvalidWorkGroupSize = errors.New("compute: global work size is not a multiple of the local work size")
	ErrUnsupported          = errors.New("compute: operation not supported by device")
	ErrBackendUnavailable   = errors.New("compute: backend not available in this build")
	ErrForeignObject        = errors.New("compute: object belongs to another device")
)

// BuildError reports a program that failed to compile.
type BuildError struct {
	Program string
	Entry   string
	Log     string
}

func (e *BuildError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("building program %s (entry %s): %s", e.Program, e.Entry, e.Log)
	}
	return fmt.Sprintf("building program %s: %s", e.Program, e.Log)
}

// AllocError reports a failed image or buffer allocation.
type AllocError struct {
	Call  string
	Bytes int64
	Err   error
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("%s (%d bytes): %v", e.Call, e.Bytes, e.Err)
}

func (e *AllocError) Unwrap() error { return e.Err }

// CheckRange validates a launch geometry.
func CheckRange(global, local [2]int) error {
	for i := range 2 {
		if global[i] <= 0 {
			return fmt.Errorf("global size %v: %w", global, ErrInvalidWorkGroupSize)
		}
		if local[i] == 0 {
			continue
		}
		if local[i] < 0 || global[i]%local[i] != 0 {
			return fmt.Errorf("global %v local %v: %w", global, local, ErrInvalidWorkGroupSize)
		}
	}
	return nil
}

// ImageBytes is the allocation size of a w x h image of format f.
func ImageBytes(w, h int, f Format) int64 {
	return int64(w) * int64(h) * int64(f.Channels()) * 4
}
