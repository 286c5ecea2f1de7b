package compute

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// CPUOptions configures the reference device.
type CPUOptions struct {
	// Workers bounds the goroutines used by one launch. Zero means NumCPU.
	Workers int
	// ExternalMemory makes images exportable to the host, emulating
	// zero-copy sharing with a renderer.
	ExternalMemory bool
	// MaxImage2DWidth caps image dimensions. Zero means 16384.
	MaxImage2DWidth int
	Logger          *slog.Logger
}

// CPUDevice runs kernels as Go functions. Launches are asynchronous: each
// command runs on its own goroutine once the commands it waits for finished,
// and spreads its rows over a bounded set of workers.
type CPUDevice struct {
	opts   CPUOptions
	log    *slog.Logger
	mu     sync.Mutex
	queues []*cpuQueue
	closed bool
}

// NewCPUDevice returns a ready reference device.
func NewCPUDevice(opts CPUOptions) *CPUDevice {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxImage2DWidth <= 0 {
		opts.MaxImage2DWidth = 16384
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CPUDevice{opts: opts, log: logger}
}

func (d *CPUDevice) Identity() Identity {
	return Identity{Platform: "host", Name: "Go reference device", UUID: "host-cpu-0"}
}

func (d *CPUDevice) Capabilities() Capabilities {
	c := Capabilities{
		ExternalMemory:  d.opts.ExternalMemory,
		MaxImage2DWidth: d.opts.MaxImage2DWidth,
		MaxAllocSize:    1 << 32,
		GlobalMemSize:   1 << 34,
	}
	if c.ExternalMemory {
		c.HandleType = "host-pointer"
	}
	return c
}

type cpuKernel struct {
	name string
	fn   KernelFunc
	dev  *CPUDevice
}

func (k *cpuKernel) Name() string { return k.name }
func (k *cpuKernel) Release()     {}

// Build resolves every entry of p against its host implementations.
func (d *CPUDevice) Build(p Program) (Kernels, error) {
	if len(p.Entries) == 0 {
		return nil, &BuildError{Program: p.Name, Log: "program declares no entry points"}
	}
	ks := make(Kernels, len(p.Entries))
	for _, e := range p.Entries {
		fn, ok := p.Host[e]
		if !ok || fn == nil {
			return nil, &BuildError{Program: p.Name, Entry: e, Log: fmt.Sprintf("undefined kernel %q", e)}
		}
		ks[e] = &cpuKernel{name: e, fn: fn, dev: d}
	}
	d.log.Debug("program built", "program", p.Name, "entries", len(ks))
	return ks, nil
}

type cpuImage struct {
	tex      *Texels
	format   Format
	dev      *CPUDevice
	acquired atomic.Bool
}

func (i *cpuImage) Width() int     { return i.tex.W }
func (i *cpuImage) Height() int    { return i.tex.H }
func (i *cpuImage) Format() Format { return i.format }
func (i *cpuImage) Release()       {}

func (d *CPUDevice) NewImage(w, h int, f Format) (Image, error) {
	bytes := ImageBytes(w, h, f)
	switch {
	case f.Channels() == 0:
		return nil, &AllocError{Call: "creating image", Bytes: bytes, Err: fmt.Errorf("unknown format %v", f)}
	case w <= 0 || h <= 0:
		return nil, &AllocError{Call: "creating image", Bytes: bytes, Err: fmt.Errorf("invalid size %dx%d", w, h)}
	case w > d.opts.MaxImage2DWidth || h > d.opts.MaxImage2DWidth:
		return nil, &AllocError{Call: "creating image", Bytes: bytes,
			Err: fmt.Errorf("size %dx%d exceeds device limit %d", w, h, d.opts.MaxImage2DWidth)}
	}
	return &cpuImage{tex: NewTexels(w, h, f), format: f, dev: d}, nil
}

func (d *CPUDevice) Export(img Image) ([]float32, error) {
	if !d.opts.ExternalMemory {
		return nil, ErrUnsupported
	}
	ci, err := d.image(img)
	if err != nil {
		return nil, err
	}
	return ci.tex.Pix, nil
}

// Acquired reports whether img is currently inside an acquire/release bracket.
func (d *CPUDevice) Acquired(img Image) bool {
	ci, err := d.image(img)
	return err == nil && ci.acquired.Load()
}

func (d *CPUDevice) image(img Image) (*cpuImage, error) {
	ci, ok := img.(*cpuImage)
	if !ok || ci.dev != d {
		return nil, ErrForeignObject
	}
	return ci, nil
}

func (d *CPUDevice) NewQueue(outOfOrder bool) (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("creating queue: device closed")
	}
	q := &cpuQueue{dev: d, outOfOrder: outOfOrder}
	d.queues = append(d.queues, q)
	return q, nil
}

// Close drains and closes every queue created by the device.
func (d *CPUDevice) Close() error {
	d.mu.Lock()
	queues := d.queues
	d.queues = nil
	d.closed = true
	d.mu.Unlock()
	var first error
	for _, q := range queues {
		if err := q.Finish(); err != nil && first == nil {
			first = err
		}
		q.Close()
	}
	return first
}

type cpuEvent struct {
	done chan struct{}
	err  error
}

func (e *cpuEvent) Wait() error {
	<-e.done
	return e.err
}

// finished reports a completed command whose error was nil.
func (e *cpuEvent) finished() bool {
	select {
	case <-e.done:
		return e.err == nil
	default:
		return false
	}
}

// compactThreshold is the inflight list length above which completed
// commands are dropped on submit.
const compactThreshold = 512

type cpuQueue struct {
	dev        *CPUDevice
	outOfOrder bool

	mu       sync.Mutex
	last     *cpuEvent
	inflight []*cpuEvent
	closed   bool
}

func (q *cpuQueue) OutOfOrder() bool { return q.outOfOrder }

func (q *cpuQueue) deps(waits []Event) ([]*cpuEvent, error) {
	out := make([]*cpuEvent, 0, len(waits)+1)
	for _, w := range waits {
		if w == nil {
			continue
		}
		ce, ok := w.(*cpuEvent)
		if !ok {
			return nil, fmt.Errorf("wait list: %w", ErrForeignObject)
		}
		out = append(out, ce)
	}
	return out, nil
}

// submit schedules run after deps, and after the previous command when the
// queue is in order.
func (q *cpuQueue) submit(label string, waits []Event, run func() error) (*cpuEvent, error) {
	deps, err := q.deps(waits)
	if err != nil {
		return nil, err
	}
	ev := &cpuEvent{done: make(chan struct{})}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("%s: queue closed", label)
	}
	if !q.outOfOrder && q.last != nil {
		deps = append(deps, q.last)
	}
	q.last = ev
	if len(q.inflight) >= compactThreshold {
		q.inflight = slices.DeleteFunc(q.inflight, (*cpuEvent).finished)
	}
	q.inflight = append(q.inflight, ev)
	q.mu.Unlock()

	go func() {
		defer close(ev.done)
		for _, d := range deps {
			if err := d.Wait(); err != nil {
				ev.err = fmt.Errorf("%s: dependency failed: %w", label, err)
				return
			}
		}
		ev.err = run()
	}()
	return ev, nil
}

func (q *cpuQueue) Launch(k Kernel, global, local [2]int, args []any, waits []Event) (Event, error) {
	ck, ok := k.(*cpuKernel)
	if !ok || ck.dev != q.dev {
		return nil, fmt.Errorf("launching kernel: %w", ErrForeignObject)
	}
	if err := CheckRange(global, local); err != nil {
		return nil, fmt.Errorf("launching %s: %w", ck.name, err)
	}
	resolved := make(Args, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case Image:
			ci, err := q.dev.image(v)
			if err != nil {
				return nil, fmt.Errorf("launching %s: argument %d: %w", ck.name, i, err)
			}
			resolved[i] = ci.tex
		case int32, float32:
			resolved[i] = v
		case int:
			resolved[i] = int32(v)
		default:
			return nil, fmt.Errorf("launching %s: argument %d has unsupported type %T", ck.name, i, a)
		}
	}
	return q.submit(ck.name, waits, func() error {
		return q.dispatch(ck, resolved, global)
	})
}

// dispatch runs every work item of one launch, spreading row bands over the
// device's workers.
func (q *cpuQueue) dispatch(k *cpuKernel, args Args, global [2]int) error {
	workers := q.dev.opts.Workers
	bandRows := max(1, global[1]/(workers*4))
	assigned := assignRowBands(workers, splitRows(global[1], bandRows))
	var g errgroup.Group
	for _, wb := range assigned {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("kernel %s: %v", k.name, r)
				}
			}()
			for _, b := range wb.bands {
				for y := b.y0; y < b.y1; y++ {
					for x := 0; x < global[0]; x++ {
						k.fn(args, x, y)
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (q *cpuQueue) ReadImage(img Image, x, y, w, h int, dst []float32, waits []Event) error {
	ci, err := q.dev.image(img)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	t := ci.tex
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > t.W || y+h > t.H {
		return fmt.Errorf("reading image: region (%d,%d %dx%d) outside %dx%d", x, y, w, h, t.W, t.H)
	}
	if len(dst) < w*h*t.C {
		return fmt.Errorf("reading image: destination holds %d floats, need %d", len(dst), w*h*t.C)
	}
	ev, err := q.submit("read image", waits, func() error {
		for row := range h {
			src := t.Pix[((y+row)*t.W+x)*t.C : ((y+row)*t.W+x+w)*t.C]
			copy(dst[row*w*t.C:], src)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return ev.Wait()
}

func (q *cpuQueue) WriteImage(img Image, src []float32, waits []Event) (Event, error) {
	ci, err := q.dev.image(img)
	if err != nil {
		return nil, fmt.Errorf("writing image: %w", err)
	}
	if len(src) != len(ci.tex.Pix) {
		return nil, fmt.Errorf("writing image: got %d floats, image holds %d", len(src), len(ci.tex.Pix))
	}
	data := slices.Clone(src)
	return q.submit("write image", waits, func() error {
		copy(ci.tex.Pix, data)
		return nil
	})
}

func (q *cpuQueue) bracket(label string, imgs []Image, waits []Event, acquire bool) (Event, error) {
	if !q.dev.opts.ExternalMemory {
		return nil, fmt.Errorf("%s: %w", label, ErrUnsupported)
	}
	cis := make([]*cpuImage, len(imgs))
	for i, img := range imgs {
		ci, err := q.dev.image(img)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		cis[i] = ci
	}
	return q.submit(label, waits, func() error {
		for _, ci := range cis {
			if !ci.acquired.CompareAndSwap(!acquire, acquire) {
				if acquire {
					return fmt.Errorf("%s: image already acquired", label)
				}
				return fmt.Errorf("%s: image was not acquired", label)
			}
		}
		return nil
	})
}

func (q *cpuQueue) Acquire(imgs []Image, waits []Event) (Event, error) {
	return q.bracket("acquiring shared images", imgs, waits, true)
}

func (q *cpuQueue) Release(imgs []Image, waits []Event) (Event, error) {
	return q.bracket("releasing shared images", imgs, waits, false)
}

// Finish blocks until every command submitted so far completed and returns
// the first failure among them.
func (q *cpuQueue) Finish() error {
	q.mu.Lock()
	pending := q.inflight
	q.inflight = nil
	q.mu.Unlock()
	var first error
	for _, ev := range pending {
		if err := ev.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (q *cpuQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
