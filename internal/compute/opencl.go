//go:build opencl

package compute

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jgillich/go-opencl/cl"
)

type clDevice struct {
	context *cl.Context
	device  *cl.Device
	ident   Identity
	caps    Capabilities
	log     *slog.Logger

	mu       sync.Mutex
	programs []*cl.Program
	queues   []*clQueue
}

func listDevices(platforms []*cl.Platform, kind cl.DeviceType) ([]*cl.Device, []Identity) {
	var devices []*cl.Device
	var idents []Identity
	for _, p := range platforms {
		ds, err := p.GetDevices(kind)
		if err != nil && err != cl.ErrDeviceNotFound {
			continue
		}
		for _, d := range ds {
			devices = append(devices, d)
			idents = append(idents, Identity{Platform: p.Name(), Name: d.Name(), Index: len(idents)})
		}
	}
	return devices, idents
}

func openOpenCL(sel Selection, logger *slog.Logger) (Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available; ensure a vendor driver is installed and detected by `clinfo`")
	}
	devices, idents := listDevices(platforms, cl.DeviceTypeGPU)
	if len(devices) == 0 {
		devices, idents = listDevices(platforms, cl.DeviceTypeCPU)
	}
	idx, err := SelectDevice(idents, sel)
	if err != nil {
		return nil, err
	}
	device := devices[idx]

	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	d := &clDevice{
		context: context,
		device:  device,
		ident:   idents[idx],
		log:     logger,
		caps: Capabilities{
			MaxImage2DWidth: device.Image2DMaxWidth(),
			MaxAllocSize:    device.MaxMemAllocSize(),
			GlobalMemSize:   device.GlobalMemSize(),
		},
	}
	// The binding exposes no external memory import, so shared images are
	// never offered even when the driver advertises the extension.
	if strings.Contains(device.Extensions(), "cl_khr_external_memory") {
		logger.Info("device advertises external memory but the binding cannot export handles", "device", d.ident.Name)
	}
	return d, nil
}

func (d *clDevice) Identity() Identity         { return d.ident }
func (d *clDevice) Capabilities() Capabilities { return d.caps }

type clKernel struct {
	name   string
	kernel *cl.Kernel
	dev    *clDevice
}

func (k *clKernel) Name() string { return k.name }

func (k *clKernel) Release() {
	if k.kernel != nil {
		k.kernel.Release()
		k.kernel = nil
	}
}

func (d *clDevice) Build(p Program) (Kernels, error) {
	program, err := d.context.CreateProgramWithSource([]string{p.Source})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL program %s: %w", p.Name, err)
	}
	if err := program.BuildProgram([]*cl.Device{d.device}, ""); err != nil {
		program.Release()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, &BuildError{Program: p.Name, Log: string(buildErr)}
		}
		return nil, &BuildError{Program: p.Name, Log: err.Error()}
	}
	ks := make(Kernels, len(p.Entries))
	for _, e := range p.Entries {
		k, err := program.CreateKernel(e)
		if err != nil {
			ks.Release()
			program.Release()
			return nil, &BuildError{Program: p.Name, Entry: e, Log: err.Error()}
		}
		ks[e] = &clKernel{name: e, kernel: k, dev: d}
	}
	d.mu.Lock()
	d.programs = append(d.programs, program)
	d.mu.Unlock()
	return ks, nil
}

// clImage keeps texels in a plain buffer, row-major with interleaved channels.
type clImage struct {
	mem    *cl.MemObject
	w, h   int
	format Format
	dev    *clDevice
}

func (i *clImage) Width() int     { return i.w }
func (i *clImage) Height() int    { return i.h }
func (i *clImage) Format() Format { return i.format }

func (i *clImage) Release() {
	if i.mem != nil {
		i.mem.Release()
		i.mem = nil
	}
}

func (d *clDevice) NewImage(w, h int, f Format) (Image, error) {
	bytes := ImageBytes(w, h, f)
	if f.Channels() == 0 || w <= 0 || h <= 0 {
		return nil, &AllocError{Call: "allocating image", Bytes: bytes, Err: fmt.Errorf("invalid image %dx%d %v", w, h, f)}
	}
	mem, err := d.context.CreateEmptyBuffer(cl.MemReadWrite, int(bytes))
	if err != nil {
		return nil, &AllocError{Call: "allocating image buffer", Bytes: bytes, Err: err}
	}
	return &clImage{mem: mem, w: w, h: h, format: f, dev: d}, nil
}

func (d *clDevice) Export(Image) ([]float32, error) { return nil, ErrUnsupported }

func (d *clDevice) NewQueue(outOfOrder bool) (Queue, error) {
	var props cl.CommandQueueProperty
	if outOfOrder {
		props = cl.CommandQueueOutOfOrderExecModeEnable
	}
	queue, err := d.context.CreateCommandQueue(d.device, props)
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	q := &clQueue{queue: queue, dev: d, outOfOrder: outOfOrder}
	d.mu.Lock()
	d.queues = append(d.queues, q)
	d.mu.Unlock()
	return q, nil
}

func (d *clDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for _, q := range d.queues {
		if err := q.Finish(); err != nil && first == nil {
			first = err
		}
		q.Close()
	}
	d.queues = nil
	for _, p := range d.programs {
		p.Release()
	}
	d.programs = nil
	if d.context != nil {
		d.context.Release()
		d.context = nil
	}
	return first
}

type clEvent struct {
	ev *cl.Event
}

func (e *clEvent) Wait() error {
	return cl.WaitForEvents([]*cl.Event{e.ev})
}

type clQueue struct {
	queue      *cl.CommandQueue
	dev        *clDevice
	outOfOrder bool

	// events issued since the last Finish; released once the queue drains.
	events []*cl.Event
}

func (q *clQueue) OutOfOrder() bool { return q.outOfOrder }

func (q *clQueue) waitList(waits []Event) ([]*cl.Event, error) {
	if len(waits) == 0 {
		return nil, nil
	}
	out := make([]*cl.Event, 0, len(waits))
	for _, w := range waits {
		if w == nil {
			continue
		}
		ce, ok := w.(*clEvent)
		if !ok {
			return nil, fmt.Errorf("wait list: %w", ErrForeignObject)
		}
		out = append(out, ce.ev)
	}
	return out, nil
}

func (q *clQueue) track(ev *cl.Event) Event {
	if ev == nil {
		return nil
	}
	q.events = append(q.events, ev)
	return &clEvent{ev: ev}
}

func (q *clQueue) image(img Image) (*clImage, error) {
	ci, ok := img.(*clImage)
	if !ok || ci.dev != q.dev {
		return nil, ErrForeignObject
	}
	return ci, nil
}

func (q *clQueue) Launch(k Kernel, global, local [2]int, args []any, waits []Event) (Event, error) {
	ck, ok := k.(*clKernel)
	if !ok || ck.dev != q.dev {
		return nil, fmt.Errorf("launching kernel: %w", ErrForeignObject)
	}
	if err := CheckRange(global, local); err != nil {
		return nil, fmt.Errorf("launching %s: %w", ck.name, err)
	}
	clArgs := make([]interface{}, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case Image:
			ci, err := q.image(v)
			if err != nil {
				return nil, fmt.Errorf("launching %s: argument %d: %w", ck.name, i, err)
			}
			clArgs[i] = ci.mem
		case int:
			clArgs[i] = int32(v)
		case int32, float32:
			clArgs[i] = v
		default:
			return nil, fmt.Errorf("launching %s: argument %d has unsupported type %T", ck.name, i, a)
		}
	}
	if err := ck.kernel.SetArgs(clArgs...); err != nil {
		return nil, fmt.Errorf("setting %s arguments: %w", ck.name, err)
	}
	wl, err := q.waitList(waits)
	if err != nil {
		return nil, err
	}
	var localSize []int
	if local[0] > 0 && local[1] > 0 {
		localSize = []int{local[0], local[1]}
	}
	ev, err := q.queue.EnqueueNDRangeKernel(ck.kernel, nil, []int{global[0], global[1]}, localSize, wl)
	if err != nil {
		return nil, fmt.Errorf("enqueueing %s: %w", ck.name, err)
	}
	return q.track(ev), nil
}

func (q *clQueue) ReadImage(img Image, x, y, w, h int, dst []float32, waits []Event) error {
	ci, err := q.image(img)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	c := ci.format.Channels()
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > ci.w || y+h > ci.h {
		return fmt.Errorf("reading image: region (%d,%d %dx%d) outside %dx%d", x, y, w, h, ci.w, ci.h)
	}
	if len(dst) < w*h*c {
		return fmt.Errorf("reading image: destination holds %d floats, need %d", len(dst), w*h*c)
	}
	wl, err := q.waitList(waits)
	if err != nil {
		return err
	}
	if x == 0 && w == ci.w {
		offset := y * ci.w * c * 4
		if _, err := q.queue.EnqueueReadBufferFloat32(ci.mem, true, offset, dst[:w*h*c], wl); err != nil {
			return fmt.Errorf("reading image buffer: %w", err)
		}
		return nil
	}
	for row := range h {
		offset := ((y+row)*ci.w + x) * c * 4
		if _, err := q.queue.EnqueueReadBufferFloat32(ci.mem, true, offset, dst[row*w*c:(row+1)*w*c], wl); err != nil {
			return fmt.Errorf("reading image row %d: %w", y+row, err)
		}
		wl = nil
	}
	return nil
}

func (q *clQueue) WriteImage(img Image, src []float32, waits []Event) (Event, error) {
	ci, err := q.image(img)
	if err != nil {
		return nil, fmt.Errorf("writing image: %w", err)
	}
	if want := ci.w * ci.h * ci.format.Channels(); len(src) != want {
		return nil, fmt.Errorf("writing image: got %d floats, image holds %d", len(src), want)
	}
	wl, err := q.waitList(waits)
	if err != nil {
		return nil, err
	}
	ev, err := q.queue.EnqueueWriteBufferFloat32(ci.mem, true, 0, src, wl)
	if err != nil {
		return nil, fmt.Errorf("writing image buffer: %w", err)
	}
	return q.track(ev), nil
}

func (q *clQueue) Acquire([]Image, []Event) (Event, error) {
	return nil, fmt.Errorf("acquiring shared images: %w", ErrUnsupported)
}

func (q *clQueue) Release([]Image, []Event) (Event, error) {
	return nil, fmt.Errorf("releasing shared images: %w", ErrUnsupported)
}

func (q *clQueue) Finish() error {
	if q.queue == nil {
		return nil
	}
	if err := q.queue.Finish(); err != nil {
		return fmt.Errorf("finishing OpenCL queue: %w", err)
	}
	for _, ev := range q.events {
		ev.Release()
	}
	q.events = q.events[:0]
	return nil
}

func (q *clQueue) Close() {
	if q.queue != nil {
		q.queue.Release()
		q.queue = nil
	}
}
