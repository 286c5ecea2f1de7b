package ocean

import (
	"fmt"
	"log/slog"
	"maps"

	"oceancl/internal/compute"
)

// Executor runs one frame's pipeline description on a queue. Every command
// returns a Handle that later commands list as dependencies. The in-order
// executor relies on queue order and ignores dependencies at the device
// level; the graph executor turns them into event wait lists.
type Executor interface {
	BeginFrame()
	Launch(label string, k compute.Kernel, global, local [2]int, args []any, deps ...Handle) (Handle, error)
	// ReadImage blocks until the region has been copied into dst.
	ReadImage(label string, img compute.Image, x, y, w, h int, dst []float32, deps ...Handle) (Handle, error)
	Marker(label string, kind NodeKind, deps ...Handle) Handle
	Acquire(imgs []compute.Image, deps ...Handle) (Handle, error)
	Release(imgs []compute.Image, deps ...Handle) (Handle, error)
	// Frontier returns the handles of this frame that nothing depends on yet.
	Frontier() []Handle
	Finish() error
	Graph() *FrameGraph
	Stats() ExecStats
}

// ExecStats counts commands issued during the current frame.
type ExecStats struct {
	Launches       map[string]int
	Reads          int
	Unsynchronized int
}

// Total is the number of kernel launches.
func (s ExecStats) Total() int {
	n := 0
	for _, c := range s.Launches {
		n += c
	}
	return n
}

// recorder keeps the arena, the graph and the counters shared by both
// executors.
type recorder struct {
	queue   compute.Queue
	arena   EventArena
	graph   FrameGraph
	handles []Handle
	stats   ExecStats
	log     *slog.Logger
}

func newRecorder(q compute.Queue, logger *slog.Logger) recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return recorder{queue: q, log: logger, stats: ExecStats{Launches: map[string]int{}}}
}

func (r *recorder) BeginFrame() {
	r.arena.ResetFrame()
	r.graph.reset()
	r.handles = r.handles[:0]
	r.stats = ExecStats{Launches: map[string]int{}}
}

func (r *recorder) Graph() *FrameGraph { return &r.graph }

func (r *recorder) Stats() ExecStats {
	s := r.stats
	s.Launches = maps.Clone(r.stats.Launches)
	return s
}

func nodesOf(deps []Handle) []int {
	out := make([]int, 0, len(deps))
	for _, d := range deps {
		if d.Valid() {
			out = append(out, d.Node())
		}
	}
	return out
}

// record issues a handle for a new graph node and binds its events.
func (r *recorder) record(label string, kind NodeKind, deps []Handle, evs ...compute.Event) Handle {
	h := r.arena.Acquire()
	h.node = int32(r.graph.add(label, kind, nodesOf(deps)))
	r.arena.Bind(h, evs...)
	r.handles = append(r.handles, h)
	return h
}

// resolve turns dependencies into a wait list. A handle that no longer
// resolves contributes nothing and the command runs unsynchronized with it.
func (r *recorder) resolve(label string, deps []Handle) []compute.Event {
	var waits []compute.Event
	for _, d := range deps {
		if !d.Valid() {
			continue
		}
		evs, ok := r.arena.Lookup(d)
		if !ok {
			r.stats.Unsynchronized++
			r.log.Debug("stale event handle, launching unsynchronized", "command", label)
			continue
		}
		waits = append(waits, evs...)
	}
	return waits
}

func (r *recorder) Frontier() []Handle {
	dependents := make([]bool, len(r.graph.Nodes))
	for _, n := range r.graph.Nodes {
		for _, d := range n.Deps {
			dependents[d] = true
		}
	}
	var out []Handle
	for _, h := range r.handles {
		if !dependents[h.Node()] {
			out = append(out, h)
		}
	}
	return out
}

func (r *recorder) Finish() error {
	if err := r.queue.Finish(); err != nil {
		return fmt.Errorf("finishing frame: %w", err)
	}
	return nil
}

// inOrderExecutor drives an in-order queue: every command implicitly waits
// for the previous one.
type inOrderExecutor struct {
	recorder
}

// NewInOrderExecutor wraps an in-order queue.
func NewInOrderExecutor(q compute.Queue, logger *slog.Logger) Executor {
	return &inOrderExecutor{recorder: newRecorder(q, logger)}
}

func (e *inOrderExecutor) Launch(label string, k compute.Kernel, global, local [2]int, args []any, deps ...Handle) (Handle, error) {
	ev, err := e.queue.Launch(k, global, local, args, nil)
	if err != nil {
		return Handle{}, fmt.Errorf("%s: %w", label, err)
	}
	e.stats.Launches[label]++
	return e.record(label, NodeLaunch, deps, ev), nil
}

func (e *inOrderExecutor) ReadImage(label string, img compute.Image, x, y, w, h int, dst []float32, deps ...Handle) (Handle, error) {
	if err := e.queue.ReadImage(img, x, y, w, h, dst, nil); err != nil {
		return Handle{}, fmt.Errorf("%s: %w", label, err)
	}
	e.stats.Reads++
	return e.record(label, NodeRead, deps), nil
}

func (e *inOrderExecutor) Marker(label string, kind NodeKind, deps ...Handle) Handle {
	return e.record(label, kind, deps)
}

func (e *inOrderExecutor) Acquire(imgs []compute.Image, deps ...Handle) (Handle, error) {
	ev, err := e.queue.Acquire(imgs, nil)
	if err != nil {
		return Handle{}, err
	}
	return e.record("acquire", NodeAcquire, deps, ev), nil
}

func (e *inOrderExecutor) Release(imgs []compute.Image, deps ...Handle) (Handle, error) {
	ev, err := e.queue.Release(imgs, nil)
	if err != nil {
		return Handle{}, err
	}
	return e.record("release", NodeRelease, deps, ev), nil
}

// graphExecutor drives an out-of-order queue, threading each command's
// dependencies through the event arena.
type graphExecutor struct {
	recorder
}

// NewGraphExecutor wraps a queue, normally an out-of-order one.
func NewGraphExecutor(q compute.Queue, logger *slog.Logger) Executor {
	return &graphExecutor{recorder: newRecorder(q, logger)}
}

func (e *graphExecutor) Launch(label string, k compute.Kernel, global, local [2]int, args []any, deps ...Handle) (Handle, error) {
	ev, err := e.queue.Launch(k, global, local, args, e.resolve(label, deps))
	if err != nil {
		return Handle{}, fmt.Errorf("%s: %w", label, err)
	}
	e.stats.Launches[label]++
	return e.record(label, NodeLaunch, deps, ev), nil
}

func (e *graphExecutor) ReadImage(label string, img compute.Image, x, y, w, h int, dst []float32, deps ...Handle) (Handle, error) {
	if err := e.queue.ReadImage(img, x, y, w, h, dst, e.resolve(label, deps)); err != nil {
		return Handle{}, fmt.Errorf("%s: %w", label, err)
	}
	e.stats.Reads++
	return e.record(label, NodeRead, deps), nil
}

// Marker forwards the events of its dependencies, so waiting on the marker
// waits on all of them.
func (e *graphExecutor) Marker(label string, kind NodeKind, deps ...Handle) Handle {
	return e.record(label, kind, deps, e.resolve(label, deps)...)
}

func (e *graphExecutor) Acquire(imgs []compute.Image, deps ...Handle) (Handle, error) {
	ev, err := e.queue.Acquire(imgs, e.resolve("acquire", deps))
	if err != nil {
		return Handle{}, err
	}
	return e.record("acquire", NodeAcquire, deps, ev), nil
}

func (e *graphExecutor) Release(imgs []compute.Image, deps ...Handle) (Handle, error) {
	ev, err := e.queue.Release(imgs, e.resolve("release", deps))
	if err != nil {
		return Handle{}, err
	}
	return e.record("release", NodeRelease, deps, ev), nil
}
