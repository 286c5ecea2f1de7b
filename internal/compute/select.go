package compute

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Selection identifies the device the renderer runs on, so that compute and
// rendering share one physical device.
type Selection struct {
	UUID  string
	Name  string
	Index int // negative means no preference
}

func (s Selection) empty() bool { return s.UUID == "" && s.Name == "" && s.Index < 0 }

func normalizeUUID(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
}

// ParseSelection interprets a user supplied device string: an integer is an
// index, 32 hex digits (dashes allowed) a UUID, anything else a name.
func ParseSelection(s string) Selection {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selection{Index: -1}
	}
	if i, err := strconv.Atoi(s); err == nil {
		return Selection{Index: i}
	}
	if u := normalizeUUID(s); len(u) == 32 {
		if _, err := hex.DecodeString(u); err == nil {
			return Selection{UUID: s, Index: -1}
		}
	}
	return Selection{Name: s, Index: -1}
}

// SelectDevice picks the candidate matching want. A UUID match wins over a
// name match, which wins over an index. With no preference the first
// candidate is used.
func SelectDevice(candidates []Identity, want Selection) (int, error) {
	if len(candidates) == 0 {
		return -1, errors.New("no compute devices found")
	}
	if want.empty() {
		return 0, nil
	}
	if want.UUID != "" {
		u := normalizeUUID(want.UUID)
		for i, c := range candidates {
			if c.UUID != "" && normalizeUUID(c.UUID) == u {
				return i, nil
			}
		}
	}
	if want.Name != "" {
		n := strings.ToLower(want.Name)
		for i, c := range candidates {
			if strings.Contains(strings.ToLower(c.Name), n) {
				return i, nil
			}
		}
	}
	if want.Index >= 0 && want.Index < len(candidates) {
		return want.Index, nil
	}
	return -1, fmt.Errorf("no compute device matches uuid=%q name=%q index=%d among %d candidates",
		want.UUID, want.Name, want.Index, len(candidates))
}

// Backend names a device implementation.
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendCPU    Backend = "cpu"
	BackendOpenCL Backend = "opencl"
)

// OpenOptions configures Open.
type OpenOptions struct {
	Backend   Backend
	Selection Selection
	CPU       CPUOptions
	Logger    *slog.Logger
}

// Open returns a device for the requested backend. The auto backend prefers
// OpenCL and falls back to the CPU reference device.
func Open(opts OpenOptions) (Device, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CPU.Logger == nil {
		opts.CPU.Logger = logger
	}
	switch opts.Backend {
	case BackendCPU:
		return NewCPUDevice(opts.CPU), nil
	case BackendOpenCL:
		return openOpenCL(opts.Selection, logger)
	case BackendAuto, "":
		dev, err := openOpenCL(opts.Selection, logger)
		if err == nil {
			return dev, nil
		}
		logger.Warn("OpenCL device unavailable, using CPU reference device", "err", err)
		return NewCPUDevice(opts.CPU), nil
	}
	return nil, fmt.Errorf("unknown compute backend %q", opts.Backend)
}
