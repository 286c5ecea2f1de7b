//go:build !opencl

package compute

import (
	"fmt"
	"log/slog"
)

func openOpenCL(Selection, *slog.Logger) (Device, error) {
	return nil, fmt.Errorf("OpenCL support is not enabled; rebuild with -tags opencl: %w", ErrBackendUnavailable)
}
