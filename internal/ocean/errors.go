package ocean

import (
	"errors"

	"oceancl/internal/compute"
)

// IsFatal reports whether err should stop the program. Build, allocation and
// device errors are fatal; a missing optional device feature is not.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, compute.ErrUnsupported)
}
