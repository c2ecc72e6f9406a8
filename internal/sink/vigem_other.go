//go:build !(windows && amd64)

package sink

import (
	"fmt"
	"log/slog"
	"runtime"
)

// OpenViGEm is only available on 64-bit x86 Windows.
func OpenViGEm(_ *slog.Logger) (Sink, error) {
	return nil, fmt.Errorf("vigem on %s/%s: %w (use --sink=viiper)", runtime.GOOS, runtime.GOARCH, ErrUnsupported)
}
