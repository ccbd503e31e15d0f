// Package must provides helpers for operations whose errors can only be
// logged, not handled, typically because they occur during best-effort
// cleanup in a defer or during a diagnostic print.
package must

import (
	"fmt"
	"io"
	"os"

	"github.com/corediff/corediff/pkg/logging"
)

// Close closes c, logging (rather than returning) any error.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn(fmt.Errorf("unable to close: %w", err))
	}
}

// OSRemove removes the file at name, logging (rather than returning) any
// error.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warn(fmt.Errorf("unable to remove %q: %w", name, err))
	}
}

// IOCopy copies from src to dst, logging (rather than returning) any error.
func IOCopy(dst io.Writer, src io.Reader, logger *logging.Logger) {
	if _, err := io.Copy(dst, src); err != nil {
		logger.Warn(fmt.Errorf("unable to copy from source to destination: %w", err))
	}
}
