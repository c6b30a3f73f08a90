//go:build !linux

package initproc

import (
	"fmt"
	"os"
)

// Main reports that the helper only works on linux.
func Main() {
	_, _ = fmt.Fprintln(os.Stderr, "sandbox-init is only supported on linux")
	os.Exit(1)
}
