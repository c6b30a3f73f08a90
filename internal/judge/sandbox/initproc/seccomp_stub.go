//go:build linux && !(cgo && seccomp)

package initproc

import "fmt"

func applySeccomp(profilePath string) error {
	return fmt.Errorf("seccomp profile %s requested but the helper was built without the seccomp tag", profilePath)
}
