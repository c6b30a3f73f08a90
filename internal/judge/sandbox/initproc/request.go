// Package initproc is the sandbox helper that runs between the engine and the submitted program.
// It reads a Request from stdin, restricts itself, then replaces its image with the program.
package initproc

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"nitz/internal/judge/sandbox/security"
	"nitz/internal/judge/sandbox/spec"
)

// StatusFD is the descriptor the engine passes for setup failures.
// It is close-on-exec in the helper, so a successful exec leaves it empty.
const StatusFD = 3

// DefaultPath is used when the program environment does not set PATH.
const DefaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Request is what the engine sends to the helper.
type Request struct {
	RunSpec       spec.RunSpec
	Isolation     security.IsolationProfile
	EnableSeccomp bool
	EnableNs      bool
	// CgroupManaged is set when the engine placed the helper in a per-run cgroup.
	CgroupManaged bool
	// CgroupPath is the absolute cgroupfs directory of that run.
	CgroupPath string
}

// Encode writes req as one JSON document.
func Encode(w io.Writer, req Request) error {
	return json.NewEncoder(w).Encode(req)
}

// Decode reads one Request from r.
func Decode(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req Request) error {
	if len(req.RunSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if req.CgroupManaged && req.CgroupPath == "" {
		return fmt.Errorf("cgroup path is required")
	}
	return nil
}

// inCgroup reports whether the unified hierarchy entry of procSelfCgroup
// names the directory cgroupPath.
func inCgroup(procSelfCgroup, cgroupPath string) bool {
	for _, line := range strings.Split(procSelfCgroup, "\n") {
		rel, ok := strings.CutPrefix(strings.TrimSpace(line), "0::")
		if !ok {
			continue
		}
		rel = strings.TrimSuffix(rel, "/")
		if !strings.HasPrefix(rel, "/") {
			return false
		}
		return strings.HasSuffix(strings.TrimSuffix(cgroupPath, "/"), rel)
	}
	return false
}

// buildEnv returns env with a PATH entry guaranteed.
func buildEnv(env []string) []string {
	out := make([]string, 0, len(env)+1)
	hasPath := false
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "PATH=" {
			hasPath = true
		}
		out = append(out, kv)
	}
	if !hasPath {
		out = append(out, DefaultPath)
	}
	return out
}
