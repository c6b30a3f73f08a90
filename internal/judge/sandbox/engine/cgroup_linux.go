//go:build linux

package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nitz/internal/judge/sandbox/spec"
)

// createRunCgroup makes <root>/<submission>/<test>-<nanos> and returns a cleanup that removes
// it and the submission directory once empty.
func createRunCgroup(root, submissionID, testID string) (string, func(), error) {
	if root == "" {
		return "", func() {}, fmt.Errorf("cgroup root is required")
	}
	submissionDir := filepath.Join(root, submissionID)
	cgroupPath := filepath.Join(submissionDir, fmt.Sprintf("%s-%d", testID, time.Now().UnixNano()))
	if err := os.MkdirAll(cgroupPath, 0750); err != nil {
		return "", func() {}, fmt.Errorf("create cgroup path: %w", err)
	}
	cleanup := func() {
		_ = killCgroup(cgroupPath)
		// cgroup directories only go away through rmdir
		for i := 0; i < 10; i++ {
			err := syscall.Rmdir(cgroupPath)
			if err == nil || errors.Is(err, syscall.ENOENT) {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		_ = syscall.Rmdir(submissionDir)
	}
	return cgroupPath, cleanup, nil
}

func applyCgroupLimits(cgroupPath string, limits spec.ResourceLimit) error {
	pidsValue := "max"
	if limits.PIDs > 0 {
		pidsValue = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := writeCgroupValue(cgroupPath, "pids.max", pidsValue); err != nil {
		return err
	}
	if limits.MemoryMB > 0 {
		if err := writeCgroupValue(cgroupPath, "memory.max", strconv.FormatInt(limits.MemoryMB*1024*1024, 10)); err != nil {
			return err
		}
		// swap would let the program exceed memory.max silently
		_ = writeCgroupValue(cgroupPath, "memory.swap.max", "0")
		_ = writeCgroupValue(cgroupPath, "memory.oom.group", "1")
	}
	return nil
}

// attachCgroupFD makes the child start inside cgroupPath (clone3 with CLONE_INTO_CGROUP),
// so no instruction of the helper runs outside the run's limits.
// The returned directory must stay open until the process has started.
func attachCgroupFD(attr *syscall.SysProcAttr, cgroupPath string) (*os.File, error) {
	dir, err := os.Open(cgroupPath)
	if err != nil {
		return nil, err
	}
	attr.UseCgroupFD = true
	attr.CgroupFD = int(dir.Fd())
	return dir, nil
}

func killCgroup(cgroupPath string) error {
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func wasOomKilled(cgroupPath string) bool {
	if cgroupPath == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(cgroupPath, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "oom_kill" {
			val, _ := strconv.ParseInt(fields[1], 10, 64)
			return val > 0
		}
	}
	return false
}

// memoryPeakKB prefers memory.peak and falls back to the rusage high-water mark.
func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if cgroupPath != "" {
		if val, err := readCgroupInt(cgroupPath, "memory.peak"); err == nil && val > 0 {
			return val / 1024
		}
	}
	return maxRSSKB(state)
}

func readCgroupInt(cgroupPath, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func writeCgroupValue(cgroupPath, name, value string) error {
	return os.WriteFile(filepath.Join(cgroupPath, name), []byte(value), 0640)
}
