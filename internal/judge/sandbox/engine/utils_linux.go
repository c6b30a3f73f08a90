//go:build linux

package engine

import (
	"io"
	"os"
	"syscall"
	"time"
)

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	return (state.UserTime() + state.SystemTime()).Milliseconds()
}

func fileSizeKB(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return (info.Size() + 1023) / 1024
}

func readLimitedFile(path string, maxBytes int64) string {
	if path == "" || maxBytes <= 0 {
		return ""
	}
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return ""
	}
	return string(data)
}

func maxRSSKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}
