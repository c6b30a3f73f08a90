//go:build linux && cgo && seccomp

package initproc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

type seccompConfig struct {
	DefaultAction string           `json:"defaultAction"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

func applySeccomp(profilePath string) error {
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse seccomp profile: %w", err)
	}
	defaultAction, err := parseSeccompAction(cfg.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	for _, rule := range cfg.Syscalls {
		action, err := parseSeccompAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// unknown on this architecture
				continue
			}
			if err := filter.AddRule(call, action); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}
