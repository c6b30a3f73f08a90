//go:build linux

package initproc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"nitz/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

// Main runs the helper and never returns.
func Main() {
	if err := Run(); err != nil {
		reportFailure(err)
		os.Exit(1)
	}
	os.Exit(0)
}

// Run applies the requested restrictions and execs the program.
// It only returns on failure.
func Run() error {
	if _, err := unix.FcntlInt(uintptr(StatusFD), unix.F_GETFD, 0); err == nil {
		unix.CloseOnExec(StatusFD)
	}

	req, err := Decode(os.Stdin)
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	if req.CgroupManaged {
		// checked before chroot hides /proc
		if err := verifyCgroup(req.CgroupPath); err != nil {
			return err
		}
	}

	if req.EnableNs {
		if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
			return fmt.Errorf("make mount private: %w", err)
		}
		if err := applyBindMounts(req.Isolation.RootFS, req.RunSpec.BindMounts); err != nil {
			return err
		}
		if req.Isolation.RootFS != "" {
			if err := unix.Chroot(req.Isolation.RootFS); err != nil {
				return fmt.Errorf("chroot: %w", err)
			}
			if err := os.Chdir("/"); err != nil {
				return fmt.Errorf("chdir root: %w", err)
			}
		}
	} else if req.Isolation.RootFS != "" {
		return fmt.Errorf("rootfs requires namespaces")
	}

	if err := os.Chdir(req.RunSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}

	env := buildEnv(req.RunSpec.Env)
	cmdPath, err := lookPath(req.RunSpec.Cmd[0], env)
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}

	if err := redirectIO(req.RunSpec.StdinPath, req.RunSpec.StdoutPath, req.RunSpec.StderrPath); err != nil {
		return err
	}

	limits := req.RunSpec.Limits
	if req.CgroupManaged {
		// pids.max is per run, RLIMIT_NPROC would count every process of the uid
		limits.PIDs = 0
	}
	if err := applyRlimits(limits); err != nil {
		return err
	}

	if req.EnableSeccomp && req.Isolation.SeccompProfile != "" {
		if err := applySeccomp(req.Isolation.SeccompProfile); err != nil {
			return err
		}
	}

	return unix.Exec(cmdPath, req.RunSpec.Cmd, env)
}

func verifyCgroup(cgroupPath string) error {
	data, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return fmt.Errorf("read cgroup membership: %w", err)
	}
	if !inCgroup(string(data), cgroupPath) {
		return fmt.Errorf("helper is not in cgroup %s", cgroupPath)
	}
	return nil
}

func reportFailure(err error) {
	msg := []byte(err.Error())
	if _, werr := unix.Write(StatusFD, msg); werr == nil {
		return
	}
	_, _ = fmt.Fprintln(os.Stderr, err.Error())
}

// lookPath resolves name against the PATH of the program environment.
func lookPath(name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		return exec.LookPath(name)
	}
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			for _, dir := range filepath.SplitList(strings.TrimPrefix(kv, "PATH=")) {
				candidate := filepath.Join(dir, name)
				if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
					return candidate, nil
				}
			}
		}
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func applyBindMounts(rootfs string, mounts []spec.MountSpec) error {
	for _, m := range mounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("invalid mount spec")
		}
		target := m.Target
		if rootfs != "" {
			target = filepath.Join(rootfs, m.Target)
		}
		if err := ensureMountTarget(m.Source, target); err != nil {
			return err
		}
		if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind mount %s: %w", m.Source, err)
		}
		if m.ReadOnly {
			if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("remount readonly: %w", err)
			}
		}
	}
	if rootfs != "" {
		procPath := filepath.Join(rootfs, "proc")
		if err := os.MkdirAll(procPath, 0755); err != nil {
			return fmt.Errorf("mkdir proc: %w", err)
		}
		if err := unix.Mount("proc", procPath, "proc", 0, ""); err != nil && !errors.Is(err, unix.EBUSY) {
			return fmt.Errorf("mount proc: %w", err)
		}
	}
	return nil
}

func ensureMountTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("mkdir mount target: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("mkdir mount target dir: %w", err)
	}
	file, err := os.OpenFile(target, os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("create mount target file: %w", err)
	}
	return file.Close()
}

func applyRlimits(limits spec.ResourceLimit) error {
	if limits.CPUTimeMs > 0 {
		// the soft limit delivers SIGXCPU, the hard limit one second later SIGKILL
		seconds := uint64((limits.CPUTimeMs + 999) / 1000)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds, Max: seconds + 1}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if limits.OutputMB > 0 {
		bytes := uint64(limits.OutputMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit fsize: %w", err)
		}
	}
	if limits.StackMB > 0 {
		bytes := uint64(limits.StackMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_STACK, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit stack: %w", err)
		}
	}
	if limits.AddressSpaceMB > 0 {
		bytes := uint64(limits.AddressSpaceMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit as: %w", err)
		}
	}
	if limits.PIDs > 0 {
		val := uint64(limits.PIDs)
		if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{Cur: val, Max: val}); err != nil {
			return fmt.Errorf("set rlimit nproc: %w", err)
		}
	}
	return nil
}

func redirectIO(stdinPath, stdoutPath, stderrPath string) error {
	if stdinPath == "" {
		stdinPath = os.DevNull
	}
	if stdoutPath == "" {
		stdoutPath = os.DevNull
	}
	if stderrPath == "" {
		stderrPath = os.DevNull
	}
	stdinFile, err := os.Open(stdinPath)
	if err != nil {
		return fmt.Errorf("open stdin: %w", err)
	}
	defer stdinFile.Close()
	stdoutFile, err := os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open stdout: %w", err)
	}
	defer stdoutFile.Close()
	stderrFile, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open stderr: %w", err)
	}
	defer stderrFile.Close()

	if err := unix.Dup2(int(stdinFile.Fd()), 0); err != nil {
		return fmt.Errorf("dup stdin: %w", err)
	}
	if err := unix.Dup2(int(stdoutFile.Fd()), 1); err != nil {
		return fmt.Errorf("dup stdout: %w", err)
	}
	if err := unix.Dup2(int(stderrFile.Fd()), 2); err != nil {
		return fmt.Errorf("dup stderr: %w", err)
	}
	return nil
}
