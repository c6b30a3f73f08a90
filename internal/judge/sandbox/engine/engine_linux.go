//go:build linux

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"nitz/internal/judge/sandbox/initproc"
	"nitz/internal/judge/sandbox/result"
	"nitz/internal/judge/sandbox/security"
	"nitz/internal/judge/sandbox/spec"
	"nitz/pkg/utils/logger"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const (
	defaultStdoutStderrMaxBytes int64 = 64 * 1024
	maxSetupMessageBytes              = 4096
)

type liveRun struct {
	seq    uint64
	pid    int
	cgroup string
}

type linuxEngine struct {
	cfg      Config
	resolver ProfileResolver
	live     *xsync.MapOf[string, []liveRun]
	seq      atomic.Uint64
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("profile resolver is required")
	}
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	return &linuxEngine{
		cfg:      cfg,
		resolver: resolver,
		live:     xsync.NewMapOf[string, []liveRun](),
	}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return result.RunResult{}, err
	}

	isoProfile, err := e.resolver.Isolation(runSpec.Profile)
	if err != nil {
		return result.RunResult{}, fmt.Errorf("resolve profile: %w", err)
	}
	if e.cfg.SeccompDir != "" && isoProfile.SeccompProfile != "" && !filepath.IsAbs(isoProfile.SeccompProfile) {
		isoProfile.SeccompProfile = filepath.Join(e.cfg.SeccompDir, isoProfile.SeccompProfile)
	}

	cgroupPath := ""
	if e.cfg.EnableCgroup {
		var cleanup func()
		cgroupPath, cleanup, err = createRunCgroup(e.cfg.CgroupRoot, runSpec.SubmissionID, runSpec.TestID)
		if err != nil {
			return result.RunResult{}, fmt.Errorf("create cgroup: %w", err)
		}
		defer cleanup()
		if err := applyCgroupLimits(cgroupPath, runSpec.Limits); err != nil {
			return result.RunResult{}, fmt.Errorf("apply cgroup limits: %w", err)
		}
	}

	var initReq bytes.Buffer
	if err := initproc.Encode(&initReq, initproc.Request{
		RunSpec:       runSpec,
		Isolation:     isoProfile,
		EnableSeccomp: e.cfg.EnableSeccomp,
		EnableNs:      e.cfg.EnableNamespaces,
		CgroupManaged: e.cfg.EnableCgroup,
		CgroupPath:    cgroupPath,
	}); err != nil {
		return result.RunResult{}, fmt.Errorf("encode init request: %w", err)
	}

	statusR, statusW, err := os.Pipe()
	if err != nil {
		return result.RunResult{}, fmt.Errorf("create status pipe: %w", err)
	}
	defer statusR.Close()

	cmd := exec.CommandContext(ctx, e.cfg.HelperPath, e.cfg.HelperArgs...)
	if len(e.cfg.HelperEnv) > 0 {
		cmd.Env = append([]string(nil), e.cfg.HelperEnv...)
	}
	cmd.SysProcAttr = buildSysProcAttr(isoProfile, e.cfg.EnableNamespaces)
	if cgroupPath != "" {
		cgroupDir, err := attachCgroupFD(cmd.SysProcAttr, cgroupPath)
		if err != nil {
			_ = statusW.Close()
			return result.RunResult{}, fmt.Errorf("open cgroup: %w", err)
		}
		defer cgroupDir.Close()
	}
	cmd.Stdin = &initReq
	cmd.ExtraFiles = []*os.File{statusW}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var helperStderr bytes.Buffer
	cmd.Stderr = &helperStderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		_ = statusW.Close()
		return result.RunResult{}, fmt.Errorf("start helper: %w", err)
	}
	_ = statusW.Close()

	run := liveRun{seq: e.seq.Add(1), pid: cmd.Process.Pid, cgroup: cgroupPath}
	e.register(runSpec.SubmissionID, run)
	defer e.unregister(runSpec.SubmissionID, run.seq)

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		wallLimit := durationFromMs(runSpec.Limits.WallTimeMs)
		var wallTimer <-chan time.Time
		if wallLimit > 0 {
			timer := time.NewTimer(wallLimit)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
			if cgroupPath != "" {
				_ = killCgroup(cgroupPath)
			}
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	wallTimeMs := time.Since(start).Milliseconds()

	setupMsg, _ := io.ReadAll(io.LimitReader(statusR, maxSetupMessageBytes))

	runResult := result.RunResult{
		ExitCode:   exitStatus(cmd.ProcessState, timedOut.Load()),
		TimeMs:     cpuTimeMs(cmd.ProcessState),
		WallTimeMs: wallTimeMs,
		MemoryKB:   memoryPeakKB(cgroupPath, cmd.ProcessState),
		OutputKB:   fileSizeKB(runSpec.StdoutPath),
		Stdout:     readLimitedFile(runSpec.StdoutPath, e.cfg.StdoutStderrMaxBytes),
		Stderr:     readLimitedFile(runSpec.StderrPath, e.cfg.StdoutStderrMaxBytes),
		OomKilled:  wasOomKilled(cgroupPath),
	}

	if err := ctx.Err(); err != nil {
		return runResult, err
	}
	if len(setupMsg) > 0 {
		return runResult, fmt.Errorf("sandbox setup failed: %s", strings.TrimSpace(string(setupMsg)))
	}
	if cmd.ProcessState == nil {
		return runResult, fmt.Errorf("wait helper: %w", waitErr)
	}
	if waitErr != nil && helperStderr.Len() > 0 {
		logger.Debug(ctx, "sandbox helper stderr", zap.String("stderr", helperStderr.String()))
	}
	return runResult, nil
}

// exitStatus maps a finished process to an exit code, -1 meaning a time limit was hit.
// Other signals map to 128+signo like a shell does.
func exitStatus(state *os.ProcessState, timedOut bool) int {
	if timedOut || state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		if ws.Signal() == syscall.SIGXCPU {
			return -1
		}
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

func (e *linuxEngine) KillSubmission(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	runs, _ := e.live.Load(submissionID)
	for _, run := range runs {
		killProcessGroup(run.pid)
		if run.cgroup == "" {
			continue
		}
		if err := killCgroup(run.cgroup); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", run.cgroup), zap.Error(err))
		}
	}
	return nil
}

func (e *linuxEngine) register(submissionID string, run liveRun) {
	e.live.Compute(submissionID, func(old []liveRun, loaded bool) ([]liveRun, bool) {
		next := make([]liveRun, 0, len(old)+1)
		next = append(next, old...)
		return append(next, run), false
	})
}

func (e *linuxEngine) unregister(submissionID string, seq uint64) {
	e.live.Compute(submissionID, func(old []liveRun, loaded bool) ([]liveRun, bool) {
		next := make([]liveRun, 0, len(old))
		for _, r := range old {
			if r.seq != seq {
				next = append(next, r)
			}
		}
		return next, len(next) == 0
	})
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.SubmissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	if runSpec.TestID == "" {
		return fmt.Errorf("test id is required")
	}
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if runSpec.Profile == "" {
		return fmt.Errorf("profile is required")
	}
	return nil
}

func buildSysProcAttr(profile security.IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	cloneFlags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if profile.DisableNetwork {
		cloneFlags |= syscall.CLONE_NEWNET
	}
	cloneFlags |= syscall.CLONE_NEWUSER

	attr.Cloneflags = cloneFlags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}
