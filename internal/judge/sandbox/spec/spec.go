// Package spec defines the execution specification and resource limits.
package spec

// ResourceLimit describes hard limits enforced by the sandbox.
// Zero means "not limited" for every field.
type ResourceLimit struct {
	CPUTimeMs  int64 `yaml:"cpuTimeMs" json:"cpuTimeMs,omitempty"`
	WallTimeMs int64 `yaml:"wallTimeMs" json:"wallTimeMs,omitempty"`
	MemoryMB   int64 `yaml:"memoryMB" json:"memoryMB,omitempty"`
	StackMB    int64 `yaml:"stackMB" json:"stackMB,omitempty"`
	OutputMB   int64 `yaml:"outputMB" json:"outputMB,omitempty"`
	PIDs       int64 `yaml:"pids" json:"pids,omitempty"`
	// AddressSpaceMB caps virtual memory through RLIMIT_AS.
	AddressSpaceMB int64 `yaml:"addressSpaceMB" json:"addressSpaceMB,omitempty"`
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec is the unified execution specification for one process.
// Paths are host paths; with a rootfs the helper mounts them at the same location.
type RunSpec struct {
	SubmissionID string
	TestID       string
	WorkDir      string
	Cmd          []string
	Env          []string
	StdinPath    string
	StdoutPath   string
	StderrPath   string
	BindMounts   []MountSpec
	Profile      string
	Limits       ResourceLimit
}
