package engine

import "nitz/internal/judge/sandbox/security"

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Isolation(profile string) (security.IsolationProfile, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	CgroupRoot string
	SeccompDir string
	// HelperPath is the sandbox-init binary; HelperArgs and HelperEnv are passed to it as is.
	HelperPath           string
	HelperArgs           []string
	HelperEnv            []string
	StdoutStderrMaxBytes int64
	EnableSeccomp        bool
	EnableCgroup         bool
	EnableNamespaces     bool
}
