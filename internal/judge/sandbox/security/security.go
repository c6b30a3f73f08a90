// Package security defines sandbox isolation settings.
package security

// IsolationProfile describes namespace, filesystem and seccomp settings for one task profile.
type IsolationProfile struct {
	RootFS         string
	SeccompProfile string
	DisableNetwork bool
}
