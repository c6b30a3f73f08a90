package profile

import (
	"fmt"

	"nitz/internal/judge/sandbox/spec"
)

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeRun     TaskType = "run"
)

// TaskProfile defines sandbox resources and security settings for a task type.
type TaskProfile struct {
	LanguageID     LanguageID
	TaskType       TaskType
	RootFS         string
	SeccompProfile string
	DefaultLimits  spec.ResourceLimit
}

// Name is the key the engine resolves isolation settings by.
func (p TaskProfile) Name() string {
	return ProfileName(p.LanguageID, p.TaskType)
}

// ProfileName joins language and task type, for example "cpp-compile".
func ProfileName(languageID LanguageID, taskType TaskType) string {
	if languageID == "" {
		return string(taskType)
	}
	return fmt.Sprintf("%s-%s", languageID, taskType)
}
