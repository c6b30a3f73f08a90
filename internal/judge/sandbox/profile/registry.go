package profile

import (
	"context"
	"fmt"
	"strings"

	"nitz/internal/judge/sandbox/security"
	"nitz/internal/judge/sandbox/spec"
	appErr "nitz/pkg/errors"

	mapset "github.com/deckarep/golang-set/v2"
)

// Registry is the immutable language table built at startup.
// It is safe for concurrent use without locking.
type Registry struct {
	languages map[LanguageID]LanguageSpec
	profiles  map[string]TaskProfile
	known     mapset.Set[LanguageID]
}

// NewRegistry validates specs and fills languages that were not configured from defaults.
func NewRegistry(specs []LanguageSpec) (*Registry, error) {
	known := mapset.NewThreadUnsafeSet(KnownLanguages()...)
	seen := mapset.NewThreadUnsafeSet[LanguageID]()
	languages := make(map[LanguageID]LanguageSpec, known.Cardinality())

	for _, lang := range specs {
		id, ok := ParseLanguageID(string(lang.ID))
		if !ok || !known.Contains(id) {
			return nil, fmt.Errorf("language %q is not supported", lang.ID)
		}
		if !seen.Add(id) {
			return nil, fmt.Errorf("language %q configured twice", id)
		}
		lang.ID = id
		lang = withDefaults(lang)
		if err := validateLanguage(lang); err != nil {
			return nil, err
		}
		languages[id] = lang
	}
	for _, id := range KnownLanguages() {
		if _, ok := languages[id]; ok {
			continue
		}
		lang, _ := DefaultLanguage(id)
		languages[id] = lang
	}

	profiles := make(map[string]TaskProfile, len(languages)*2)
	for id, lang := range languages {
		run := TaskProfile{
			LanguageID:     id,
			TaskType:       TaskTypeRun,
			RootFS:         lang.RootFS,
			SeccompProfile: lang.SeccompProfile,
			DefaultLimits:  lang.Limits,
		}
		profiles[run.Name()] = run
		if lang.CompileEnabled {
			compile := TaskProfile{
				LanguageID:    id,
				TaskType:      TaskTypeCompile,
				RootFS:        lang.RootFS,
				DefaultLimits: lang.CompileLimits,
			}
			profiles[compile.Name()] = compile
		}
	}
	return &Registry{languages: languages, profiles: profiles, known: known}, nil
}

// withDefaults completes a partially configured language from the built-in spec.
func withDefaults(lang LanguageSpec) LanguageSpec {
	def, ok := DefaultLanguage(lang.ID)
	if !ok {
		return lang
	}
	if lang.Name == "" {
		lang.Name = def.Name
	}
	if lang.Version == "" {
		lang.Version = def.Version
	}
	if lang.SourceFile == "" {
		lang.SourceFile = def.SourceFile
	}
	if lang.BinaryFile == "" {
		lang.BinaryFile = def.BinaryFile
	}
	if lang.RunCmdTpl == "" {
		lang.RunCmdTpl = def.RunCmdTpl
		lang.CompileEnabled = def.CompileEnabled
		lang.CompileCmdTpl = def.CompileCmdTpl
	}
	if lang.Env == nil {
		lang.Env = def.Env
	}
	if lang.Limits == (spec.ResourceLimit{}) {
		lang.Limits = def.Limits
	}
	if lang.CompileLimits == (spec.ResourceLimit{}) {
		lang.CompileLimits = def.CompileLimits
	}
	if lang.TimeMultiplier == 0 {
		lang.TimeMultiplier = def.TimeMultiplier
	}
	if lang.MemoryMultiplier == 0 {
		lang.MemoryMultiplier = def.MemoryMultiplier
	}
	if lang.LimitAddressSpace == nil {
		lang.LimitAddressSpace = def.LimitAddressSpace
	}
	return lang
}

func validateLanguage(lang LanguageSpec) error {
	if strings.TrimSpace(lang.RunCmdTpl) == "" {
		return fmt.Errorf("language %s: run command is required", lang.ID)
	}
	if lang.SourceFile == "" {
		return fmt.Errorf("language %s: source file is required", lang.ID)
	}
	if lang.CompileEnabled && strings.TrimSpace(lang.CompileCmdTpl) == "" {
		return fmt.Errorf("language %s: compile command is required when compilation is enabled", lang.ID)
	}
	if lang.Harness != "" && !strings.Contains(lang.Harness, PlaceholderUserCode) {
		return fmt.Errorf("language %s: harness must contain %s", lang.ID, PlaceholderUserCode)
	}
	if lang.TimeMultiplier < 0 || lang.MemoryMultiplier < 0 {
		return fmt.Errorf("language %s: multipliers must not be negative", lang.ID)
	}
	return nil
}

// Resolve returns the spec for a raw language identifier or alias.
func (r *Registry) Resolve(raw string) (LanguageSpec, error) {
	id, ok := ParseLanguageID(raw)
	if !ok || !r.known.Contains(id) {
		return LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", raw)
	}
	lang := r.languages[id]
	lang.Env = append([]string(nil), lang.Env...)
	return lang, nil
}

// Languages lists every language in enumeration order.
func (r *Registry) Languages() []LanguageSpec {
	out := make([]LanguageSpec, 0, len(r.languages))
	for _, id := range KnownLanguages() {
		if lang, ok := r.languages[id]; ok {
			out = append(out, lang)
		}
	}
	return out
}

// GetTaskProfile returns a task profile by type and language.
func (r *Registry) GetTaskProfile(ctx context.Context, taskType TaskType, languageID LanguageID) (TaskProfile, error) {
	if taskType == "" || languageID == "" {
		return TaskProfile{}, appErr.ValidationError("task_profile", "required")
	}
	prof, ok := r.profiles[ProfileName(languageID, taskType)]
	if !ok {
		return TaskProfile{}, appErr.New(appErr.NotFound).WithMessage("task profile not found")
	}
	return prof, nil
}

// Isolation maps a profile name to isolation settings for the engine.
func (r *Registry) Isolation(profileName string) (security.IsolationProfile, error) {
	if profileName == "" {
		return security.IsolationProfile{}, appErr.ValidationError("profile", "required")
	}
	prof, ok := r.profiles[profileName]
	if !ok {
		return security.IsolationProfile{}, appErr.New(appErr.NotFound).WithMessage("profile not found")
	}
	return security.IsolationProfile{
		RootFS:         prof.RootFS,
		SeccompProfile: prof.SeccompProfile,
		DisableNetwork: true,
	}, nil
}
