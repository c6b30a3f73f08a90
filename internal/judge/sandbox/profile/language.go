// Package profile defines the supported languages and the task profiles used by the sandbox.
package profile

import (
	"strings"

	"nitz/internal/judge/sandbox/spec"
)

// LanguageID identifies a supported language. The set is closed.
type LanguageID string

const (
	LanguagePython     LanguageID = "python"
	LanguageJavaScript LanguageID = "javascript"
	LanguageJava       LanguageID = "java"
	LanguageCpp        LanguageID = "cpp"
)

// KnownLanguages returns every supported language in listing order.
func KnownLanguages() []LanguageID {
	return []LanguageID{LanguagePython, LanguageJavaScript, LanguageJava, LanguageCpp}
}

var languageAliases = map[string]LanguageID{
	"py":         LanguagePython,
	"python3":    LanguagePython,
	"js":         LanguageJavaScript,
	"node":       LanguageJavaScript,
	"nodejs":     LanguageJavaScript,
	"c++":        LanguageCpp,
	"cxx":        LanguageCpp,
	"javascript": LanguageJavaScript,
	"python":     LanguagePython,
	"java":       LanguageJava,
	"cpp":        LanguageCpp,
}

// ParseLanguageID normalizes raw into a LanguageID.
func ParseLanguageID(raw string) (LanguageID, bool) {
	id, ok := languageAliases[strings.ToLower(strings.TrimSpace(raw))]
	return id, ok
}

// Harness placeholders.
const (
	PlaceholderUserCode  = "{userCode}"
	PlaceholderLogicCode = "{logicCode}"

	DefaultHarness = PlaceholderUserCode + "\n" + PlaceholderLogicCode + "\n"
)

// LanguageSpec defines how to compile and run a language.
// Command templates may use {src}, {bin} and {dir}.
type LanguageSpec struct {
	ID             LanguageID `yaml:"id" json:"language_id"`
	Name           string     `yaml:"name" json:"name"`
	Version        string     `yaml:"version" json:"version"`
	SourceFile     string     `yaml:"sourceFile" json:"-"`
	BinaryFile     string     `yaml:"binaryFile" json:"-"`
	CompileEnabled bool       `yaml:"compileEnabled" json:"compiled"`
	CompileCmdTpl  string     `yaml:"compileCmd" json:"-"`
	RunCmdTpl      string     `yaml:"runCmd" json:"-"`
	Env            []string   `yaml:"env" json:"-"`

	Limits        spec.ResourceLimit `yaml:"limits" json:"limits"`
	CompileLimits spec.ResourceLimit `yaml:"compileLimits" json:"-"`

	TimeMultiplier   float64 `yaml:"timeMultiplier" json:"timeMultiplier,omitempty"`
	MemoryMultiplier float64 `yaml:"memoryMultiplier" json:"memoryMultiplier,omitempty"`
	// LimitAddressSpace applies the memory limit as RLIMIT_AS too.
	// Runtimes that reserve large virtual ranges up front (JVM, V8) leave it off.
	// Nil inherits the built-in setting of the language.
	LimitAddressSpace *bool `yaml:"limitAddressSpace" json:"-"`

	// Harness merges user code with problem logic code.
	Harness string `yaml:"harness" json:"-"`

	RootFS         string `yaml:"rootfs" json:"-"`
	SeccompProfile string `yaml:"seccompProfile" json:"-"`
}

// MergeSource builds the program text from user code and logic code.
func (l LanguageSpec) MergeSource(userCode, logicCode string) string {
	tpl := l.Harness
	if tpl == "" {
		tpl = DefaultHarness
	}
	return strings.NewReplacer(PlaceholderUserCode, userCode, PlaceholderLogicCode, logicCode).Replace(tpl)
}

var defaultLanguages = map[LanguageID]LanguageSpec{
	LanguagePython: {
		ID:         LanguagePython,
		Name:       "Python",
		Version:    "3",
		SourceFile: "main.py",
		RunCmdTpl:  "python3 -S {src}",
		Env:        []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8"},
		Limits: spec.ResourceLimit{
			CPUTimeMs: 2000, WallTimeMs: 2000, MemoryMB: 256, StackMB: 64, OutputMB: 16, PIDs: 16,
		},
		TimeMultiplier:    1,
		MemoryMultiplier:  1,
		LimitAddressSpace: enabled(true),
	},
	LanguageJavaScript: {
		ID:         LanguageJavaScript,
		Name:       "JavaScript",
		Version:    "Node.js",
		SourceFile: "main.js",
		RunCmdTpl:  "node --stack-size=8192 {src}",
		Limits: spec.ResourceLimit{
			CPUTimeMs: 2000, WallTimeMs: 2000, MemoryMB: 256, OutputMB: 16, PIDs: 32,
		},
		TimeMultiplier:   1,
		MemoryMultiplier: 1,
	},
	LanguageJava: {
		ID:             LanguageJava,
		Name:           "Java",
		Version:        "17",
		SourceFile:     "Main.java",
		BinaryFile:     "Main.class",
		CompileEnabled: true,
		CompileCmdTpl:  "javac -J-Xms32m -J-Xmx256m -encoding UTF-8 -d {dir} {src}",
		RunCmdTpl:      "java -Xss64m -XX:+UseSerialGC -cp {dir} Main",
		Limits: spec.ResourceLimit{
			CPUTimeMs: 2000, WallTimeMs: 2000, MemoryMB: 256, OutputMB: 16, PIDs: 64,
		},
		CompileLimits: spec.ResourceLimit{
			CPUTimeMs: 10000, WallTimeMs: 15000, MemoryMB: 512, OutputMB: 64, PIDs: 64,
		},
		TimeMultiplier:   2,
		MemoryMultiplier: 2,
	},
	LanguageCpp: {
		ID:             LanguageCpp,
		Name:           "C++",
		Version:        "GNU++17",
		SourceFile:     "main.cpp",
		BinaryFile:     "main",
		CompileEnabled: true,
		CompileCmdTpl:  "g++ -O2 -std=gnu++17 -pipe -o {bin} {src}",
		RunCmdTpl:      "{bin}",
		Limits: spec.ResourceLimit{
			CPUTimeMs: 1000, WallTimeMs: 1000, MemoryMB: 256, StackMB: 64, OutputMB: 16, PIDs: 1,
		},
		CompileLimits: spec.ResourceLimit{
			CPUTimeMs: 10000, WallTimeMs: 15000, MemoryMB: 512, OutputMB: 64, PIDs: 32,
		},
		TimeMultiplier:    1,
		MemoryMultiplier:  1,
		LimitAddressSpace: enabled(true),
	},
}

// DefaultLanguage returns the built-in spec for id.
func DefaultLanguage(id LanguageID) (LanguageSpec, bool) {
	lang, ok := defaultLanguages[id]
	if ok {
		lang.Env = append([]string(nil), lang.Env...)
	}
	return lang, ok
}

// AddressSpaceLimited reports whether runs get RLIMIT_AS.
func (l LanguageSpec) AddressSpaceLimited() bool {
	return l.LimitAddressSpace != nil && *l.LimitAddressSpace
}

func enabled(v bool) *bool {
	return &v
}
