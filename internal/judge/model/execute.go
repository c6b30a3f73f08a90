package model

import (
	"nitz/internal/judge/sandbox/profile"
	"nitz/internal/judge/sandbox/result"
)

// ExecuteRequest is the body of POST /api/code/execute.
type ExecuteRequest struct {
	ProblemID int64  `json:"problemId"`
	Language  string `json:"language"`
	UserCode  string `json:"userCode"`
	LogicCode string `json:"logicCode"`
	UserID    int64  `json:"userId"`
	Mode      string `json:"mode"`
}

// ExecuteResponse is the judged submission.
type ExecuteResponse struct {
	SubmissionID  string                  `json:"submissionId"`
	Verdict       result.Verdict          `json:"verdict"`
	Results       []result.TestcaseResult `json:"results"`
	StandardError *result.StandardError   `json:"standardError,omitempty"`
	Summary       result.SummaryStat      `json:"summary"`
}

// Viewer contexts for starter code.
const (
	ContextUser      = "user"
	ContextModerator = "moderator"
	ContextAdmin     = "admin"
)

// StarterCodeRequest is the query of GET /api/code/starter-code.
type StarterCodeRequest struct {
	ProblemID int64
	UserID    int64
	Context   string
}

// CanSeeLogic reports whether the viewer may read logic code.
func (r StarterCodeRequest) CanSeeLogic() bool {
	return r.Context == ContextModerator || r.Context == ContextAdmin
}

// StarterCodeEntry is one language entry in the starter-code response.
type StarterCodeEntry struct {
	LanguageID profile.LanguageID `json:"language_id"`
	Name       string             `json:"name"`
	Version    string             `json:"version"`
	UserCode   string             `json:"user_code"`
	LogicCode  string             `json:"logic_code,omitempty"`
}

// Editable starter code fields.
const (
	CodeTypeUser  = "user_code"
	CodeTypeLogic = "logic_code"
)

// UpdateStarterCodeRequest is the body of PUT /api/code/starter-code.
type UpdateStarterCodeRequest struct {
	ProblemID int64  `json:"problemId"`
	Language  string `json:"language"`
	CodeType  string `json:"codeType"`
	Code      string `json:"code"`
}

// LanguageInfo is one entry of GET /api/code/languages.
type LanguageInfo struct {
	LanguageID     profile.LanguageID `json:"language_id"`
	Name           string             `json:"name"`
	Version        string             `json:"version"`
	CompileEnabled bool               `json:"compileEnabled"`
}
