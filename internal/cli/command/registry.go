package command

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "code",
			Action:       "execute",
			Method:       http.MethodPost,
			PathTemplate: "/api/code/execute",
			Usage:        "code execute problem=1 lang=python user_code_file=./main.py [mode=submit] [user=7]",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "user_code", Aliases: []string{"code"}, Prompt: "user_code", Type: FieldSource, Required: true},
				{Name: "logic_code", Aliases: []string{"logic"}, Prompt: "logic_code", Type: FieldSource},
				{Name: "user_id", Aliases: []string{"user"}, Prompt: "user_id", Type: FieldInt64},
				{Name: "mode", Prompt: "mode", Type: FieldString},
			},
			Payload: buildExecutePayload,
		},
		{
			Service:      "code",
			Action:       "starter",
			Method:       http.MethodGet,
			PathTemplate: "/api/code/starter-code",
			Usage:        "code starter problem=1 [user=7] [context=moderator]",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldInt64, Required: true, Query: "id"},
				{Name: "user_id", Aliases: []string{"user"}, Prompt: "user_id", Type: FieldInt64, Query: "userId"},
				{Name: "context", Prompt: "context", Type: FieldString, Query: "context"},
			},
		},
		{
			Service:      "code",
			Action:       "update-starter",
			Method:       http.MethodPut,
			PathTemplate: "/api/code/starter-code",
			RequiresAuth: true,
			Usage:        "code update-starter problem=1 lang=cpp type=logic_code code_file=./logic.cpp",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "code_type", Aliases: []string{"type"}, Prompt: "code_type (user_code|logic_code)", Type: FieldString, Required: true},
				{Name: "code", Prompt: "code", Type: FieldSource, Required: true},
			},
			Payload: buildUpdateStarterPayload,
		},
		{
			Service:      "code",
			Action:       "languages",
			Method:       http.MethodGet,
			PathTemplate: "/api/code/languages",
			Usage:        "code languages",
		},
		{
			Service:      "submission",
			Action:       "status",
			Method:       http.MethodGet,
			PathTemplate: "/api/code/submissions/:id",
			Usage:        "submission status id=<submission_id>",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "submission",
			Action:       "cancel",
			Method:       http.MethodDelete,
			PathTemplate: "/api/code/submissions/:id",
			Usage:        "submission cancel id=<submission_id>",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "system",
			Action:       "health",
			Method:       http.MethodGet,
			PathTemplate: "/healthz",
			Usage:        "system health",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Sorted returns commands ordered by key.
func Sorted(commands map[string]Command) []Command {
	out := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	for _, field := range cmd.Fields {
		if field.Required && !params.Satisfied(field) {
			return RequestSpec{}, fmt.Errorf("%s is required", field.Name)
		}
	}
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if query := buildQuery(cmd.Fields, params); query != "" {
		path += "?" + query
	}

	var body []byte
	if cmd.Payload != nil {
		payload, err := cmd.Payload(params)
		if err != nil {
			return RequestSpec{}, err
		}
		body, err = json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	if strings.Contains(path, ":id") {
		value := params.Get("id")
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, ":id", url.PathEscape(value))
	}
	return path, nil
}

func buildQuery(fields []Field, params Params) string {
	values := url.Values{}
	for _, field := range fields {
		if field.Query == "" {
			continue
		}
		if value := params.Get(field.Name); value != "" {
			values.Set(field.Query, value)
		}
	}
	return values.Encode()
}

func buildExecutePayload(params Params) (any, error) {
	problemID, err := ParseInt64(params.Get("problem_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid problem_id: %w", err)
	}
	userCode, err := params.Source("user_code")
	if err != nil {
		return nil, err
	}
	logicCode, err := params.Source("logic_code")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"problemId": problemID,
		"language":  params.Get("language"),
		"userCode":  userCode,
	}
	if logicCode != "" {
		payload["logicCode"] = logicCode
	}
	if raw := params.Get("user_id"); raw != "" {
		userID, err := ParseInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid user_id: %w", err)
		}
		payload["userId"] = userID
	}
	if mode := params.Get("mode"); mode != "" {
		payload["mode"] = mode
	}
	return payload, nil
}

func buildUpdateStarterPayload(params Params) (any, error) {
	problemID, err := ParseInt64(params.Get("problem_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid problem_id: %w", err)
	}
	code, err := params.Source("code")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"problemId": problemID,
		"language":  params.Get("language"),
		"codeType":  params.Get("code_type"),
		"code":      code,
	}, nil
}
