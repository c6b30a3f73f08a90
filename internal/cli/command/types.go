package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt64
	FieldSource
)

// Field defines a CLI input field.
// Query names the query parameter the value is sent as; empty means body or path.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
	Query    string
}

// Command defines a CLI command binding.
type Command struct {
	Service      string
	Action       string
	Method       string
	PathTemplate string
	RequiresAuth bool
	Fields       []Field
	Usage        string
	Payload      func(Params) (any, error)
}

// Key is the "service action" lookup key.
func (c Command) Key() string {
	return c.Service + " " + c.Action
}

// RequestSpec is the built HTTP request.
type RequestSpec struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

func ParseInt64(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}

// Source returns params[key], or the content of the file named by params[key+"_file"].
func (p Params) Source(key string) (string, error) {
	if path := p.Get(key + "_file"); path != "" {
		return ReadFile(path)
	}
	return p.Get(key), nil
}

// Satisfied reports whether field already has a value, directly or through its _file variant.
func (p Params) Satisfied(field Field) bool {
	if p.Get(field.Name) != "" {
		return true
	}
	return field.Type == FieldSource && p.Get(field.Name+"_file") != ""
}
