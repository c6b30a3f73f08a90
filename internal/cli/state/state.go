package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TokenState stores the bearer token used for moderator calls.
type TokenState struct {
	AccessToken string `json:"access_token"`
}

func Load(path string) (TokenState, error) {
	var st TokenState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read token state failed: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse token state failed: %w", err)
	}
	return st, nil
}

func Save(path string, st TokenState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create token state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token state failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token state failed: %w", err)
	}
	return nil
}

func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token state failed: %w", err)
	}
	return nil
}

// Masked shortens the token for display.
func (s TokenState) Masked() string {
	token := s.AccessToken
	if token == "" {
		return "<empty>"
	}
	if len(token) > 12 {
		return token[:6] + "..." + token[len(token)-4:]
	}
	return token
}
