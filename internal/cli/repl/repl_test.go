package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nitz/internal/cli/command"
	httpclient "nitz/internal/cli/http"
	"nitz/internal/cli/state"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

type scriptedReader struct {
	lines   []string
	prompts []string
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) SetPrompt(prompt string) {
	r.prompts = append(r.prompts, prompt)
}

func newSession(t *testing.T, baseURL string, lines ...string) (*Session, *bytes.Buffer, *scriptedReader, *state.TokenState) {
	t.Helper()
	tokens := &state.TokenState{}
	client := httpclient.New(baseURL, time.Second, func() string { return tokens.AccessToken })
	reader := &scriptedReader{lines: lines}
	out := &bytes.Buffer{}
	statePath := filepath.Join(t.TempDir(), "state.json")
	return New(client, command.Registry(), tokens, statePath, false, reader, out), out, reader, tokens
}

func TestRunExecutesCommandAndPromptsMissing(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/code/execute" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"success":true,"data":{"verdict":"accepted"}}`))
	}))
	defer srv.Close()

	session, out, reader, _ := newSession(t, srv.URL, `code execute problem=1 lang=python`, "print(1)", "exit")
	session.Run(context.Background())

	if body["userCode"] != "print(1)" {
		t.Fatalf("expected prompted user code, got %v", body)
	}
	if !strings.Contains(out.String(), "HTTP 200") || !strings.Contains(out.String(), "accepted") {
		t.Fatalf("unexpected output %q", out.String())
	}
	if !contains(reader.prompts, "user_code: ") {
		t.Fatalf("expected user_code prompt, got %v", reader.prompts)
	}
	if reader.prompts[len(reader.prompts)-1] != prompt {
		t.Fatalf("expected prompt restored, got %v", reader.prompts)
	}
	if !strings.HasSuffix(strings.TrimSpace(out.String()), "bye") {
		t.Fatalf("expected bye on exit")
	}
}

func TestRunRendersErrorType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"errorType":"NotFound","message":"Submission not found"}`))
	}))
	defer srv.Close()

	session, out, _, _ := newSession(t, srv.URL, "submission status id=missing")
	session.Run(context.Background())
	if !strings.Contains(out.String(), "NotFound: Submission not found") {
		t.Fatalf("expected error summary, got %q", out.String())
	}
}

func TestSetTokenIsSentAsBearer(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	session, out, _, tokens := newSession(t, srv.URL,
		"set token secret-token-value",
		"show token",
		"code update-starter problem=1 lang=cpp type=user_code code=x",
	)
	session.Run(context.Background())
	if tokens.AccessToken != "secret-token-value" || auth != "Bearer secret-token-value" {
		t.Fatalf("expected bearer token, got %q", auth)
	}
	if !strings.Contains(out.String(), "token: secret...alue") {
		t.Fatalf("expected masked token, got %q", out.String())
	}
}

func TestUnknownCommandAndWatchWithoutKafka(t *testing.T) {
	session, out, _, _ := newSession(t, "http://127.0.0.1:1", "code nope", "watch", "help")
	session.Run(context.Background())
	text := out.String()
	if !strings.Contains(text, "unknown command: code nope") {
		t.Fatalf("expected unknown command error, got %q", text)
	}
	if !strings.Contains(text, "watch needs kafka brokers") {
		t.Fatalf("expected watch hint, got %q", text)
	}
	if !strings.Contains(text, "code execute problem=1") {
		t.Fatalf("expected usage in help, got %q", text)
	}
}

func TestWatchUsesInjectedFunc(t *testing.T) {
	session, out, _, _ := newSession(t, "http://127.0.0.1:1", "watch")
	session.SetWatch(func(ctx context.Context, w io.Writer) error {
		_, _ = fmt.Fprintln(w, "event line")
		return nil
	})
	session.Run(context.Background())
	if !strings.Contains(out.String(), "event line") {
		t.Fatalf("expected watch output, got %q", out.String())
	}
}

func TestCompleterListsServices(t *testing.T) {
	tree := Completer(command.Registry()).Tree("")
	for _, want := range []string{"code", "submission", "system", "watch"} {
		if !strings.Contains(tree, want) {
			t.Fatalf("expected %s in completion tree %q", want, tree)
		}
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
