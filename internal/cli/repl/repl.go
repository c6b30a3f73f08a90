package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"nitz/internal/cli/command"
	httpclient "nitz/internal/cli/http"
	"nitz/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/google/shlex"
)

const prompt = "nitz> "

// LineReader is the line editor behind the session.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// WatchFunc streams outcome events to out until ctx ends.
type WatchFunc func(ctx context.Context, out io.Writer) error

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	tokenState *state.TokenState
	statePath  string
	prettyJSON bool
	reader     LineReader
	out        io.Writer
	watch      WatchFunc
}

func New(client *httpclient.Client, commands map[string]command.Command, tokenState *state.TokenState, statePath string, prettyJSON bool, reader LineReader, out io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		tokenState: tokenState,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		reader:     reader,
		out:        out,
	}
}

// SetWatch enables the watch command.
func (s *Session) SetWatch(fn WatchFunc) {
	s.watch = fn
}

// Completer builds tab completion for the registered commands.
func Completer(commands map[string]command.Command) *readline.PrefixCompleter {
	grouped := map[string][]readline.PrefixCompleterInterface{}
	var services []string
	for _, cmd := range command.Sorted(commands) {
		if _, ok := grouped[cmd.Service]; !ok {
			services = append(services, cmd.Service)
		}
		grouped[cmd.Service] = append(grouped[cmd.Service], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("watch"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config")),
	}
	for _, service := range services {
		items = append(items, readline.PcItem(service, grouped[service]...))
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands until exit or end of input.
func (s *Session) Run(ctx context.Context) {
	s.reader.SetPrompt(prompt)
	for {
		line, err := s.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return
		}
		if s.handleSystemCommand(ctx, line) {
			continue
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(ctx context.Context, line string) bool {
	switch {
	case line == "help":
		s.printHelp()
		return true
	case line == "watch":
		s.runWatch(ctx)
		return true
	case strings.HasPrefix(line, "set "):
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	case strings.HasPrefix(line, "show "):
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) runWatch(ctx context.Context) {
	if s.watch == nil {
		s.printLine("watch needs kafka brokers in the config")
		return
	}
	watchCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	s.printLine("watching outcomes, ctrl-c to stop")
	if err := s.watch(watchCtx, s.out); err != nil {
		s.printLine("watch stopped: %v", err)
	}
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|token|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8085")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		if len(parts) < 2 {
			s.tokenState.AccessToken = ""
			if err := state.Clear(s.statePath); err != nil {
				s.printLine("clear token failed: %v", err)
				return
			}
			s.printLine("token cleared")
			return
		}
		s.tokenState.AccessToken = parts[1]
		if err := state.Save(s.statePath, *s.tokenState); err != nil {
			s.printLine("save token failed: %v", err)
			return
		}
		s.printLine("token updated")
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "token":
		s.printLine("token: %s", s.tokenState.Masked())
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("tokenStatePath: %s", s.statePath)
	default:
		s.printLine("usage: show token|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(key, value)
	}
	params.Canonicalize(cmd.Fields)
	if cmd.RequiresAuth && s.tokenState.AccessToken == "" {
		s.printLine("note: no token set, the server may reject this call")
	}

	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	defer s.reader.SetPrompt(prompt)
	for _, field := range cmd.Fields {
		if !field.Required || params.Satisfied(field) {
			continue
		}
		s.reader.SetPrompt(field.Prompt + ": ")
		value, err := s.reader.Readline()
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		params.Set(field.Name, strings.TrimSpace(value))
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("%s (%s) trace=%s", statusColor(resp.StatusCode).Sprintf("HTTP %d", resp.StatusCode),
		resp.Duration.Round(time.Millisecond), resp.TraceID)
	if len(resp.Body) == 0 {
		return
	}
	if env, ok := resp.Envelope(); ok && !env.Success && env.ErrorType != "" {
		s.printLine("%s: %s", color.RedString(env.ErrorType), env.Message)
	}
	if s.prettyJSON {
		var raw any
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func statusColor(code int) *color.Color {
	switch {
	case code >= 500:
		return color.New(color.FgRed, color.Bold)
	case code >= 400:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | watch | set base|timeout|token | show token|config")
	s.printLine("source fields accept <name>_file=path, e.g. user_code_file=./main.py")
	for _, cmd := range command.Sorted(s.commands) {
		s.printLine("  %s", cmd.Usage)
	}
}

func (s *Session) printLine(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
