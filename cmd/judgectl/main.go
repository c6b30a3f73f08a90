package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"nitz/internal/cli/command"
	"nitz/internal/cli/config"
	httpclient "nitz/internal/cli/http"
	"nitz/internal/cli/repl"
	"nitz/internal/cli/state"
	"nitz/internal/cli/watch"
	"nitz/internal/common/mq"

	"github.com/chzyer/readline"
)

const defaultConfigPath = "configs/judgectl.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	token := flag.String("token", "", "Override access token")
	statePath := flag.String("state", "", "Override token state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.TokenStatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	tokenState, err := state.Load(cfg.TokenStatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load token state failed: %v\n", err)
		os.Exit(1)
	}
	if *token != "" {
		tokenState.AccessToken = *token
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() string {
		return tokenState.AccessToken
	})

	commands := command.Registry()
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    repl.Completer(commands),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init line editor failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = rl.Close()
	}()

	session := repl.New(client, commands, &tokenState, cfg.TokenStatePath, *cfg.PrettyJSON, rl, rl.Stdout())
	if len(cfg.Kafka.Brokers) > 0 {
		queue, err := mq.NewKafkaQueue(mq.KafkaConfig{Brokers: cfg.Kafka.Brokers, ClientID: "judgectl"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "init kafka failed: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			_ = queue.Close()
		}()
		session.SetWatch(watch.New(queue, cfg.Kafka.OutcomeTopic, cfg.Kafka.Group).Run)
	}
	session.Run(context.Background())
}
