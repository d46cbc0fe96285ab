// Onboard runs conversational job-seeker onboarding against a language
// model provider.
//
// It exposes an HTTP API (plus a websocket channel) for front ends, a
// terminal chat for trying the flow locally, and helpers for inspecting
// the system prompt. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	onboard serve              Start the API server
//	onboard chat [user_id]     Run an onboarding conversation in the terminal
//	onboard prompt             Print the system prompt sent to the provider
//	onboard init [dir]         Write an example config to dir
//	onboard version            Print version and build information
//	onboard -o json version    Output version information as JSON
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/onboard/internal/api"
	"github.com/nugget/onboard/internal/buildinfo"
	"github.com/nugget/onboard/internal/config"
	"github.com/nugget/onboard/internal/fields"
	"github.com/nugget/onboard/internal/llm"
	"github.com/nugget/onboard/internal/mqtt"
	"github.com/nugget/onboard/internal/onboarding"
	"github.com/nugget/onboard/internal/prompts"
	"github.com/nugget/onboard/internal/sessionstore"
)

// main constructs the OS-level environment and delegates to [run], so
// the whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the onboard command. Arguments are
// parsed by hand so that tests can call run concurrently without the
// flag package's global state.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "chat":
		userID := "cli"
		if len(cmdArgs) > 0 {
			userID = cmdArgs[0]
		}
		return runChat(ctx, stdin, stdout, stderr, configPath, userID)
	case "prompt":
		return runPrompt(stdout)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Onboard - conversational job-seeker onboarding")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: onboard [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve            Start the API server")
	fmt.Fprintln(w, "  chat [user_id]   Run an onboarding conversation in the terminal")
	fmt.Fprintln(w, "  prompt           Print the system prompt")
	fmt.Fprintln(w, "  init [dir]       Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  version          Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/onboard/config.yaml, /etc/onboard/config.yaml")
	return nil
}

// runPrompt prints the system prompt exactly as providers receive it.
func runPrompt(w io.Writer) error {
	_, err := fmt.Fprintln(w, prompts.OnboardingSystem())
	return err
}

// runServe handles "onboard serve". It opens the session store, builds
// the provider chain, and runs the HTTP server and the optional MQTT
// publisher until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting onboard", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger = newLogger(stdout, level, cfg.LogFormat)

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.LLM.Provider,
		"database", cfg.Database.Path,
		"driver", cfg.Database.Driver,
	)
	logAPIKeys(logger, cfg)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var svcOpts []onboarding.ServiceOption
	var pub *mqtt.Publisher
	if cfg.MQTT.Enabled() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return err
		}
		pub = mqtt.New(cfg.MQTT, instanceID, cfg.LLM.Provider, logger)
		svcOpts = append(svcOpts, onboarding.WithNotifier(pub))
		logger.Info("mqtt completion publishing enabled",
			"broker", cfg.MQTT.Broker,
			"topic_prefix", cfg.MQTT.TopicPrefix,
			"instance_id", instanceID,
		)
	} else {
		logger.Info("mqtt completion publishing disabled (not configured)")
	}

	svc, store, err := buildService(ctx, cfg, logger, svcOpts...)
	if err != nil {
		return err
	}
	defer store.Close()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, svc, logger,
		api.WithAllowedOrigins(cfg.CORS.AllowedOrigins))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if pub != nil {
		g.Go(func() error {
			return pub.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		if pub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := pub.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("onboard stopped")
	return nil
}

// runChat handles "onboard chat". It runs one onboarding conversation
// against the configured provider and store, reading answers from
// stdin. Logs go to stderr so the conversation stays readable.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath, userID string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	logger := newLogger(stderr, level, cfg.LogFormat)

	svc, store, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reply, err := svc.Start(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "bot> %s\n", reply.Text)

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		answer := strings.TrimSpace(scanner.Text())
		switch answer {
		case "":
			continue
		case "/quit", "/exit":
			fmt.Fprintf(stdout, "session %s saved\n", reply.SessionID)
			return nil
		}

		reply, err = svc.Answer(ctx, reply.SessionID, answer)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "bot> %s\n", reply.Text)

		if reply.IsComplete {
			fmt.Fprintln(stdout)
			for _, name := range svc.Schema().Names() {
				fmt.Fprintf(stdout, "  %-18s %s\n", name+":", reply.Profile[name])
			}
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, reply.CompletionMessage)
			return nil
		}
	}
}

// buildService wires the store, provider, retry orchestrator, and
// advancer into an onboarding service. The caller closes the store.
func buildService(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...onboarding.ServiceOption) (*onboarding.Service, *sessionstore.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := sessionstore.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}

	sel, err := cfg.LLM.Selected()
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	provider, err := llm.NewProvider(ctx, cfg.LLM.Provider, llm.Endpoint{
		APIKey:          sel.APIKey,
		BaseURL:         sel.BaseURL,
		Model:           sel.Model,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		Timeout:         cfg.LLM.RequestTimeout,
	}, logger)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("create %s provider: %w", cfg.LLM.Provider, err)
	}
	logger.Info("llm provider initialized", "provider", provider.Name(), "model", sel.Model)

	orch := llm.NewOrchestrator(provider, prompts.OnboardingSystem, logger,
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
		llm.WithBaseDelay(cfg.LLM.RetryBaseDelay),
		llm.WithTemperature(cfg.LLM.Temperature),
	)

	schema := fields.Onboarding()
	adv := onboarding.NewAdvancer(orch, schema, logger)
	return onboarding.NewService(store, adv, schema, logger, opts...), store, nil
}

// logAPIKeys reports which provider keys are present without
// revealing them.
func logAPIKeys(logger *slog.Logger, cfg *config.Config) {
	logger.Info("llm credentials",
		"openai_api_key_set", cfg.LLM.OpenAI.APIKey != "",
		"deepseek_api_key_set", cfg.LLM.DeepSeek.APIKey != "",
		"gemini_api_key_set", cfg.LLM.Gemini.APIKey != "",
	)
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates, parses, and validates the YAML configuration
// file. If explicit is non-empty, that exact path is used. Returns the
// parsed config and the path that was loaded.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
