package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cachefang/cachefang/internal/config"
	"github.com/cachefang/cachefang/internal/core"
	"github.com/cachefang/cachefang/internal/input"
	"github.com/cachefang/cachefang/internal/networking"
	"github.com/cachefang/cachefang/internal/output"
	"github.com/cachefang/cachefang/internal/report"
	"github.com/cachefang/cachefang/internal/utils"
)

const version = "1.0.0"

const banner = `
               _         __
  ___ __ _ ___| |__  ___/ _| __ _ _ __   __ _
 / __/ _` + "`" + ` |/ __| '_ \/ _ \ |_ / _` + "`" + ` | '_ \ / _` + "`" + ` |
| (_| (_| | (__| | | |  __/  _| (_| | | | | (_| |
 \___\__,_|\___|_| |_|\___|_|  \__,_|_| |_|\__, |
                                           |___/
        web cache poisoning scanner v%s
`

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cachefang [flags] [targets...]",
		Short:   "Detects web cache poisoning vulnerabilities",
		Long:    "cachefang probes targets with unkeyed-header payloads, observes cache behavior and verifies reproducible poisoning before reporting.",
		Version: version,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceP("target", "t", nil, "Target URL to scan (repeatable)")
	flags.StringP("file", "f", "", "File containing target URLs, one per line")
	flags.Bool("stdin", false, "Read target URLs from stdin")
	flags.StringP("mode", "m", "standard", "Scan mode: standard, aggressive or stealth")
	flags.IntP("threads", "j", 10, "Number of concurrent test workers")
	flags.Float64P("delay", "d", 1.0, "Per-worker delay between requests in seconds")
	flags.Float64("timeout", 10.0, "Request timeout in seconds")
	flags.Int("max-urls", 100, "Maximum endpoints discovered per target")
	flags.Int("max-depth", 2, "Maximum crawl depth during discovery")
	flags.Int("verify-attempts", 3, "Verification attempts per candidate finding")
	flags.Float64("reproducibility-threshold", 0.6, "Minimum confirmed/attempted ratio to report a vulnerability")
	flags.StringP("output", "o", "", "File to write the report to (default stdout)")
	flags.String("format", "text", "Report format: text, json or html")
	flags.String("proxy", "", "Proxy URL for all requests (e.g. http://127.0.0.1:8080)")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.String("user-agent", "", "Override the User-Agent header")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("log-level", "info", "Log level: debug, info, warn, error or fatal")
	flags.Bool("no-color", false, "Disable colored output")
	flags.Bool("silent", false, "Suppress all output except the report")
	flags.StringVar(&cfgFile, "config", "", "Config file (default searches for cachefang.yaml)")

	bindings := map[string]string{
		"targets":                   "target",
		"targets_file":              "file",
		"stdin":                     "stdin",
		"mode":                      "mode",
		"threads":                   "threads",
		"delay":                     "delay",
		"timeout":                   "timeout",
		"max_urls":                  "max-urls",
		"max_depth":                 "max-depth",
		"verify_attempts":           "verify-attempts",
		"reproducibility_threshold": "reproducibility-threshold",
		"output_file":               "output",
		"output_format":             "format",
		"proxy":                     "proxy",
		"insecure":                  "insecure",
		"user_agent":                "user-agent",
		"verbose":                   "verbose",
		"log_level":                 "log-level",
		"no_color":                  "no-color",
		"silent":                    "silent",
	}
	for key, flagName := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			panic(err)
		}
	}

	return cmd
}

// loadConfig merges defaults, config file, environment and flags into a
// validated Config. Environment variables use the CACHEFANG_ prefix.
func loadConfig() (*config.Config, error) {
	viper.SetEnvPrefix("CACHEFANG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		viper.SetConfigName("cachefang")
		viper.AddConfigPath(".")
		// Missing default config file is fine; flags and env still apply.
		_ = viper.ReadInConfig()
	}

	cfg := config.DefaultConfig()
	cfg.Targets = viper.GetStringSlice("targets")
	cfg.TargetsFile = viper.GetString("targets_file")
	cfg.Stdin = viper.GetBool("stdin")
	cfg.Mode = config.Mode(viper.GetString("mode"))
	cfg.Threads = viper.GetInt("threads")
	cfg.DelaySeconds = viper.GetFloat64("delay")
	cfg.TimeoutSeconds = viper.GetFloat64("timeout")
	cfg.MaxURLs = viper.GetInt("max_urls")
	cfg.MaxDepth = viper.GetInt("max_depth")
	cfg.VerifyAttempts = viper.GetInt("verify_attempts")
	cfg.ReproducibilityThreshold = viper.GetFloat64("reproducibility_threshold")
	cfg.OutputFile = viper.GetString("output_file")
	cfg.OutputFormat = viper.GetString("output_format")
	cfg.Proxy = viper.GetString("proxy")
	cfg.InsecureSkipVerify = viper.GetBool("insecure")
	cfg.Verbose = viper.GetBool("verbose")
	cfg.NoColor = viper.GetBool("no_color")
	cfg.Silent = viper.GetBool("silent")
	if ua := viper.GetString("user_agent"); ua != "" {
		cfg.UserAgent = ua
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := utils.StringToLogLevel(viper.GetString("log_level"))
	if cfg.Verbose {
		level = utils.LevelDebug
	}
	logger := utils.NewDefaultLogger(level, cfg.NoColor, cfg.Silent)

	if !cfg.Silent {
		fmt.Fprintf(os.Stderr, banner, version)
	}

	targets, err := collectTargets(cfg, args, logger)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets provided: use -t, -f, --stdin or positional arguments")
	}
	logger.Infof("Loaded %d target(s)", len(targets))

	client, err := networking.NewClient(networking.ClientConfig{
		Timeout:            cfg.Timeout(),
		UserAgent:          cfg.UserAgent,
		Proxy:              cfg.Proxy,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MaxRedirects:       cfg.MaxRedirects,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := core.NewEngine(cfg, client, logger)

	renderer := output.NewProgressRenderer(cfg.Silent || !utils.IsTerminal(os.Stderr.Fd()))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		renderer.Run(engine.Events())
	}()

	session, err := engine.Run(ctx, targets)
	wg.Wait()
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		logger.Warnf("Scan interrupted; reporting partial results")
	}

	reporter := report.NewReporter(logger)
	if err := reporter.Generate(session, cfg.OutputFile, cfg.OutputFormat); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	logger.Infof("Done: %d confirmed vulnerabilit(y/ies) across %d target(s)",
		session.TotalVulnerabilities(), len(session.Results()))
	return nil
}

// collectTargets merges every target source: -t flags, positional args, a
// targets file and stdin.
func collectTargets(cfg *config.Config, args []string, logger utils.Logger) ([]string, error) {
	reader := input.NewReader()
	targets := append([]string{}, cfg.Targets...)
	targets = append(targets, args...)

	if cfg.TargetsFile != "" {
		logger.Debugf("Reading targets from file %s", cfg.TargetsFile)
		fromFile, err := reader.ReadTargetsFromFile(cfg.TargetsFile)
		if err != nil {
			return nil, err
		}
		targets = append(targets, fromFile...)
	}

	useStdin := cfg.Stdin
	if !useStdin && len(targets) == 0 && !utils.IsTerminal(os.Stdin.Fd()) {
		// Piped input with no explicit targets: read it.
		useStdin = true
	}
	if useStdin {
		logger.Debugf("Reading targets from stdin")
		fromStdin, err := reader.ReadTargetsFromStdin()
		if err != nil {
			return nil, err
		}
		targets = append(targets, fromStdin...)
	}

	// Dedup while preserving order.
	seen := make(map[string]struct{}, len(targets))
	var unique []string
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}
	return unique, nil
}
