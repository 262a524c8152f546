// aisen is a small operator tool for the aisen agent: it checks that a
// configuration reaches the collector and can send notices by hand.
//
// Usage:
//
//	aisen [flags] ping
//	aisen [flags] test
//	aisen [flags] notify --message "disk full" [--class DiskError] [--tag ops]
//	aisen version
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
	"github.com/vietddude/stylelog"

	"github.com/strongdm/aisen-agent/internal/config"
	"github.com/strongdm/aisen-agent/pkg/aisen"
	"github.com/strongdm/aisen-agent/pkg/aisen/agent"
	"github.com/strongdm/aisen-agent/pkg/aisen/worker"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	envFile    string
	debug      bool
	timeout    time.Duration
}

func run(args []string, out io.Writer) error {
	var g globalFlags
	flagSet := pflag.NewFlagSet("aisen", pflag.ContinueOnError)
	flagSet.StringVarP(&g.configPath, "config", "c", "", "path to YAML config file")
	flagSet.StringVar(&g.envFile, "env-file", ".env", "dotenv file to read AISEN_* variables from")
	flagSet.BoolVar(&g.debug, "debug", false, "enable debug logging")
	flagSet.DurationVar(&g.timeout, "timeout", 30*time.Second, "overall deadline for the command")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() { printUsage(out, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(out, flagSet)
		return errors.New("missing command")
	}

	level := slog.LevelInfo
	if g.debug {
		level = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "version":
		fmt.Fprintf(out, "%s %s\n", aisen.NotifierName, aisen.Version)
		return nil
	case "ping":
		return runPing(ctx, g, out)
	case "test":
		return runNotify(ctx, g, out, []string{
			"--class", "AisenTestError",
			"--message", "Testing aisen via \"aisen test\". If you can see this, it works.",
		})
	case "notify":
		return runNotify(ctx, g, out, cmdArgs)
	default:
		printUsage(out, flagSet)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: aisen [flags] <ping|test|notify|version>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fmt.Fprint(w, flagSet.FlagUsages())
}

// loadOptions merges file and environment options and attaches the CLI
// logger.
func loadOptions(g globalFlags) (map[string]any, error) {
	opts, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return nil, err
	}
	opts["logger"] = slog.Default()
	return opts, nil
}

func runPing(ctx context.Context, g globalFlags, out io.Writer) error {
	opts, err := loadOptions(g)
	if err != nil {
		return err
	}
	cfg, err := agent.DecodeOptions(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.Ping(ctx) {
		return fmt.Errorf("backend %q did not answer the handshake", cfg.BackendName)
	}
	fmt.Fprintf(out, "ok: backend %s reachable\n", cfg.BackendName)
	return nil
}

func runNotify(ctx context.Context, g globalFlags, out io.Writer, args []string) error {
	var (
		message  string
		class    string
		severity string
		tags     []string
	)
	flagSet := pflag.NewFlagSet("notify", pflag.ContinueOnError)
	flagSet.StringVarP(&message, "message", "m", "", "notice message (required)")
	flagSet.StringVar(&class, "class", "", "error class reported to the collector")
	flagSet.StringVar(&severity, "severity", string(aisen.SeverityError), "warning, error, or crash")
	flagSet.StringSliceVar(&tags, "tag", nil, "tag to attach (repeatable)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("notify: --message is required")
	}

	opts, err := loadOptions(g)
	if err != nil {
		return err
	}

	outcome := &deliveryOutcome{}
	registry := agent.NewRegistry(agent.WithWorkerFactory(outcome.worker))
	if !registry.StartContext(ctx, agent.FromOptions(opts)) {
		return errors.New("agent did not start; see log for the reason")
	}
	defer registry.Stop()

	err = registry.Notify(ctx, errors.New(message),
		agent.WithErrorClass(class),
		agent.WithSeverity(aisen.Severity(severity)),
		agent.WithTags(tags...),
	)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := registry.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	if reason := outcome.dropReason(); reason != "" {
		return fmt.Errorf("notice dropped: %s", reason)
	}
	fmt.Fprintf(out, "ok: notice delivered after %d attempt(s)\n", outcome.attempts.Load())
	return nil
}

// deliveryOutcome observes the single notice the CLI sends.
type deliveryOutcome struct {
	attempts atomic.Int64
	dropped  atomic.Pointer[string]
}

func (o *deliveryOutcome) worker(cfg agent.Config, backend aisen.Backend, logger aisen.Logger) worker.Queue {
	return worker.New(backend, cfg.WorkerConfig(),
		worker.WithLogger(logger),
		worker.WithOnDelivered(func(job worker.Job) {
			o.attempts.Store(int64(job.Attempts))
		}),
		worker.WithOnDropped(func(job worker.Job, reason worker.DropReason) {
			r := string(reason)
			o.dropped.Store(&r)
		}),
	)
}

func (o *deliveryOutcome) dropReason() string {
	if r := o.dropped.Load(); r != nil {
		return *r
	}
	return ""
}
