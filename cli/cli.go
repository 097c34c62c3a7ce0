// Package cli builds the faktory-worker command tree. Applications embed
// it to get the standard flags, config loading and signal handling with
// their own jobs registered:
//
//	cmd := cli.New(cli.WithRegister(func(e *engine.Engine) {
//	    e.RegisterFunc("SendEmail", sendEmail)
//	}))
//	os.Exit(cli.Execute(cmd))
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	audithook "github.com/xraph/faktory/audit_hook"
	"github.com/xraph/faktory/config"
	"github.com/xraph/faktory/engine"
	"github.com/xraph/faktory/job"
)

// Option configures the command tree.
type Option func(*options)

type options struct {
	register   func(*engine.Engine)
	engineOpts []engine.Option
}

// WithRegister sets the function that registers the application's jobs
// and hooks on a freshly built engine.
func WithRegister(fn func(*engine.Engine)) Option {
	return func(o *options) { o.register = fn }
}

// WithEngineOptions adds options to every engine the commands build.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// New returns the root command with run, push and info subcommands.
func New(opts ...Option) *cobra.Command {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	root := &cobra.Command{
		Use:           "faktory-worker",
		Short:         "Faktory worker process",
		Long:          "faktory-worker fetches and runs jobs from a Faktory server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringP("config", "C", "", "Config file (yaml, json or toml)")
	pf.String("url", "", "Server URL; defaults to FAKTORY_PROVIDER / FAKTORY_URL")
	pf.String("log-level", "", "Log level: debug|info|warn|error")
	pf.String("log-format", "", "Log format: text|json")

	root.AddCommand(newRunCommand(&o), newPushCommand(&o), newInfoCommand(&o))
	return root
}

// Execute runs cmd and returns a process exit code.
func Execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}

func newRunCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Fetch and run jobs until stopped",
		Aliases: []string{"start"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var extra []engine.Option
			if audit, _ := cmd.Flags().GetBool("audit"); audit {
				extra = append(extra, withAuditLog())
			}
			eng, err := o.build(cmd, extra...)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			stopQuiet := notifyQuiet(eng.Quiet)
			defer stopQuiet()

			return eng.Run(ctx)
		},
	}
	f := cmd.Flags()
	f.IntP("concurrency", "c", 0, "Number of jobs run in parallel")
	f.StringSliceP("queues", "q", nil, "Queues to fetch from, in order")
	f.Bool("strict", false, "Fetch queues in declared order on every poll")
	f.Duration("shutdown-timeout", 0, "Time allowed for running jobs to finish on shutdown")
	f.String("tag", "", "Process tag shown in the Web UI")
	f.StringSlice("labels", nil, "Labels sent to the server")
	f.Bool("audit", false, "Log an audit record for every job and process event")
	return cmd
}

func newPushCommand(o *options) *cobra.Command {
	var queue string
	var retry int
	cmd := &cobra.Command{
		Use:   "push <jobtype> [json-arg...]",
		Short: "Push one job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobArgs, err := decodeArgs(args[1:])
			if err != nil {
				return err
			}
			eng, err := o.build(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			var jopts []job.Option
			if queue != "" {
				jopts = append(jopts, job.WithQueue(queue))
			}
			if cmd.Flags().Changed("retry") {
				jopts = append(jopts, job.WithRetry(retry))
			}
			jid, err := eng.Set(args[0], jopts...).PerformAsync(cmd.Context(), jobArgs...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jid)
			return nil
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "Queue to push to")
	cmd.Flags().IntVar(&retry, "retry", 0, "Retry budget; 0 disables retries")
	return cmd
}

func newInfoCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the server's status document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := o.build(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			info, err := eng.Info(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func (o *options) build(cmd *cobra.Command, extra ...engine.Option) (*engine.Engine, error) {
	path, _ := cmd.Flags().GetString("config")
	file, err := config.Load(path, config.WithFlags(cmd.Flags()))
	if err != nil {
		return nil, err
	}
	cfg, err := file.Config()
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(cmd.ErrOrStderr(), file.Log)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{engine.WithLogger(logger)}
	if len(file.Limits) > 0 {
		opts = append(opts, engine.WithQueueConfig(file.Limits...))
	}
	opts = append(opts, o.engineOpts...)
	opts = append(opts, extra...)
	eng, err := engine.Build(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if o.register != nil {
		o.register(eng)
	}
	return eng, nil
}

// withAuditLog records audit events to the engine's logger. It must be
// applied after WithLogger.
func withAuditLog() engine.Option {
	return func(e *engine.Engine) {
		logger := e.Logger().With(slog.String("component", "audit"))
		rec := audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
			logger.InfoContext(ctx, evt.Action,
				slog.String("resource", evt.Resource),
				slog.String("resource_id", evt.ResourceID),
				slog.String("outcome", evt.Outcome),
				slog.String("severity", evt.Severity),
				slog.Any("metadata", evt.Metadata),
			)
			return nil
		})
		engine.WithExtension(audithook.New(rec,
			audithook.WithIdentity(e.WID()),
			audithook.WithLogger(logger),
		))(e)
	}
}

// NewLogger builds a text or JSON slog logger at the configured level.
func NewLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if lc.Level != "" {
		if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
	}
	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(lc.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: use text or json", lc.Format)
	}
}

// decodeArgs parses each argument as JSON, falling back to the raw
// string when it is not valid JSON.
func decodeArgs(raw []string) ([]any, error) {
	args := make([]any, 0, len(raw))
	for _, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			var syn *json.SyntaxError
			if !errors.As(err, &syn) {
				return nil, fmt.Errorf("argument %q: %w", s, err)
			}
			v = s
		}
		args = append(args, v)
	}
	return args, nil
}

type stopFunc func()
