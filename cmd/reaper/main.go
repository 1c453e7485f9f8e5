package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/procreaper"
	"github.com/loykin/procreaper/internal/config"
	"github.com/loykin/procreaper/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// exitFailure is returned for usage errors and fatal runtime errors.
const exitFailure = 255

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// GlobalFlags holds flags that are not bound to config keys.
type GlobalFlags struct {
	ConfigPath string
}

type result struct {
	kills int
}

func run(args []string, stdout, stderr io.Writer) int {
	res := &result{}
	root := buildRoot(res, stdout, stderr)
	root.SetArgs(normalizeArgs(args))
	if err := root.Execute(); err != nil {
		printError(stderr, err)
		if config.IsError(err) {
			_, _ = fmt.Fprintln(stderr, root.UsageString())
		}
		return exitFailure
	}
	return exitCode(res.kills)
}

// exitCode maps a kill count to a process exit status. Counts that would
// collide with exitFailure are capped below it.
func exitCode(kills int) int {
	if kills >= exitFailure {
		return exitFailure - 1
	}
	return kills
}

func printError(w io.Writer, err error) {
	msg := "error: " + err.Error()
	if logger.UseColor(logger.ColorAuto, w) {
		msg = "\033[31m" + msg + "\033[0m"
	}
	_, _ = fmt.Fprintln(w, msg)
}

// normalizeArgs rewrites the single-dash and slash spellings accepted by
// older reaper builds into the flags cobra understands.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch a {
		case "-wait", "/wait":
			out = append(out, "--wait")
		case "?", "/?", "-?", "--?", "/h", "-help", "/help":
			out = append(out, "--help")
		default:
			out = append(out, a)
		}
	}
	return out
}

// buildRoot creates the root command. The kill count of a successful run is stored in res.
func buildRoot(res *result, stdout, stderr io.Writer) *cobra.Command {
	flags := &GlobalFlags{}
	v := config.NewViper()

	root := &cobra.Command{
		Use:   "reaper [flags] NAME [LIFESPAN]",
		Short: "Kill processes that outlive their lifespan",
		Long: `reaper finds every process named NAME and kills those older than LIFESPAN,
children first. LIFESPAN is whole seconds or a duration such as 90s or 5m (default 0).
With --wait it keeps watching and sleeps until the next process would expire.
The exit code is the number of processes killed.

Examples:
  reaper worker 300
  reaper --wait --listen=:9300 worker 5m
  reaper --schedule="*/10 * * * *" worker 1h
  reaper --config=/etc/reaper.toml`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 2 {
				return &config.Error{Msg: "invalid argument: " + args[2]}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				v.Set("name", args[0])
			}
			if len(args) > 1 {
				v.Set("lifespan", args[1])
			}
			c, err := config.Load(v, flags.ConfigPath)
			if err != nil {
				return err
			}
			n, err := reap(cmd.Context(), c, stdout, stderr)
			res.kills = n
			return err
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &config.Error{Msg: "invalid argument", Err: err}
	})

	fs := root.Flags()
	fs.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	fs.Bool("wait", false, "process existing matches, then keep watching for new ones")
	fs.String("schedule", "", `reap once per cron tick, e.g. "*/5 * * * *" or "@every 1m"`)
	fs.String("log-level", "", "diagnostic log level: debug, info, warn, error")
	fs.String("log-file", "", "write diagnostic logs as JSON to this rotated file")
	fs.String("color", "", "console colors: auto, always, never")
	fs.String("history-dsn", "", "export kill history (sqlite, postgres, clickhouse or opensearch DSN)")
	fs.String("listen", "", "serve /status, /metrics and /healthz on this address")
	mustBind(v, "wait", fs.Lookup("wait"))
	mustBind(v, "schedule", fs.Lookup("schedule"))
	mustBind(v, "log.level", fs.Lookup("log-level"))
	mustBind(v, "log.file", fs.Lookup("log-file"))
	mustBind(v, "color", fs.Lookup("color"))
	mustBind(v, "history.dsn", fs.Lookup("history-dsn"))
	mustBind(v, "server.listen", fs.Lookup("listen"))

	return root
}

func mustBind(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

// reap runs one reaper with c. In continuous and scheduled mode SIGINT and
// SIGTERM stop the loop and the count so far is returned.
func reap(ctx context.Context, c config.Config, stdout, stderr io.Writer) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log, closer, err := logger.New(c.Log, stderr)
	if err != nil {
		return 0, &config.Error{Msg: "invalid log config", Err: err}
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(log)

	if c.Wait || c.Schedule != "" {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	r, err := procreaper.New(c, procreaper.WithLogger(log), procreaper.WithOutput(stdout))
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn("close history sink", "error", err)
		}
	}()

	n, err := r.Run(ctx)
	if err != nil && procreaper.IsUnavailable(err) {
		return n, fmt.Errorf("cannot query processes named %q: %w", c.Name, err)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return n, err
	}
	return n, nil
}
