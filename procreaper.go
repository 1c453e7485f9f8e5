package procreaper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	cfg "github.com/loykin/procreaper/internal/config"
	"github.com/loykin/procreaper/internal/cron"
	"github.com/loykin/procreaper/internal/history"
	"github.com/loykin/procreaper/internal/history/factory"
	"github.com/loykin/procreaper/internal/killtree"
	"github.com/loykin/procreaper/internal/logger"
	"github.com/loykin/procreaper/internal/metrics"
	"github.com/loykin/procreaper/internal/proctable"
	"github.com/loykin/procreaper/internal/reaper"
	"github.com/loykin/procreaper/internal/report"
	iapi "github.com/loykin/procreaper/internal/server"
	rtls "github.com/loykin/procreaper/internal/tls"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type HistoryConfig = cfg.HistoryConfig

type ServerConfig = cfg.ServerConfig

type TLSConfig = rtls.Config

type Record = proctable.Record

type Directory = proctable.Directory

type Controller = killtree.Controller

type Event = report.Event

type EventSink = report.Sink

type Snapshot = report.Snapshot

type HistorySink = history.Sink

type HistoryEvent = history.Event

// ErrUnavailable is returned by Run when the process table cannot be read.
var ErrUnavailable = proctable.ErrUnavailable

// Reaper wires the process table, kill-tree executor, reporting sinks and
// optional status server around one reaper loop.
type Reaper struct {
	cfg        Config
	log        *slog.Logger
	out        io.Writer
	dir        proctable.Directory
	ctl        killtree.Controller
	hist       history.Sink
	ownsHist   bool
	sinks      []report.Sink
	status     *report.Status
	registerer prometheus.Registerer
}

type Option func(*Reaper)

// WithLogger sets the diagnostic logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reaper) {
		if l != nil {
			r.log = l
		}
	}
}

// WithOutput sets where the console report goes. nil disables it. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option { return func(r *Reaper) { r.out = w } }

// WithDirectory replaces the OS process table.
func WithDirectory(d Directory) Option { return func(r *Reaper) { r.dir = d } }

// WithController replaces the OS process controller.
func WithController(c Controller) Option { return func(r *Reaper) { r.ctl = c } }

// WithHistorySink exports kill outcomes to s instead of the sink built from History.DSN.
func WithHistorySink(s HistorySink) Option { return func(r *Reaper) { r.hist = s } }

// WithEventSink adds a sink that receives every loop event.
func WithEventSink(s EventSink) Option {
	return func(r *Reaper) { r.sinks = append(r.sinks, s) }
}

// WithRegisterer sets where metrics are registered. Defaults to prometheus.DefaultRegisterer.
// /metrics serves reg when it is a *prometheus.Registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Reaper) { r.registerer = reg }
}

// New validates c and prepares a Reaper. c.MaxAge is taken from c.Lifespan
// when it is unset.
func New(c Config, opts ...Option) (*Reaper, error) {
	if c.MaxAge == 0 && c.Lifespan != "" {
		d, err := cfg.ParseLifespan(c.Lifespan)
		if err != nil {
			return nil, err
		}
		c.MaxAge = d
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	r := &Reaper{
		cfg:        c,
		log:        slog.Default(),
		out:        os.Stdout,
		registerer: prometheus.DefaultRegisterer,
	}
	for _, o := range opts {
		o(r)
	}
	if r.dir == nil {
		r.dir = proctable.NewTable()
	}
	if r.ctl == nil {
		r.ctl = killtree.NewController()
	}
	if r.registerer != nil {
		if err := metrics.Register(r.registerer); err != nil {
			return nil, err
		}
	}
	if r.hist == nil && c.History.DSN != "" {
		s, err := factory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			return nil, err
		}
		r.hist = s
		r.ownsHist = true
	}
	r.status = report.NewStatus(c.Name)
	return r, nil
}

// Run reaps until done and returns the number of processes killed.
// With Schedule set, every tick runs one single-shot reap until ctx is done
// and the kills of all runs are summed.
func (r *Reaper) Run(ctx context.Context) (int, error) {
	var srv *http.Server
	if r.cfg.Server.Listen != "" {
		tlsCfg, err := rtls.Setup(r.cfg.Server.TLS)
		if err != nil {
			return 0, err
		}
		s, err := iapi.NewServer(r.cfg.Server.Listen, "", r.status, tlsCfg)
		if err != nil {
			return 0, err
		}
		r.log.Info("status server listening", "addr", s.Addr)
		srv = s
		defer func() {
			if err := iapi.Shutdown(srv, 2*time.Second); err != nil {
				r.log.Warn("status server shutdown", "error", err)
			}
		}()
	}

	sinks := report.Multi{report.NewLog(r.log), r.status}
	if r.out != nil {
		sinks = append(sinks, report.NewConsole(r.out, logger.UseColor(r.cfg.Color, r.out)))
	}
	if r.hist != nil {
		sinks = append(sinks, report.NewHistory(r.hist, r.cfg.MaxAge, r.log))
	}
	sinks = append(sinks, r.sinks...)

	ex := killtree.New(r.dir, r.ctl, killtree.WithLogger(r.log))
	opts := reaper.Options{Name: r.cfg.Name, MaxAge: r.cfg.MaxAge, Continuous: r.cfg.Wait}
	if r.cfg.Schedule == "" {
		loop := reaper.New(opts, r.dir, ex, reaper.WithSink(sinks), reaper.WithLogger(r.log))
		return loop.Run(ctx)
	}

	// per-run done events become ticks; one done is emitted when the schedule ends
	sched := report.NewScheduled(sinks)
	loop := reaper.New(opts, r.dir, ex, reaper.WithSink(sched), reaper.WithLogger(r.log))
	sch, err := cron.NewScheduler(r.cfg.Schedule, loop.Run, cron.WithLogger(r.log))
	if err != nil {
		return 0, err
	}
	r.log.Info("reaping on schedule", "name", r.cfg.Name, "schedule", r.cfg.Schedule)
	n, err := sch.Run(ctx)
	if err != nil {
		return n, err
	}
	sched.Finish(context.WithoutCancel(ctx), report.Event{At: time.Now(), Name: r.cfg.Name})
	return n, nil
}

// Status returns the last completed cycle.
func (r *Reaper) Status() Snapshot { return r.status.Snapshot() }

// Close releases the history sink built from History.DSN.
func (r *Reaper) Close() error {
	if !r.ownsHist {
		return nil
	}
	if c, ok := r.hist.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LoadConfig reads a TOML config file, applying REAPER_* env overrides and defaults.
func LoadConfig(path string) (Config, error) {
	return cfg.Load(cfg.NewViper(), path)
}

// ParseLifespan parses whole seconds or a Go duration.
func ParseLifespan(s string) (time.Duration, error) { return cfg.ParseLifespan(s) }

// IsConfigError reports whether err came from bad user input.
func IsConfigError(err error) bool { return cfg.IsError(err) }

// IsUnavailable reports whether err means the process table could not be read.
func IsUnavailable(err error) bool { return errors.Is(err, proctable.ErrUnavailable) }

// NewHTTPServer starts the read-only status server for r, with TLS when tlsCfg selects a certificate.
func NewHTTPServer(addr, basePath string, r *Reaper, tlsCfg TLSConfig) (*http.Server, error) {
	tc, err := rtls.Setup(tlsCfg)
	if err != nil {
		return nil, err
	}
	return iapi.NewServer(addr, basePath, r.status, tc)
}

// Metrics helpers (public facade)

func RegisterMetrics(reg prometheus.Registerer) error { return metrics.Register(reg) }
func RegisterMetricsDefault() error                   { return metrics.Register(prometheus.DefaultRegisterer) }
