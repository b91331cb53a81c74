package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alertd/internal/config"
	"alertd/internal/control"
	"alertd/internal/eventbus"
	"alertd/internal/feed"
	"alertd/internal/metrics"
	"alertd/internal/notifier"
	"alertd/internal/notifier/sink"
	"alertd/internal/policy"
	"alertd/internal/poller"
	rtsup "alertd/internal/runtime/supervisor"
	"alertd/internal/server"
	"alertd/internal/storage"
	logx "alertd/pkg/logx"
)

// App wires the poller, the notification pipeline and the local server
// around one settings file.
type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	sinkMu sync.Mutex
	sink   notifier.Sink

	feed    *feed.Client
	notif   *notifier.Service
	disp    *policy.Dispatcher
	poller  *poller.Service
	metrics *metrics.Metrics
	ctl     *control.Controller
	srv     *server.Service
}

// New loads (or creates) the settings file and builds every component.
// Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, notes, err := cfgm.LoadOrInit()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	for _, n := range notes {
		log.Warn("config repaired", logx.String("note", n))
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	store, err := storage.Open(storage.ConfigFrom(cfg.Storage), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("delivery history enabled", logx.String("driver", cfg.Storage.Driver))
	}

	snk, err := sink.New(cfg.Sink, log)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	notifSvc := notifier.New(notifierConfig(cfg), snk, log.With(logx.String("comp", "notifier")), bus, store)
	fc := feed.New(log.With(logx.String("comp", "feed")))

	st := policy.NewState()
	disp := policy.NewDispatcher(notifSvc, st, log.With(logx.String("comp", "dispatch")), bus)
	ps := poller.New(cfg, fc, disp, st, log.With(logx.String("comp", "poller")), bus)

	m := metrics.New()
	ctl := control.New(cfgm, ps, fc, notifSvc, log.With(logx.String("comp", "control")))
	ctl.SetSinkName(notifSvc.SinkName)

	srv := server.New(serverConfig(cfg), server.Deps{Ctl: ctl, Metrics: m}, log.With(logx.String("comp", "server")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sink:    snk,
		feed:    fc,
		notif:   notifSvc,
		disp:    disp,
		poller:  ps,
		metrics: m,
		ctl:     ctl,
		srv:     srv,
	}, nil
}

// Controller exposes the configuration surface in-process.
func (a *App) Controller() *control.Controller { return a.ctl }

// ServerAddr returns the bound address of the local server, or "".
func (a *App) ServerAddr() string { return a.srv.Addr() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()
	cfg := a.cfgm.Get()

	a.notif.Start(runCtx)

	a.sup.Go0("metrics.observe", func(c context.Context) {
		a.metrics.Observe(c, a.bus)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.poller.Start(runCtx)
	a.srv.Reconfigure(runCtx, serverConfig(cfg))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	poll := cfg.Poll
	a.sup.Go0("startup.probe", func(c context.Context) {
		a.probeOnce(c, poll)
	})

	sdNotify(a.log, "READY=1")
	a.log.Info("alertd started",
		logx.String("config", a.cfgm.Path()),
		logx.String("sink", a.notif.SinkName()),
		logx.Bool("server", cfg.Server.Enabled),
	)
	return nil
}

// probeOnce logs the connectivity state once at boot.
func (a *App) probeOnce(ctx context.Context, poll config.PollConfig) {
	if !poll.Enabled {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, feed.DefaultTimeout)
	defer cancel()
	pr := a.feed.Probe(pctx, poll)
	if pr.Success {
		a.log.Info("api reachable", logx.Int("pending", pr.Count))
		return
	}
	if ctx.Err() != nil {
		return
	}
	a.log.Warn("api check failed", logx.String("message", pr.Message), logx.String("kind", string(pr.Kind)))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, "STOPPING=1")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		// WithTimeout keeps the caller's deadline when it is earlier.
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("poller", 2*time.Second, func(c context.Context) error { a.poller.Stop(c); return nil })
	step("server", 2*time.Second, func(c context.Context) error { a.srv.Stop(c); return nil })
	step("dispatch", 1*time.Second, func(context.Context) error { a.disp.CancelPending(); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("sink", 1*time.Second, func(context.Context) error {
		a.sinkMu.Lock()
		s := a.sink
		a.sinkMu.Unlock()
		return sink.Close(s)
	})
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("config.save", 1*time.Second, func(context.Context) error {
		if cfg := a.cfgm.Get(); cfg != nil {
			return a.cfgm.Save(cfg)
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
