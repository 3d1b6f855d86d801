package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"reminder_engine/internal/infra/lock"
	"reminder_engine/internal/infra/logger"
	"reminder_engine/internal/infra/metrics"
	"reminder_engine/internal/infra/scheduler"
	"reminder_engine/internal/infra/watch"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reminder engine",
	Long:  "Start the tick scheduler and sweep reminder schedules until SIGINT or SIGTERM.",
	RunE:  runEngine,
}

func runEngine(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	log := logger.Get()
	log.WithField("instance_id", cfg.InstanceID).Info("Reminder engine starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	eng, err := buildEngine(ctx, cfg, m, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.WithError(err).Warn("Error while closing connections")
		}
	}()

	opts := []scheduler.Option{scheduler.WithRecorder(m)}
	if cfg.TickClaimEnabled {
		opts = append(opts, scheduler.WithClaimer(lock.NewRedisTickClaimer(eng.redis, cfg.InstanceID, cfg.TickClaimTTL)))
		log.Info("Tick claims enabled, replicas share the cadence")
	}
	sched := scheduler.NewTickScheduler(scheduler.Config{
		Spec:         cfg.TickSpec,
		Window:       cfg.TickWindow,
		SweepTimeout: cfg.SweepTimeout,
		Workers:      cfg.SweepWorkers,
	}, eng.sweeper, logger.Component("scheduler"), opts...)

	var ready atomic.Bool
	var srv *http.Server
	if cfg.MetricsBind != "" {
		srv = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           metrics.NewRouter(reg, ready.Load),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
		log.WithField("addr", cfg.MetricsBind).Info("Metrics server listening")
	}

	if path := eng.renderer.Path(); path != "" {
		go watchFile(ctx, path, "templates", eng.renderer.Reload)
	}
	if eng.memoryStore != nil {
		go watchFile(ctx, cfg.SchedulesFile, "schedules", eng.memoryStore.Reload)
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	ready.Store(true)
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Warn("Could not notify systemd")
	} else if ok {
		log.Debug("Notified systemd that the engine is ready")
	}
	log.Info("Reminder engine running.")

	<-ctx.Done()
	log.Info("Shutting down reminder engine...")
	ready.Store(false)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("In-flight sweep abandoned")
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Metrics server did not shut down cleanly")
		}
	}
	log.Info("Reminder engine shut down gracefully.")
	return nil
}

func watchFile(ctx context.Context, path, component string, reload func() error) {
	if err := watch.File(ctx, path, logger.Component(component), reload); err != nil {
		logger.Get().WithError(err).WithField("path", path).Warn("Hot reload disabled")
	}
}
