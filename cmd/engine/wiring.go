package main

import (
	"context"
	"errors"
	"fmt"

	"reminder_engine/internal/app"
	"reminder_engine/internal/domain/reminder"
	"reminder_engine/internal/infra/bus"
	"reminder_engine/internal/infra/config"
	idb "reminder_engine/internal/infra/database"
	"reminder_engine/internal/infra/lock"
	"reminder_engine/internal/infra/logger"
	"reminder_engine/internal/infra/telegram"
	"reminder_engine/internal/infra/templates"

	"github.com/redis/go-redis/v9"
)

// engine holds the components shared by the run and sweep commands.
type engine struct {
	store       reminder.Store
	memoryStore *idb.MemoryScheduleStore // nil for postgres
	renderer    *templates.Renderer
	sweeper     *app.SweepServiceImpl
	redis       *redis.Client
	closers     []func() error
}

func buildEngine(ctx context.Context, cfg *config.AppConfig, observer app.Observer, dryRun bool) (_ *engine, err error) {
	log := logger.Get()
	e := &engine{}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("could not connect to database: %w", err)
		}
		e.closers = append(e.closers, db.Close)
		e.store = idb.NewPostgresScheduleStore(db)
		log.Info("Database connection established successfully.")
	case config.StoreMemory:
		mem, err := idb.LoadMemoryScheduleStore(cfg.SchedulesFile)
		if err != nil {
			return nil, fmt.Errorf("could not load schedules: %w", err)
		}
		e.store, e.memoryStore = mem, mem
		log.WithField("schedules", mem.Len()).Info("In-memory schedule store loaded.")
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	if e.renderer, err = templates.NewRenderer(cfg.TemplateFile, cfg.ReminderSubject, logger.Component("templates")); err != nil {
		return nil, fmt.Errorf("could not load reminder template: %w", err)
	}

	if cfg.BusBackend == config.BusRedis || cfg.TickClaimEnabled {
		client, err := lock.NewRedisClient(ctx, lock.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, err
		}
		e.redis = client
		e.closers = append(e.closers, client.Close)
	}

	publisher, err := e.publisher(cfg, dryRun)
	if err != nil {
		return nil, err
	}

	normalizer := reminder.NewNormalizer(cfg.NormalizerCacheSize)
	emitter := app.NewEmitter(publisher, cfg.BusTopic, logger.Component("emitter"))
	e.sweeper = app.NewSweepServiceImpl(e.store, normalizer, e.renderer, emitter, observer, logger.Component("sweep"))
	return e, nil
}

func (e *engine) publisher(cfg *config.AppConfig, dryRun bool) (app.Publisher, error) {
	if dryRun {
		return bus.NewLogPublisher(logger.Component("bus")), nil
	}
	switch cfg.BusBackend {
	case config.BusNATS:
		natsCfg := bus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Name = "reminder-engine-" + cfg.InstanceID
		natsCfg.JetStream = cfg.NATSJetStream
		p, err := bus.NewNATSPublisher(natsCfg, logger.Component("bus"))
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, p.Close)
		return p, nil
	case config.BusRedis:
		return bus.NewRedisPublisher(e.redis, logger.Component("bus")), nil
	case config.BusTelegram:
		bot, err := telegram.NewBot(cfg.TelegramToken)
		if err != nil {
			return nil, err
		}
		return telegram.NewPublisher(telegram.NewTelebotAdapter(bot), cfg.TelegramChatID, logger.Component("bus")), nil
	case config.BusLog:
		return bus.NewLogPublisher(logger.Component("bus")), nil
	default:
		return nil, fmt.Errorf("unsupported bus backend %q", cfg.BusBackend)
	}
}

// Close releases connections in reverse order of creation.
func (e *engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}
