package main

import (
	"context"
	"fmt"

	"github.com/mudler/LocalCircle/core/action"
	"github.com/mudler/LocalCircle/core/catchup"
	"github.com/mudler/LocalCircle/core/engine"
	"github.com/mudler/LocalCircle/core/events"
	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/scheduler"
	"github.com/mudler/LocalCircle/core/sse"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/store/mongo"
	"github.com/mudler/LocalCircle/core/store/pebble"
	"github.com/mudler/LocalCircle/pkg/config"
	"github.com/mudler/LocalCircle/pkg/llm"
	"github.com/mudler/xlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// runtime holds everything a command needs, wired from the configuration.
type runtime struct {
	cfg         config.Config
	repo        *store.Repository
	engine      *engine.Engine
	registry    *prometheus.Registry
	broadcaster *sse.Broadcaster
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	gen, err := newGenerator(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	repo := store.NewRepository(backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	broadcaster := sse.NewBroadcaster(100)

	l := lock.New(
		lock.WithPollInterval(cfg.Lock.PollInterval),
		lock.WithTimeout(cfg.Lock.Timeout),
		lock.WithMetrics(lock.NewMetrics(reg)),
	)
	eng, err := engine.New(repo, gen,
		engine.WithLock(l),
		engine.WithNotifier(broadcaster),
		engine.WithPacer(action.NewRandomPacer(cfg.Pacing.Min, cfg.Pacing.Max)),
		engine.WithTemperature(cfg.Model.Temperature),
		engine.WithMaxHistory(cfg.History.MaxMessages),
		engine.WithEventOptions(
			events.WithCooldown(cfg.Intel.Cooldown),
			events.WithAffinityThreshold(cfg.Intel.AffinityThreshold),
			events.WithScan(cfg.Intel.ScanRange, cfg.Intel.MaxHits, cfg.Intel.SnippetRadius),
		),
		engine.WithCatchUpOptions(
			catchup.WithThreshold(cfg.CatchUp.Threshold),
			catchup.WithRetention(cfg.CatchUp.SummaryRetention),
			catchup.WithMaxEvents(cfg.CatchUp.MaxEvents),
		),
	)
	if err != nil {
		repo.Close()
		return nil, err
	}

	xlog.Info("Runtime ready", "model", cfg.Model.Model, "provider", cfg.Model.Provider, "storage", cfg.Storage.Driver)
	return &runtime{
		cfg:         cfg,
		repo:        repo,
		engine:      eng,
		registry:    reg,
		broadcaster: broadcaster,
	}, nil
}

func (r *runtime) scheduler() (*scheduler.Scheduler, error) {
	return scheduler.NewScheduler(r.repo, r.engine, r.cfg.Tick.Schedule,
		scheduler.WithWakeProbabilities(r.cfg.Tick.PrivateWakeProbability, r.cfg.Tick.GroupWakeProbability),
		scheduler.WithMaxPrivateWakes(r.cfg.Tick.MaxPrivateWakes),
		scheduler.WithBlockCooldown(r.cfg.Tick.BlockCooldown),
		scheduler.WithMetrics(scheduler.NewMetrics(r.registry)),
	)
}

func (r *runtime) Close() {
	if err := r.repo.Close(); err != nil {
		xlog.Error("Closing storage", "error", err)
	}
}

func newGenerator(ctx context.Context, m config.Model) (llm.Generator, error) {
	switch m.Provider {
	case "gemini":
		return llm.NewGeminiGenerator(ctx, m.APIKey, m.Model)
	default:
		client := llm.NewClient(m.APIKey, m.APIURL, m.Timeout.String())
		return llm.NewOpenAIGenerator(client, m.Model), nil
	}
}

func openBackend(ctx context.Context, s config.Storage) (store.Backend, error) {
	switch s.Driver {
	case "pebble":
		return pebble.Open(s.Path)
	case "mongo":
		return mongo.Connect(ctx, s.URI, s.Database)
	case "memory":
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", s.Driver)
}
