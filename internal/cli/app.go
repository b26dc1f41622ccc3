package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/checkpoint"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/config"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/engine"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/eventlog"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/executor"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/gate"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/planner"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/relay"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/store"
)

// app wires every component over one data directory:
//
//	<data-dir>/sportdesk.db   relational store (sessions, plans, gates)
//	<data-dir>/events/        per-session JSONL event logs
//	<data-dir>/checkpoints/   per-session checkpoint files
type app struct {
	cfg         config.Config
	store       *store.Store
	log         *eventlog.Log
	checkpoints *checkpoint.Store
	gates       *gate.Manager
	relay       *relay.Relay
	engine      *engine.Engine
	registry    *executor.Registry
}

func newApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "sportdesk.db"))
	if err != nil {
		return nil, err
	}
	log, err := eventlog.New(filepath.Join(cfg.DataDir, "events"))
	if err != nil {
		st.Close()
		return nil, err
	}
	checkpoints, err := checkpoint.NewStore(filepath.Join(cfg.DataDir, "checkpoints"))
	if err != nil {
		st.Close()
		return nil, err
	}
	gates, err := gate.NewManager(st, cfg.GateTTL)
	if err != nil {
		st.Close()
		return nil, err
	}
	rel, err := relay.New(log, cfg.RelayBuffer)
	if err != nil {
		st.Close()
		return nil, err
	}

	registry, err := buildRegistry(viper.GetString("script"))
	if err != nil {
		st.Close()
		return nil, err
	}
	pl, err := planner.NewRuleBased(planner.Capabilities{
		Retrieve: "feed.search",
		Extract:  "stats.extract",
		Compose:  "desk.compose",
		Persist:  "desk.publish",
		Answer:   "desk.answer",
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	eng, err := engine.New(st, gates, log, checkpoints, pl, registry, engine.Options{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		StepTimeout: cfg.StepTimeout,
		Logger:      logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		store:       st,
		log:         log,
		checkpoints: checkpoints,
		gates:       gates,
		relay:       rel,
		engine:      eng,
		registry:    registry,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Error("close store", "error", err)
	}
}

// buildRegistry registers either the scripted executor set from a YAML file
// or the built-in offline capabilities.
func buildRegistry(scriptPath string) (*executor.Registry, error) {
	registry := executor.NewRegistry()
	if scriptPath != "" {
		scripted, err := executor.LoadScripted(scriptPath)
		if err != nil {
			return nil, err
		}
		if err := scripted.Register(registry); err != nil {
			return nil, err
		}
		return registry, nil
	}
	if err := registerBuiltins(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
