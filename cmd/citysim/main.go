// Command citysim runs the gridcity simulation: either a persistent city
// ticking at a fixed rate behind the HTTP API, or, with --agent, a headless
// session speaking newline-delimited JSON on stdin and stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/talgya/gridcity/internal/agent"
	"github.com/talgya/gridcity/internal/api"
	"github.com/talgya/gridcity/internal/config"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/logging"
	"github.com/talgya/gridcity/internal/observability"
	"github.com/talgya/gridcity/internal/persistence"
)

func main() {
	fs := flag.NewFlagSet("citysim", flag.ExitOnError)
	agentMode := fs.Bool("agent", false, "run a headless agent session on stdin/stdout")
	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "citysim:", err)
		os.Exit(2)
	}

	logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Writer:      os.Stderr,
	})
	if err != nil {
		slog.Error("failed to start tracing", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	if *agentMode {
		err = runAgent(ctx, cfg)
	} else {
		err = runCity(ctx, cfg)
	}
	if err != nil {
		slog.Error("citysim failed", "error", err)
		observability.ShutdownWithTimeout(context.Background(), shutdownTracing)
		os.Exit(1)
	}
}

// runAgent plays one fresh city for the agent on the other end of stdio.
// Nothing is persisted unless the agent asks for a replay.
func runAgent(ctx context.Context, cfg config.Config) error {
	sim, err := engine.NewGame(cfg.Options())
	if err != nil {
		return fmt.Errorf("new game: %w", err)
	}
	sess := agent.NewSession(sim, agent.Options{})
	slog.Info("agent session starting", "session", sess.ID, "seed", cfg.Seed, "width", cfg.Width, "height", cfg.Height)
	return sess.Run(ctx, os.Stdin, os.Stdout)
}

// runCity restores the newest save (or founds a new city), serves the API
// and ticks until a signal arrives, then saves once more.
func runCity(ctx context.Context, cfg config.Config) error {
	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Load or Found the City ────────────────────────────────────────
	sim, resumed, err := loadOrFound(db, cfg)
	if err != nil {
		return err
	}

	metrics, err := observability.NewSimCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	eng := engine.NewEngine(sim, engine.EngineOptions{TickRate: cfg.TickRate, Observer: metrics})
	eng.OnTick(metrics.Record)

	// Auto-save every AutosaveDays sim-days.
	if cfg.AutosaveDays > 0 {
		every := uint32(cfg.AutosaveDays)
		eng.OnTick(func(sim *engine.Simulation) {
			if !sim.Clock.NewDay() || sim.Clock.Day()%every != 0 {
				return
			}
			if err := db.Autosave(sim); err != nil {
				slog.Error("autosave failed", "error", err)
				return
			}
			slog.Info("autosaved", "tick", sim.Clock.Tick, "day", sim.Clock.Day())
		})
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("GRIDCITY_ADMIN_KEY not set; admin POST endpoints will be disabled")
	}
	hub := api.NewHub()
	go hub.Run(ctx)

	apiServer := &api.Server{
		Eng:      eng,
		DB:       db,
		Metrics:  metrics,
		Layers:   agent.DefaultLayers(),
		Hub:      hub,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
	}
	eng.OnTick(apiServer.StreamHook(cfg.StreamEvery))
	httpSrv := apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	var banner engine.Observation
	eng.Do(func(sim *engine.Simulation) { banner = sim.Observe() })
	fmt.Printf("\ngridcity is alive: %d×%d cells, %s residents, treasury $%s.\n",
		banner.Width, banner.Height, humanize.Comma(int64(banner.Stats.Population)),
		humanize.Comma(int64(banner.Budget.Treasury)))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	if resumed {
		fmt.Printf("Resuming from tick %d (%s)\n", banner.Tick, banner.Time)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	runErr := eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown failed", "error", err)
	}

	// Final save on shutdown.
	slog.Info("final save...")
	var saveErr error
	eng.Do(func(sim *engine.Simulation) { saveErr = db.Autosave(sim) })
	if saveErr != nil {
		slog.Error("final save failed", "error", saveErr)
	} else {
		fmt.Println("Simulation stopped. City saved.")
	}
	return runErr
}

// loadOrFound restores the newest save slot, or founds a city from cfg
// when there is none.
func loadOrFound(db *persistence.DB, cfg config.Config) (*engine.Simulation, bool, error) {
	slot, data, err := db.LatestSlot()
	switch {
	case errors.Is(err, persistence.ErrSlotNotFound):
		slog.Info("no saved city found, founding a new one...", "seed", cfg.Seed)
		sim, err := engine.NewGame(cfg.Options())
		if err != nil {
			return nil, false, fmt.Errorf("new game: %w", err)
		}
		if _, err := db.SaveCity("founding", sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
		return sim, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("find latest save: %w", err)
	}

	slog.Info("found saved city, loading...", "slot", slot.Name, "tick", slot.Tick, "size", humanize.Bytes(uint64(slot.Size)))
	sim, err := engine.Restore(data, cfg.Options())
	if err != nil {
		return nil, false, fmt.Errorf("restore slot %s: %w", slot.ID, err)
	}
	return sim, true, nil
}
