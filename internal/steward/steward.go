package steward

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Steward runs observe → triage → decide → act cycles against one city.
type Steward struct {
	Observer *Observer
	Actor    *Actor
	Memory   *CycleMemory
}

// New wires a steward for the API at baseURL. memoryPath may be empty.
func New(baseURL, adminKey, memoryPath string) *Steward {
	return &Steward{
		Observer: NewObserver(baseURL),
		Actor:    NewActor(baseURL, adminKey),
		Memory:   LoadMemory(memoryPath),
	}
}

// RunCycle executes one cycle and remembers it. A refused action is
// recorded, not returned as an error.
func (s *Steward) RunCycle(ctx context.Context) (CycleRecord, error) {
	snap, err := s.Observer.Observe(ctx)
	if err != nil {
		return CycleRecord{}, fmt.Errorf("observe: %w", err)
	}
	health := Triage(snap)
	slog.Info("observation complete",
		"tick", snap.City.Tick,
		"population", snap.City.Stats.Population,
		"crisis", health.CrisisLevel,
		"reserve", fmt.Sprintf("%.2f", health.ReserveMargin),
		"treasury", fmt.Sprintf("%.0f", snap.City.Budget.Treasury),
		"lots", len(snap.Lots),
	)

	decision := Decide(snap, health, s.Memory)
	rec := CycleRecord{
		Tick:        snap.City.Tick,
		Day:         snap.City.Day,
		Action:      decision.Action,
		CrisisLevel: health.CrisisLevel,
		Reserve:     health.ReserveMargin,
		Treasury:    snap.City.Budget.Treasury,
		Rationale:   decision.Rationale,
	}
	slog.Info("decision made", "action", decision.Action, "rationale", decision.Rationale)

	if decision.Act != nil {
		res, err := s.Actor.Act(ctx, decision.Act)
		if err != nil {
			return rec, fmt.Errorf("act %s: %w", decision.Act.Kind(), err)
		}
		rec.Result = res.Result.String()
		slog.Info("action executed", "kind", decision.Act.Kind(), "tick", res.Tick, "result", rec.Result)
	}

	s.Memory.Record(rec)
	if err := s.Memory.Save(); err != nil {
		slog.Error("failed to save steward memory", "error", err)
	}
	return rec, nil
}

// Run executes a cycle immediately and then every interval until ctx is
// done. Failed cycles are logged and skipped.
func (s *Steward) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			slog.Error("steward cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// WaitForAPI polls the status endpoint with exponential backoff until it
// responds 200, ctx is done, or timeout passes.
func WaitForAPI(ctx context.Context, baseURL string, timeout time.Duration) error {
	backoff := 500 * time.Millisecond
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 5 * time.Second}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/status", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("city API is ready")
				return nil
			}
		}
		if time.Now().Add(backoff).After(deadline) {
			return fmt.Errorf("city API at %s not ready after %s", baseURL, timeout)
		}
		slog.Info("city API not ready, retrying...", "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
