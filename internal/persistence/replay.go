package persistence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/engine"
)

// ErrReplayMismatch is returned when a replayed city does not hash to the
// value recorded with the replay.
var ErrReplayMismatch = errors.New("replay does not reproduce the recorded city")

// Replay is everything needed to rebuild a city deterministically: the
// founding options, the action log and the tick the recording ended at.
type Replay struct {
	Options   engine.Options  `json:"options"`
	Records   []action.Record `json:"records"`
	FinalTick uint64          `json:"final_tick"`
	// Checksum is the hex SHA-256 of the city's save at FinalTick.
	Checksum string `json:"checksum"`
}

// RecordReplay captures sim's replay.
func RecordReplay(sim *engine.Simulation) Replay {
	return Replay{
		Options:   sim.Options(),
		Records:   append([]action.Record(nil), sim.ActionLog...),
		FinalTick: sim.Clock.Tick,
		Checksum:  Checksum(sim.Save()),
	}
}

// Checksum hashes an encoded save.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Rebuild replays r from a new game and checks the result against the
// recorded checksum.
func (r Replay) Rebuild() (*engine.Simulation, error) {
	sim, err := engine.Replay(r.Options, r.Records, r.FinalTick)
	if err != nil {
		return nil, err
	}
	if r.Checksum != "" {
		if got := Checksum(sim.Save()); got != r.Checksum {
			return nil, fmt.Errorf("%w: checksum %s, recorded %s", ErrReplayMismatch, got[:12], short(r.Checksum))
		}
	}
	return sim, nil
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// WriteReplay writes r to a standalone SQLite file at path, replacing any
// existing file.
func WriteReplay(path string, r Replay) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace replay %s: %w", path, err)
	}
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open replay: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Exec(`
	CREATE TABLE replay_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE replay_actions (
		seq INTEGER PRIMARY KEY,
		tick INTEGER NOT NULL,
		action TEXT NOT NULL,
		result TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("create replay schema: %w", err)
	}

	opts, err := json.Marshal(r.Options)
	if err != nil {
		return fmt.Errorf("encode replay options: %w", err)
	}

	tx, err := conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	meta := map[string]string{
		"options":    string(opts),
		"final_tick": fmt.Sprintf("%d", r.FinalTick),
		"checksum":   r.Checksum,
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO replay_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("write replay meta %s: %w", k, err)
		}
	}

	stmt, err := tx.Preparex(`INSERT INTO replay_actions (seq, tick, action, result) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range r.Records {
		a, err := json.Marshal(rec.Action)
		if err != nil {
			return fmt.Errorf("encode replay action %d: %w", i, err)
		}
		res, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("encode replay result %d: %w", i, err)
		}
		if _, err := stmt.Exec(i, rec.Tick, string(a), string(res)); err != nil {
			return fmt.Errorf("write replay action %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("replay written", "path", path, "actions", len(r.Records), "final_tick", r.FinalTick)
	return nil
}

// ReadReplay loads a replay file written by WriteReplay.
func ReadReplay(path string) (Replay, error) {
	if _, err := os.Stat(path); err != nil {
		return Replay{}, fmt.Errorf("read replay: %w", err)
	}
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return Replay{}, fmt.Errorf("open replay: %w", err)
	}
	defer conn.Close()

	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := conn.Select(&rows, `SELECT key, value FROM replay_meta`); err != nil {
		return Replay{}, fmt.Errorf("read replay meta: %w", err)
	}
	meta := make(map[string]string, len(rows))
	for _, row := range rows {
		meta[row.Key] = row.Value
	}

	var r Replay
	if err := json.Unmarshal([]byte(meta["options"]), &r.Options); err != nil {
		return Replay{}, fmt.Errorf("decode replay options: %w", err)
	}
	if _, err := fmt.Sscan(meta["final_tick"], &r.FinalTick); err != nil {
		return Replay{}, fmt.Errorf("decode replay final tick: %w", err)
	}
	r.Checksum = meta["checksum"]

	var actions []struct {
		Seq    int    `db:"seq"`
		Tick   uint64 `db:"tick"`
		Action string `db:"action"`
		Result string `db:"result"`
	}
	if err := conn.Select(&actions, `SELECT seq, tick, action, result FROM replay_actions ORDER BY seq`); err != nil {
		return Replay{}, fmt.Errorf("read replay actions: %w", err)
	}
	r.Records = make([]action.Record, 0, len(actions))
	for _, a := range actions {
		rec := action.Record{Tick: a.Tick}
		if err := json.Unmarshal([]byte(a.Action), &rec.Action); err != nil {
			return Replay{}, fmt.Errorf("replay action %d: %w", a.Seq, err)
		}
		if err := json.Unmarshal([]byte(a.Result), &rec.Result); err != nil {
			return Replay{}, fmt.Errorf("replay result %d: %w", a.Seq, err)
		}
		r.Records = append(r.Records, rec)
	}
	return r, nil
}
