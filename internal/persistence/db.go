// Package persistence stores save slots, the event journal and replay
// files in SQLite.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gridcity/internal/engine"
)

// ErrSlotNotFound is returned when no save slot has the requested id.
var ErrSlotNotFound = errors.New("save slot not found")

// DB wraps a SQLite connection for city persistence.
type DB struct {
	conn *sqlx.DB
}

// Slot describes one stored save without its payload.
type Slot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tick      uint64    `json:"tick"`
	Seed      uint64    `json:"seed"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type slotRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Tick      int64  `db:"tick"`
	Seed      int64  `db:"seed"`
	Size      int    `db:"size"`
	CreatedAt int64  `db:"created_at"` // unix nanoseconds
	Data      []byte `db:"data"`
}

func (r slotRow) slot() Slot {
	return Slot{
		ID:        r.ID,
		Name:      r.Name,
		Tick:      uint64(r.Tick),
		Seed:      uint64(r.Seed),
		Size:      r.Size,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS slots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tick INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		data BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS city_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_slots_created ON slots(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// ── Save slots ──────────────────────────────────────────────────────

// SaveSlot stores an encoded city under a fresh slot id and returns it.
func (db *DB) SaveSlot(name string, tick, seed uint64, data []byte) (Slot, error) {
	slot := Slot{
		ID:        uuid.NewString(),
		Name:      name,
		Tick:      tick,
		Seed:      seed,
		Size:      len(data),
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.conn.Exec(
		`INSERT INTO slots (id, name, tick, seed, size, created_at, data) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		slot.ID, slot.Name, int64(slot.Tick), int64(slot.Seed), slot.Size, slot.CreatedAt.UnixNano(), data,
	)
	if err != nil {
		return Slot{}, fmt.Errorf("insert slot %s: %w", name, err)
	}
	slog.Info("city saved", "slot", slot.ID, "name", name, "tick", tick, "size", humanize.Bytes(uint64(len(data))))
	return slot, nil
}

// SaveCity encodes sim and stores it as a slot.
func (db *DB) SaveCity(name string, sim *engine.Simulation) (Slot, error) {
	return db.SaveSlot(name, sim.Clock.Tick, sim.Seed, sim.Save())
}

// LoadSlot returns a slot's metadata and payload.
func (db *DB) LoadSlot(id string) (Slot, []byte, error) {
	var row slotRow
	err := db.conn.Get(&row, `SELECT id, name, tick, seed, size, created_at, data FROM slots WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Slot{}, nil, fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}
	if err != nil {
		return Slot{}, nil, fmt.Errorf("load slot %s: %w", id, err)
	}
	return row.slot(), row.Data, nil
}

// LatestSlot returns the most recently written slot.
func (db *DB) LatestSlot() (Slot, []byte, error) {
	var id string
	err := db.conn.Get(&id, `SELECT id FROM slots ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Slot{}, nil, ErrSlotNotFound
	}
	if err != nil {
		return Slot{}, nil, fmt.Errorf("latest slot: %w", err)
	}
	return db.LoadSlot(id)
}

// ListSlots returns every slot, newest first.
func (db *DB) ListSlots() ([]Slot, error) {
	var rows []slotRow
	err := db.conn.Select(&rows,
		`SELECT id, name, tick, seed, size, created_at FROM slots ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	slots := make([]Slot, len(rows))
	for i, r := range rows {
		slots[i] = r.slot()
	}
	return slots, nil
}

// DeleteSlot removes a slot.
func (db *DB) DeleteSlot(id string) error {
	res, err := db.conn.Exec(`DELETE FROM slots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}
	return nil
}

// PruneSlots deletes all but the newest keep slots named name and reports
// how many went.
func (db *DB) PruneSlots(name string, keep int) (int, error) {
	res, err := db.conn.Exec(`DELETE FROM slots WHERE name = ? AND id NOT IN (
		SELECT id FROM slots WHERE name = ? ORDER BY created_at DESC, rowid DESC LIMIT ?)`,
		name, name, keep)
	if err != nil {
		return 0, fmt.Errorf("prune slots %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ── Events ──────────────────────────────────────────────────────────

// AppendEvents appends journal events to the database.
func (db *DB) AppendEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO events (seq, tick, description, category) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(e.Seq, e.Tick, e.Description, e.Category); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT seq, tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// ── Metadata ────────────────────────────────────────────────────────

// SaveMeta stores a key-value pair in city metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO city_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key returns "" and no
// error.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM city_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// KeepAutosaves is how many autosave slots survive pruning.
const KeepAutosaves = 3

// Autosave stores a slot named "autosave", prunes older autosaves, appends the journal events
// newer than the last autosave, and records the tick it reached.
func (db *DB) Autosave(sim *engine.Simulation) error {
	last, err := db.GetMeta("last_event_seq")
	if err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	var seq uint64
	if last != "" {
		if _, err := fmt.Sscan(last, &seq); err != nil {
			return fmt.Errorf("autosave: bad last_event_seq %q: %w", last, err)
		}
	}
	if _, err := db.SaveCity("autosave", sim); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	if _, err := db.PruneSlots("autosave", KeepAutosaves); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	if err := db.AppendEvents(sim.Journal.Since(seq)); err != nil {
		return fmt.Errorf("autosave events: %w", err)
	}
	if err := db.SaveMeta("last_event_seq", fmt.Sprintf("%d", sim.Journal.LastSeq())); err != nil {
		return fmt.Errorf("autosave meta: %w", err)
	}
	if err := db.SaveMeta("last_tick", fmt.Sprintf("%d", sim.Clock.Tick)); err != nil {
		return fmt.Errorf("autosave meta: %w", err)
	}
	return nil
}
