package steward

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const maxRecords = 10

// CycleRecord captures what happened in a single steward cycle.
type CycleRecord struct {
	Tick        uint64  `json:"tick"`
	Day         uint32  `json:"day"`
	Action      string  `json:"action"`
	Result      string  `json:"result,omitempty"`
	CrisisLevel string  `json:"crisis_level"`
	Reserve     float64 `json:"reserve_margin"`
	Treasury    float64 `json:"treasury"`
	Rationale   string  `json:"rationale,omitempty"`
}

// CycleMemory manages a ring of recent steward cycle records. An empty
// path keeps it in memory only.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`
	path    string
}

// LoadMemory reads the memory file from disk. Returns empty memory if not found.
func LoadMemory(path string) *CycleMemory {
	if path == "" {
		return &CycleMemory{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &CycleMemory{path: path}
	}
	var mem CycleMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("steward memory corrupted, starting fresh", "path", path, "error", err)
		return &CycleMemory{path: path}
	}
	mem.path = path
	return &mem
}

// Save writes the memory to disk.
func (m *CycleMemory) Save() error {
	if m.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal steward memory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("create steward memory dir: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("write steward memory: %w", err)
	}
	return nil
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// CoolingDown reports whether act was taken in the last n cycles.
func (m *CycleMemory) CoolingDown(act string, n int) bool {
	start := max(len(m.Records)-n, 0)
	for _, r := range m.Records[start:] {
		if r.Action == act {
			return true
		}
	}
	return false
}

// Summary returns one line per remembered cycle, oldest first.
func (m *CycleMemory) Summary() string {
	var b strings.Builder
	for _, r := range m.Records {
		fmt.Fprintf(&b, "- Tick %d (day %d): action=%s, crisis=%s, reserve=%.2f, treasury=%.0f",
			r.Tick, r.Day, r.Action, r.CrisisLevel, r.Reserve, r.Treasury)
		if r.Result != "" {
			fmt.Fprintf(&b, ", result=%s", r.Result)
		}
		b.WriteString("\n")
	}
	return b.String()
}
