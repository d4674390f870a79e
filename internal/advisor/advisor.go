// Package advisor turns city conditions into a short, prioritized list of
// tips. Rules run against a Snapshot the engine fills every evaluation
// interval; the panel keeps the most urgent few and forgets stale ones.
package advisor

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/propagation"
	"github.com/talgya/gridcity/internal/world"
	"github.com/talgya/gridcity/internal/zoning"
)

// Panel tuning.
const (
	EvaluateInterval = 200  // ticks between evaluations
	MessageTTL       = 2000 // ticks a message stays on the panel
	MaxMessages      = 10
)

// Type is the advisor domain a message comes from.
type Type uint8

const (
	Finance Type = iota
	Infrastructure
	Energy
	Health
	Education
	Safety
	Environment
	Housing
	Traffic
	Zoning
)

var typeNames = [...]string{"finance", "infrastructure", "energy", "health", "education", "safety", "environment", "housing", "traffic", "zoning"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("advisor(%d)", t)
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	for i, n := range typeNames {
		if n == string(b) {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("unknown advisor type %q", b)
}

// Message is one tip on the panel. Priority runs from 1 (fyi) to 5 (urgent).
type Message struct {
	Type        Type       `json:"advisor"`
	TipID       string     `json:"tip_id"`
	Message     string     `json:"message"`
	Suggestion  string     `json:"suggestion"`
	Priority    uint8      `json:"priority"`
	TickCreated uint64     `json:"tick_created"`
	Location    *world.Pos `json:"location,omitempty"`
}

// Snapshot is everything the rules look at.
type Snapshot struct {
	Treasury        float64
	MonthlyIncome   float64
	MonthlyExpenses float64
	TaxRate         float64
	Bankrupt        bool
	Loans           int

	Population          uint32
	Unemployed          uint32
	AvgHappiness        float32
	AffordabilityCrisis bool
	Demand              zoning.Demand

	PowerDeficit   bool
	BlackoutActive bool
	ReservoirLow   bool
	Flooding       bool

	Grid      *world.Grid
	Coverage  *propagation.CoverageGrid
	Pollution *propagation.PollutionGrid
	Traffic   *propagation.TrafficGrid
}

// Rule thresholds.
const (
	TreasuryCritical     = 1_000
	TreasuryLow          = 10_000
	HighTaxRate          = 0.15
	UnemploymentHigh     = 0.10
	UnhappyAverage       = 40
	HighDemand           = 0.7
	PollutionHigh        = 150
	CongestionHigh       = 0.8
	CoverageGapShare     = 0.5
	MinPopulationForGaps = 50
)

// Panel holds the live messages and the tips the player dismissed.
type Panel struct {
	Messages  []Message `json:"messages"`
	dismissed map[string]bool
}

// NewPanel returns an empty panel.
func NewPanel() *Panel {
	return &Panel{dismissed: make(map[string]bool)}
}

// Dismiss suppresses a tip until Restore. The current message is removed.
func (p *Panel) Dismiss(tip string) {
	if p.dismissed == nil {
		p.dismissed = make(map[string]bool)
	}
	p.dismissed[tip] = true
	kept := p.Messages[:0]
	for _, m := range p.Messages {
		if m.TipID != tip {
			kept = append(kept, m)
		}
	}
	p.Messages = kept
}

// Restore lets a dismissed tip appear again.
func (p *Panel) Restore(tip string) { delete(p.dismissed, tip) }

// Dismissed reports whether tip is suppressed.
func (p *Panel) Dismissed(tip string) bool { return p.dismissed[tip] }

// Push adds m unless it is dismissed. A message with the same tip id
// replaces the older one.
func (p *Panel) Push(m Message) {
	if p.dismissed[m.TipID] {
		return
	}
	for i := range p.Messages {
		if p.Messages[i].TipID == m.TipID {
			p.Messages[i] = m
			return
		}
	}
	p.Messages = append(p.Messages, m)
}

// Prune drops expired messages, sorts by priority (newest first within a
// priority, then by tip id) and keeps at most MaxMessages.
func (p *Panel) Prune(tick uint64) {
	kept := p.Messages[:0]
	for _, m := range p.Messages {
		if tick < m.TickCreated+MessageTTL {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.TickCreated != b.TickCreated {
			return a.TickCreated > b.TickCreated
		}
		return a.TipID < b.TipID
	})
	if len(kept) > MaxMessages {
		kept = kept[:MaxMessages]
	}
	p.Messages = kept
}

// Evaluate runs every rule against s, pushes what fires and prunes.
// Returns the number of messages pushed.
func (p *Panel) Evaluate(tick uint64, s Snapshot) int {
	msgs := Rules(tick, s)
	n := 0
	for _, m := range msgs {
		if p.dismissed[m.TipID] {
			continue
		}
		p.Push(m)
		n++
	}
	p.Prune(tick)
	return n
}

// Rules returns every message the snapshot triggers, in rule order.
func Rules(tick uint64, s Snapshot) []Message {
	var out []Message
	add := func(t Type, prio uint8, tip, msg, suggestion string, loc *world.Pos) {
		out = append(out, Message{Type: t, TipID: tip, Message: msg, Suggestion: suggestion, Priority: prio, TickCreated: tick, Location: loc})
	}

	// ── Finance ─────────────────────────────────────────────────────
	switch {
	case s.Bankrupt:
		add(Finance, 5, "bankruptcy", "The city is bankrupt.", "Cut services and raise taxes before taking more debt.", nil)
	case s.Treasury < TreasuryCritical:
		add(Finance, 5, "treasury_critical", fmt.Sprintf("Treasury is down to $%s.", humanize.Comma(int64(s.Treasury))), "Raise taxes or take a loan.", nil)
	case s.Treasury < TreasuryLow:
		add(Finance, 3, "treasury_low", fmt.Sprintf("Treasury is low at $%s.", humanize.Comma(int64(s.Treasury))), "Watch spending.", nil)
	}
	if s.MonthlyExpenses > s.MonthlyIncome && s.MonthlyExpenses > 0 {
		add(Finance, 3, "budget_deficit", fmt.Sprintf("Spending exceeds income by $%s a month.", humanize.Comma(int64(s.MonthlyExpenses-s.MonthlyIncome))), "Trim upkeep or grow the tax base.", nil)
	}
	if s.TaxRate > HighTaxRate {
		add(Finance, 2, "high_taxes", "Residents complain about high taxes.", "Lower the tax rate.", nil)
	}

	// ── Energy and water ────────────────────────────────────────────
	if s.BlackoutActive {
		add(Energy, 5, "rolling_blackouts", "Rolling blackouts are cutting power to the city.", "Build more generating capacity.", nil)
	} else if s.PowerDeficit {
		add(Energy, 4, "power_deficit", "Power demand exceeds supply.", "Build a power plant.", nil)
	}
	if s.Grid != nil {
		if p, ok := FindZone(s.Grid, func(c world.Cell) bool { return !c.HasPower }); ok {
			add(Energy, 4, "unpowered_zone", "Some zoned land has no power.", "Extend the grid to reach it.", &p)
		}
		if p, ok := FindZone(s.Grid, func(c world.Cell) bool { return !c.HasWater }); ok {
			add(Infrastructure, 4, "unwatered_zone", "Some zoned land has no water.", "Build a water tower or pump nearby.", &p)
		}
	}
	if s.ReservoirLow {
		add(Infrastructure, 3, "reservoir_low", "Reservoirs are running low.", "Add water sources or conserve water.", nil)
	}

	// ── People ──────────────────────────────────────────────────────
	if s.Population > 0 {
		if rate := float32(s.Unemployed) / float32(s.Population); rate > UnemploymentHigh {
			add(Zoning, 3, "unemployment_high", fmt.Sprintf("%.0f%% of residents are out of work.", rate*100), "Zone commercial, industrial or office land.", nil)
		}
		if s.AvgHappiness < UnhappyAverage {
			add(Health, 3, "unhappy_citizens", "Citizens are unhappy.", "Improve services and reduce pollution.", nil)
		}
	}
	if s.AffordabilityCrisis {
		add(Housing, 4, "housing_crisis", "Housing has become unaffordable.", "Zone more residential land.", nil)
	} else if s.Demand.Residential > HighDemand {
		add(Housing, 2, "housing_demand", "People want to move here.", "Zone more residential land.", nil)
	}
	if max(s.Demand.Commercial, s.Demand.Industrial, s.Demand.Office) > HighDemand {
		add(Zoning, 2, "jobs_demand", "Businesses are looking for space.", "Zone commercial, industrial or office land.", nil)
	}

	// ── Coverage ────────────────────────────────────────────────────
	if s.Grid != nil && s.Coverage != nil && s.Population >= MinPopulationForGaps {
		gaps := []struct {
			bit  component.CoverageBit
			t    Type
			prio uint8
			tip  string
			what string
		}{
			{component.CoverHealth, Health, 3, "health_coverage_low", "health care"},
			{component.CoverEducation, Education, 2, "education_coverage_low", "schools"},
			{component.CoverPolice, Safety, 3, "police_coverage_low", "police"},
			{component.CoverFire, Safety, 3, "fire_coverage_low", "fire protection"},
		}
		for _, gap := range gaps {
			if share := UncoveredShare(s.Grid, s.Coverage, gap.bit); share > CoverageGapShare {
				add(gap.t, gap.prio, gap.tip, fmt.Sprintf("%.0f%% of homes lack %s.", share*100, gap.what), "Build more "+gap.what+" facilities.", nil)
			}
		}
	}

	// ── Environment and traffic ─────────────────────────────────────
	if s.Flooding {
		add(Environment, 4, "flooding", "Parts of the city are under water.", "Build flood protection.", nil)
	}
	if s.Pollution != nil {
		if p, v := WorstCell(&s.Pollution.Field); v >= PollutionHigh {
			add(Environment, 3, "pollution_high", "Air pollution is severe.", "Plant trees or move industry away from homes.", &p)
		}
	}
	if s.Grid != nil && s.Traffic != nil {
		if p, c, ok := WorstCongestion(s.Grid, s.Traffic); ok && c >= CongestionHigh {
			add(Traffic, 3, "traffic_jam", "Roads are jammed.", "Upgrade busy roads or add transit.", &p)
		}
	}
	return out
}

// FindZone returns the first zoned cell in row-major order matching pred.
func FindZone(g *world.Grid, pred func(world.Cell) bool) (world.Pos, bool) {
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := g.Get(x, y)
			if c.Zone != world.ZoneNone && pred(c) {
				return world.Pos{X: x, Y: y}, true
			}
		}
	}
	return world.Pos{}, false
}

// WorstCell returns the first cell holding the field's maximum.
func WorstCell(f *propagation.Field[uint8]) (world.Pos, uint8) {
	var best world.Pos
	var worst uint8
	for i, v := range f.Data {
		if v > worst {
			worst = v
			best = world.Pos{X: i % f.Width, Y: i / f.Width}
		}
	}
	return best, worst
}

// WorstCongestion returns the most congested road cell.
func WorstCongestion(g *world.Grid, t *propagation.TrafficGrid) (world.Pos, float32, bool) {
	var best world.Pos
	var worst float32
	found := false
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if c := t.Congestion(g, x, y); c > worst {
				best, worst, found = world.Pos{X: x, Y: y}, c, true
			}
		}
	}
	return best, worst, found
}

// UncoveredShare is the fraction of residential cells outside bit's reach.
func UncoveredShare(g *world.Grid, cov *propagation.CoverageGrid, bit component.CoverageBit) float32 {
	var homes, uncovered int
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if !g.Get(x, y).Zone.IsResidential() {
				continue
			}
			homes++
			if !cov.Has(x, y, bit) {
				uncovered++
			}
		}
	}
	if homes == 0 {
		return 0
	}
	return float32(uncovered) / float32(homes)
}

// ── Persistence ─────────────────────────────────────────────────────

// SaveKey implements save.Saveable.
func (p *Panel) SaveKey() string { return "dismissed_advisor_tips" }

// SaveBytes stores the sorted dismissed tip ids; nothing when none are.
func (p *Panel) SaveBytes() ([]byte, bool) {
	if len(p.dismissed) == 0 {
		return nil, false
	}
	tips := make([]string, 0, len(p.dismissed))
	for t := range p.dismissed {
		tips = append(tips, t)
	}
	sort.Strings(tips)
	b, err := json.Marshal(tips)
	if err != nil {
		return nil, false
	}
	return b, true
}

// LoadBytes restores the dismissed set. Live messages are not saved.
func (p *Panel) LoadBytes(b []byte) error {
	var tips []string
	if err := json.Unmarshal(b, &tips); err != nil {
		return fmt.Errorf("decode dismissed tips: %w", err)
	}
	p.dismissed = make(map[string]bool, len(tips))
	for _, t := range tips {
		p.dismissed[t] = true
	}
	return nil
}
