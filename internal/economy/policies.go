package economy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Policy is a city-wide ordinance the player can toggle.
type Policy uint8

const (
	SmallBusinessRelief Policy = iota
	IndustrialTaxBreak
	FreePublicTransport
	HighRiseBan
	FloodDefense
	PlasticBagBan
	DepositReturnProgram
	CompostingMandate
	WTEMandate
	policyCount
)

var policyNames = []string{
	"SmallBusinessRelief", "IndustrialTaxBreak", "FreePublicTransport",
	"HighRiseBan", "FloodDefense", "PlasticBagBan", "DepositReturnProgram",
	"CompostingMandate", "WTEMandate",
}

// Monthly running cost of the civic (non-waste) policies.
var policyMonthlyCost = [...]float64{
	SmallBusinessRelief: 2_000,
	IndustrialTaxBreak:  1_000,
	FreePublicTransport: 8_000,
	HighRiseBan:         0,
	FloodDefense:        6_000,
}

func (p Policy) Valid() bool { return p < policyCount }

// Waste reports whether the policy is managed by WastePolicyState.
func (p Policy) Waste() bool { return p >= PlasticBagBan && p < policyCount }

func (p Policy) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Policy(%d)", p)
	}
	return policyNames[p]
}

func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Policy) UnmarshalText(b []byte) error {
	for i, n := range policyNames {
		if strings.EqualFold(n, string(b)) {
			*p = Policy(i)
			return nil
		}
	}
	return fmt.Errorf("unknown policy %q", b)
}

// Modifiers are the multipliers and caps active policies impose on the
// rest of the simulation.
type Modifiers struct {
	CommercialTax  float64 // multiplier on commercial tax income
	IndustrialTax  float64 // multiplier on industrial tax income
	FreeTransit    bool
	MaxLevel       uint8 // building level cap
	FloodProtected bool
}

func (m Modifiers) normalized() Modifiers {
	if m.CommercialTax == 0 {
		m.CommercialTax = 1
	}
	if m.IndustrialTax == 0 {
		m.IndustrialTax = 1
	}
	if m.MaxLevel == 0 {
		m.MaxLevel = 5
	}
	return m
}

// PolicyState is the set of enabled civic policies.
type PolicyState struct {
	Active [PolicyCivicCount]bool `json:"active"`
}

// PolicyCivicCount is the number of policies PolicyState tracks.
const PolicyCivicCount = int(FloodDefense) + 1

// Toggle flips a civic policy and returns its new state.
func (ps *PolicyState) Toggle(p Policy) bool {
	if int(p) >= PolicyCivicCount {
		return false
	}
	ps.Active[p] = !ps.Active[p]
	return ps.Active[p]
}

// IsActive reports whether p is enabled.
func (ps *PolicyState) IsActive(p Policy) bool {
	return int(p) < PolicyCivicCount && ps.Active[p]
}

// MonthlyCost sums the running cost of enabled policies.
func (ps *PolicyState) MonthlyCost() float64 {
	c := 0.0
	for i, on := range ps.Active {
		if on {
			c += policyMonthlyCost[i]
		}
	}
	return c
}

// Modifiers derives the effect of the enabled policies.
func (ps *PolicyState) Modifiers() Modifiers {
	m := Modifiers{CommercialTax: 1, IndustrialTax: 1, MaxLevel: 5}
	if ps.Active[SmallBusinessRelief] {
		m.CommercialTax = 0.8
	}
	if ps.Active[IndustrialTaxBreak] {
		m.IndustrialTax = 0.75
	}
	m.FreeTransit = ps.Active[FreePublicTransport]
	if ps.Active[HighRiseBan] {
		m.MaxLevel = 3
	}
	m.FloodProtected = ps.Active[FloodDefense]
	return m
}

// Enabled lists active civic policies in declaration order.
func (ps *PolicyState) Enabled() []Policy {
	var out []Policy
	for i, on := range ps.Active {
		if on {
			out = append(out, Policy(i))
		}
	}
	return out
}

func (ps *PolicyState) SaveKey() string { return "policies" }

func (ps *PolicyState) SaveBytes() ([]byte, bool) {
	if *ps == (PolicyState{}) {
		return nil, false
	}
	b, err := json.Marshal(ps)
	return b, err == nil
}

func (ps *PolicyState) LoadBytes(b []byte) error {
	var v PolicyState
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*ps = v
	return nil
}
