package economy

import "encoding/json"

// Waste policy effects and costs.
const (
	PlasticBagBanWasteReduction   = 0.05
	PlasticBagBanHappinessPenalty = 1.0
	PlasticBagBanMonthlyCost      = 5_000.0
	DepositReturnRecyclingBonus   = 0.10
	DepositReturnSetupCost        = 500_000.0
	DepositReturnMonthlyCost      = 15_000.0
	CompostingDiversionBonus      = 0.15
	CompostingHappinessPenalty    = 2.0
	CompostingSetupCost           = 1_000_000.0
	CompostingMonthlyCost         = 25_000.0
	WTEMandateMonthlyCost         = 10_000.0
	WTEDiversionFraction          = 0.80
	recoveryFacilityTonsPerPeriod = 250.0
)

// WastePolicyState holds the waste ordinances and their paid setup costs.
type WastePolicyState struct {
	PlasticBagBan           bool    `json:"plastic_bag_ban"`
	DepositReturnProgram    bool    `json:"deposit_return_program"`
	CompostingMandate       bool    `json:"composting_mandate"`
	WTEMandate              bool    `json:"wte_mandate"`
	DepositReturnBuilt      bool    `json:"deposit_return_built"`
	CompostingSetupPaid     bool    `json:"composting_mandate_setup_paid"`
	TotalInfrastructureCost float64 `json:"total_infrastructure_cost"`
	TotalOperatingCost      float64 `json:"total_operating_cost"`
}

// WasteEffects is derived from WastePolicyState every slow tick.
type WasteEffects struct {
	GenerationMultiplier float32 `json:"waste_generation_multiplier"`
	RecyclingBonus       float32 `json:"recycling_rate_bonus"`
	CompostingBonus      float32 `json:"composting_diversion_bonus"`
	WTEDiversionTons     float64 `json:"wte_diversion_tons"`
	WTEActive            bool    `json:"wte_active"`
	HappinessPenalty     float32 `json:"happiness_penalty"`
	MonthlyCost          float64 `json:"total_monthly_cost"`
	ActivePolicies       uint32  `json:"active_policy_count"`
}

func (w *WastePolicyState) flag(p Policy) *bool {
	switch p {
	case PlasticBagBan:
		return &w.PlasticBagBan
	case DepositReturnProgram:
		return &w.DepositReturnProgram
	case CompostingMandate:
		return &w.CompostingMandate
	case WTEMandate:
		return &w.WTEMandate
	}
	return nil
}

// IsActive reports whether a waste policy is on.
func (w *WastePolicyState) IsActive(p Policy) bool {
	f := w.flag(p)
	return f != nil && *f
}

// SetupCost is the one-time cost still owed if p were switched on now.
func (w *WastePolicyState) SetupCost(p Policy) float64 {
	switch {
	case p == DepositReturnProgram && !w.DepositReturnBuilt:
		return DepositReturnSetupCost
	case p == CompostingMandate && !w.CompostingSetupPaid:
		return CompostingSetupCost
	}
	return 0
}

// Toggle flips a waste policy. Switching on pays any setup cost once; the
// caller must have checked the treasury. It returns the new state and the
// setup cost charged.
func (w *WastePolicyState) Toggle(p Policy) (bool, float64) {
	f := w.flag(p)
	if f == nil {
		return false, 0
	}
	*f = !*f
	var charged float64
	if *f {
		charged = w.SetupCost(p)
		switch p {
		case DepositReturnProgram:
			w.DepositReturnBuilt = true
		case CompostingMandate:
			w.CompostingSetupPaid = true
		}
		w.TotalInfrastructureCost += charged
	}
	return *f, charged
}

// MonthlyCost sums the operating cost of active waste policies.
func (w *WastePolicyState) MonthlyCost() float64 {
	c := 0.0
	if w.PlasticBagBan {
		c += PlasticBagBanMonthlyCost
	}
	if w.DepositReturnProgram {
		c += DepositReturnMonthlyCost
	}
	if w.CompostingMandate {
		c += CompostingMonthlyCost
	}
	if w.WTEMandate {
		c += WTEMandateMonthlyCost
	}
	return c
}

// UpdateWaste derives this period's effects. generatedTons is the waste
// produced in the period; facilities counts recovery plants able to burn
// diverted waste.
func UpdateWaste(w *WastePolicyState, generatedTons float64, facilities int) WasteEffects {
	e := WasteEffects{GenerationMultiplier: 1}
	if w.PlasticBagBan {
		e.GenerationMultiplier *= 1 - PlasticBagBanWasteReduction
		e.HappinessPenalty += PlasticBagBanHappinessPenalty
		e.ActivePolicies++
	}
	if w.DepositReturnProgram {
		e.RecyclingBonus = DepositReturnRecyclingBonus
		e.ActivePolicies++
	}
	if w.CompostingMandate {
		e.CompostingBonus = CompostingDiversionBonus
		e.HappinessPenalty += CompostingHappinessPenalty
		e.ActivePolicies++
	}
	if w.WTEMandate {
		e.ActivePolicies++
		if facilities > 0 {
			e.WTEActive = true
			e.WTEDiversionTons = min(generatedTons*WTEDiversionFraction, float64(facilities)*recoveryFacilityTonsPerPeriod)
		}
	}
	e.MonthlyCost = w.MonthlyCost()
	w.TotalOperatingCost += e.MonthlyCost / DaysPerMonth
	return e
}

func (w *WastePolicyState) SaveKey() string { return "waste_policies" }

// SaveBytes skips the save when no policy has ever been used.
func (w *WastePolicyState) SaveBytes() ([]byte, bool) {
	if *w == (WastePolicyState{}) {
		return nil, false
	}
	b, err := json.Marshal(w)
	return b, err == nil
}

func (w *WastePolicyState) LoadBytes(b []byte) error {
	var v WastePolicyState
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*w = v
	return nil
}
