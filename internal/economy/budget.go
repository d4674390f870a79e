// Package economy keeps the city's books: tax collection, service and
// road expenses, municipal loans, and the policies that shift both.
package economy

import "github.com/talgya/gridcity/internal/world"

// Budget bounds.
const (
	MinTaxRate      = 0.0
	MaxTaxRate      = 0.25
	DefaultTaxRate  = 0.09
	DaysPerMonth    = 30
	taxScale        = 10.0 // crowns per land-value point per level at 100% tax
	occupantTaxBase = 15.0 // per occupant at 100% tax
)

// IncomeBreakdown splits monthly tax income by zone family.
type IncomeBreakdown struct {
	Residential float64 `json:"residential"`
	Commercial  float64 `json:"commercial"`
	Industrial  float64 `json:"industrial"`
	Office      float64 `json:"office"`
}

// Total sums every income line.
func (b IncomeBreakdown) Total() float64 {
	return b.Residential + b.Commercial + b.Industrial + b.Office
}

// ExpenseBreakdown splits monthly spending.
type ExpenseBreakdown struct {
	Services  float64 `json:"services"`
	Utilities float64 `json:"utilities"`
	Roads     float64 `json:"roads"`
	Loans     float64 `json:"loans"`
	Policies  float64 `json:"policies"`
}

// Total sums every expense line.
func (b ExpenseBreakdown) Total() float64 {
	return b.Services + b.Utilities + b.Roads + b.Loans + b.Policies
}

// Budget is the city treasury and its monthly projection.
type Budget struct {
	Treasury        float64          `json:"treasury"`
	TaxRate         float64          `json:"tax_rate"`
	MonthlyIncome   float64          `json:"monthly_income"`
	MonthlyExpenses float64          `json:"monthly_expenses"`
	Income          IncomeBreakdown  `json:"income"`
	Expenses        ExpenseBreakdown `json:"expenses"`
	LastDay         uint32           `json:"last_day"`
}

// NewBudget opens the books with a starting treasury.
func NewBudget(treasury float64) Budget {
	return Budget{Treasury: treasury, TaxRate: DefaultTaxRate}
}

// SetTaxRate stores the rate clamped to [MinTaxRate, MaxTaxRate].
func (b *Budget) SetTaxRate(rate float64) {
	b.TaxRate = ClampTaxRate(rate)
}

// ClampTaxRate clamps a requested rate into the legal band.
func ClampTaxRate(rate float64) float64 {
	if rate != rate || rate < MinTaxRate { // NaN or negative
		return MinTaxRate
	}
	if rate > MaxTaxRate {
		return MaxTaxRate
	}
	return rate
}

// PropertyTax is the monthly tax on one building.
func PropertyTax(landValue uint8, level uint8, occupants uint32, rate float64) float64 {
	return (float64(landValue)*float64(level)*taxScale + float64(occupants)*occupantTaxBase) * rate
}

// TaxBase is what a single building contributes to the tax roll.
type TaxBase struct {
	Zone      world.ZoneType
	Level     uint8
	LandValue uint8
	Occupants uint32
}

// MonthInputs are the recurring flows the budget projects from.
type MonthInputs struct {
	Buildings       []TaxBase
	ServiceUpkeep   float64
	UtilityUpkeep   float64
	RoadMaintenance float64
	PolicyCost      float64
	LoanPayments    float64
	Modifiers       Modifiers
}

// Project computes the monthly income and expense breakdown.
func (b *Budget) Project(in MonthInputs) {
	mod := in.Modifiers.normalized()
	var inc IncomeBreakdown
	for _, t := range in.Buildings {
		tax := PropertyTax(t.LandValue, t.Level, t.Occupants, b.TaxRate)
		switch {
		case t.Zone == world.Industrial:
			inc.Industrial += tax * mod.IndustrialTax
		case t.Zone == world.Office:
			inc.Office += tax
		case t.Zone == world.CommercialLow || t.Zone == world.CommercialHigh:
			inc.Commercial += tax * mod.CommercialTax
		case t.Zone.IsResidential():
			inc.Residential += tax
		}
	}
	b.Income = inc
	b.Expenses = ExpenseBreakdown{
		Services:  in.ServiceUpkeep,
		Utilities: in.UtilityUpkeep,
		Roads:     in.RoadMaintenance,
		Loans:     in.LoanPayments,
		Policies:  in.PolicyCost,
	}
	b.MonthlyIncome = inc.Total()
	b.MonthlyExpenses = b.Expenses.Total()
}

// ApplyDay posts one day of the operating projection to the treasury,
// excluding loan payments which the loan book debits itself. It returns
// the change applied.
func (b *Budget) ApplyDay(day uint32) float64 {
	operating := b.MonthlyExpenses - b.Expenses.Loans
	delta := (b.MonthlyIncome - operating) / DaysPerMonth
	b.Treasury += delta
	b.LastDay = day
	return delta
}

// Solvent reports a non-negative treasury.
func (b *Budget) Solvent() bool { return b.Treasury >= 0 }

// Spend debits amount if the treasury covers it.
func (b *Budget) Spend(amount float64) bool {
	if amount > b.Treasury {
		return false
	}
	b.Treasury -= amount
	return true
}
