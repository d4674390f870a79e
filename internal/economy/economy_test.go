package economy

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/talgya/gridcity/internal/world"
)

func TestClampTaxRate(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0: 0, 0.1: 0.1, 0.25: 0.25, 0.9: 0.25, math.NaN(): 0}
	for in, want := range cases {
		if got := ClampTaxRate(in); got != want {
			t.Errorf("ClampTaxRate(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestMonthlyPaymentAmortization(t *testing.T) {
	for _, tier := range []LoanTier{LoanSmall, LoanMedium, LoanLarge} {
		r := tier.InterestRate() / 12
		n := float64(tier.TermMonths())
		want := tier.Amount() * r / (1 - math.Pow(1+r, -n))
		got := MonthlyPayment(tier.Amount(), tier.InterestRate(), tier.TermMonths())
		if math.Abs(got-want) > 0.01 {
			t.Errorf("%s payment = %.2f, want %.2f", tier, got, want)
		}
		if got*n <= tier.Amount() {
			t.Errorf("%s total repayment does not exceed principal", tier)
		}
	}
	if got := MonthlyPayment(1200, 0, 12); got != 100 {
		t.Errorf("zero-rate payment = %v, want straight-line 100", got)
	}
}

func TestLoanLifecycle(t *testing.T) {
	lb := NewLoanBook()
	treasury := 5_000.0
	if err := lb.TakeLoan(LoanMedium, &treasury); err != nil {
		t.Fatal(err)
	}
	if treasury != 55_000 {
		t.Fatalf("treasury = %v, want 55000", treasury)
	}
	for i := 0; i < 2; i++ {
		if err := lb.TakeLoan(LoanSmall, &treasury); err != nil {
			t.Fatal(err)
		}
	}
	if err := lb.TakeLoan(LoanSmall, &treasury); !errors.Is(err, ErrLoanCap) {
		t.Fatalf("fourth loan err = %v, want ErrLoanCap", err)
	}

	lb = NewLoanBook()
	treasury = 0
	_ = lb.TakeLoan(LoanSmall, &treasury)
	pay := lb.Loans[0].MonthlyPayment
	before := treasury
	res := lb.ProcessDay(&treasury)
	if math.Abs((before-treasury)-pay/DaysPerMonth) > 1e-6 || math.Abs(res.Paid-(before-treasury)) > 1e-6 {
		t.Errorf("daily deduction = %v, want %v", before-treasury, pay/DaysPerMonth)
	}
	for day := 1; day < 12*DaysPerMonth+5 && len(lb.Loans) > 0; day++ {
		lb.ProcessDay(&treasury)
		if len(lb.Loans) > 0 && lb.Loans[0].Remaining < 0 {
			t.Fatal("remaining went negative")
		}
	}
	if len(lb.Loans) != 0 {
		t.Errorf("loan not repaid after its term: %+v", lb.Loans)
	}
}

func TestCreditDriftAndBankruptcy(t *testing.T) {
	lb := NewLoanBook()
	treasury := 10.0
	lb.ProcessDay(&treasury)
	if math.Abs(lb.CreditRating-1.001) > 1e-9 {
		t.Errorf("solvent drift = %v", lb.CreditRating)
	}
	treasury = -1
	lb.ProcessDay(&treasury)
	if math.Abs(lb.CreditRating-0.996) > 1e-9 {
		t.Errorf("insolvent drift = %v", lb.CreditRating)
	}
	for range 1000 {
		lb.ProcessDay(&treasury)
	}
	if lb.CreditRating != MinCreditRating {
		t.Errorf("rating floor = %v", lb.CreditRating)
	}

	lb = NewLoanBook()
	treasury = 0
	for range MaxLoans {
		_ = lb.TakeLoan(LoanSmall, &treasury)
	}
	treasury = -150_000
	res := lb.ProcessDay(&treasury)
	if !res.WentBankrupt || !lb.Bankrupt {
		t.Error("bankruptcy did not fire")
	}
	if err := lb.TakeLoan(LoanSmall, &treasury); !errors.Is(err, ErrBankrupt) {
		t.Errorf("loan while bankrupt err = %v", err)
	}
}

func TestBudgetProjectionAndDay(t *testing.T) {
	b := NewBudget(1000)
	b.SetTaxRate(0.1)
	ps := PolicyState{}
	ps.Toggle(SmallBusinessRelief)
	in := MonthInputs{
		Buildings: []TaxBase{
			{Zone: world.ResidentialLow, Level: 1, LandValue: 50, Occupants: 8},
			{Zone: world.CommercialLow, Level: 1, LandValue: 50},
		},
		ServiceUpkeep: 300,
		LoanPayments:  90,
		Modifiers:     ps.Modifiers(),
	}
	b.Project(in)
	if math.Abs(b.Income.Residential-62) > 1e-9 {
		t.Errorf("residential income = %v, want 62", b.Income.Residential)
	}
	if math.Abs(b.Income.Commercial-40) > 1e-9 {
		t.Errorf("commercial income with relief = %v, want 40", b.Income.Commercial)
	}
	if b.MonthlyExpenses != 390 {
		t.Errorf("expenses = %v", b.MonthlyExpenses)
	}
	delta := b.ApplyDay(3)
	if math.Abs(delta-(102-300)/30.0) > 1e-9 {
		t.Errorf("daily delta = %v", delta)
	}
	bound := b.MonthlyIncome + b.MonthlyExpenses + in.LoanPayments
	if math.Abs(delta) > bound {
		t.Errorf("daily change %v exceeds bound %v", delta, bound)
	}
}

func TestPolicyModifiers(t *testing.T) {
	var ps PolicyState
	if m := ps.Modifiers(); m.MaxLevel != 5 || m.CommercialTax != 1 {
		t.Errorf("default modifiers = %+v", m)
	}
	ps.Toggle(HighRiseBan)
	ps.Toggle(FloodDefense)
	m := ps.Modifiers()
	if m.MaxLevel != 3 || !m.FloodProtected {
		t.Errorf("modifiers = %+v", m)
	}
	if ps.Toggle(HighRiseBan) {
		t.Error("second toggle should disable")
	}
	if ps.Toggle(PlasticBagBan) {
		t.Error("waste policies are not civic policies")
	}
	var p Policy
	if err := json.Unmarshal([]byte(`"FreePublicTransport"`), &p); err != nil || p != FreePublicTransport {
		t.Errorf("unmarshal policy = %v, %v", p, err)
	}
}

func TestWastePolicySaveSkipsDefault(t *testing.T) {
	var w WastePolicyState
	if _, ok := w.SaveBytes(); ok {
		t.Fatal("default waste state should not be saved")
	}
	var loaded WastePolicyState
	if loaded != (WastePolicyState{}) {
		t.Fatal("absent key should yield default")
	}

	on, cost := w.Toggle(DepositReturnProgram)
	if !on || cost != DepositReturnSetupCost {
		t.Fatalf("toggle = %v, %v", on, cost)
	}
	w.Toggle(DepositReturnProgram)
	if _, cost = w.Toggle(DepositReturnProgram); cost != 0 {
		t.Errorf("setup charged twice: %v", cost)
	}
	b, ok := w.SaveBytes()
	if !ok {
		t.Fatal("active state not saved")
	}
	if err := loaded.LoadBytes(b); err != nil || loaded != w {
		t.Errorf("round trip = %+v, %v", loaded, err)
	}
}

func TestWasteEffects(t *testing.T) {
	w := WastePolicyState{PlasticBagBan: true, CompostingMandate: true, WTEMandate: true}
	e := UpdateWaste(&w, 1000, 0)
	if math.Abs(float64(e.GenerationMultiplier-0.95)) > 1e-6 {
		t.Errorf("multiplier = %v", e.GenerationMultiplier)
	}
	if e.HappinessPenalty != 3 || e.ActivePolicies != 3 || e.WTEActive {
		t.Errorf("effects = %+v", e)
	}
	if e.MonthlyCost != 40_000 {
		t.Errorf("monthly cost = %v", e.MonthlyCost)
	}
	e = UpdateWaste(&w, 1000, 2)
	if !e.WTEActive || e.WTEDiversionTons != 500 {
		t.Errorf("wte diversion = %v", e.WTEDiversionTons)
	}
}
