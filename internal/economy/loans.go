package economy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Loan limits and credit drift.
const (
	MaxLoans            = 3
	BankruptcyThreshold = -100_000.0
	CreditDriftUp       = 0.001
	CreditDriftDown     = 0.005
	MaxCreditRating     = 2.0
	MinCreditRating     = 0.1
	DefaultCreditRating = 1.0
	paidOffEpsilon      = 0.01
)

var (
	ErrLoanCap  = errors.New("loan limit reached")
	ErrBankrupt = errors.New("city is bankrupt")
)

// LoanTier is a municipal bond package.
type LoanTier uint8

const (
	LoanSmall LoanTier = iota
	LoanMedium
	LoanLarge
)

var loanTiers = []struct {
	name   string
	amount float64
	rate   float64 // annual
	term   uint32  // months
}{
	LoanSmall:  {"Small", 10_000, 0.05, 12},
	LoanMedium: {"Medium", 50_000, 0.07, 24},
	LoanLarge:  {"Large", 200_000, 0.09, 60},
}

func (t LoanTier) Valid() bool           { return int(t) < len(loanTiers) }
func (t LoanTier) Amount() float64       { return loanTiers[t].amount }
func (t LoanTier) InterestRate() float64 { return loanTiers[t].rate }
func (t LoanTier) TermMonths() uint32    { return loanTiers[t].term }

func (t LoanTier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("LoanTier(%d)", t)
	}
	return loanTiers[t].name
}

func (t LoanTier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *LoanTier) UnmarshalText(b []byte) error {
	for i, lt := range loanTiers {
		if strings.EqualFold(lt.name, string(b)) {
			*t = LoanTier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown loan tier %q", b)
}

// MonthlyPayment is the amortized payment A·r / (1 − (1+r)^−n) with r the
// monthly rate. A zero rate falls back to straight-line repayment.
func MonthlyPayment(amount, annualRate float64, termMonths uint32) float64 {
	if termMonths == 0 {
		return amount
	}
	r := annualRate / 12
	if r == 0 {
		return amount / float64(termMonths)
	}
	return amount * r / (1 - math.Pow(1+r, -float64(termMonths)))
}

// Loan is one outstanding loan.
type Loan struct {
	Tier           LoanTier `json:"tier"`
	Amount         float64  `json:"amount"`
	InterestRate   float64  `json:"interest_rate"`
	TermMonths     uint32   `json:"term_months"`
	MonthlyPayment float64  `json:"monthly_payment"`
	Remaining      float64  `json:"remaining"`
	MonthsPaid     uint32   `json:"months_paid"`
	DaysPaid       uint32   `json:"days_paid"`
}

// LoanBook holds the city's loans and credit standing.
type LoanBook struct {
	Loans        []Loan  `json:"loans"`
	CreditRating float64 `json:"credit_rating"`
	Bankrupt     bool    `json:"bankrupt"`
	TotalPaid    float64 `json:"total_paid"`
}

// NewLoanBook starts with no loans and a neutral rating.
func NewLoanBook() LoanBook {
	return LoanBook{CreditRating: DefaultCreditRating}
}

// TakeLoan credits the treasury with a new loan of the given tier.
func (lb *LoanBook) TakeLoan(tier LoanTier, treasury *float64) error {
	if !tier.Valid() {
		return fmt.Errorf("take loan: invalid tier %d", tier)
	}
	if lb.Bankrupt {
		return ErrBankrupt
	}
	if len(lb.Loans) >= MaxLoans {
		return ErrLoanCap
	}
	pay := MonthlyPayment(tier.Amount(), tier.InterestRate(), tier.TermMonths())
	lb.Loans = append(lb.Loans, Loan{
		Tier:           tier,
		Amount:         tier.Amount(),
		InterestRate:   tier.InterestRate(),
		TermMonths:     tier.TermMonths(),
		MonthlyPayment: pay,
		Remaining:      pay * float64(tier.TermMonths()),
	})
	*treasury += tier.Amount()
	return nil
}

// MonthlyPayments sums the monthly payment of every active loan.
func (lb *LoanBook) MonthlyPayments() float64 {
	s := 0.0
	for _, l := range lb.Loans {
		s += l.MonthlyPayment
	}
	return s
}

// DayResult reports what ProcessDay did.
type DayResult struct {
	Paid         float64
	LoansRepaid  int
	WentBankrupt bool
}

// ProcessDay debits one day's share of every loan payment, removes loans
// that are paid off, drifts the credit rating, and checks for bankruptcy.
func (lb *LoanBook) ProcessDay(treasury *float64) DayResult {
	var res DayResult
	kept := lb.Loans[:0]
	for _, l := range lb.Loans {
		due := min(l.MonthlyPayment/DaysPerMonth, l.Remaining)
		*treasury -= due
		l.Remaining -= due
		res.Paid += due
		l.DaysPaid++
		if l.DaysPaid%DaysPerMonth == 0 {
			l.MonthsPaid++
		}
		if l.Remaining <= paidOffEpsilon {
			res.LoansRepaid++
			continue
		}
		kept = append(kept, l)
	}
	lb.Loans = kept
	lb.TotalPaid += res.Paid

	if lb.CreditRating == 0 {
		lb.CreditRating = DefaultCreditRating
	}
	if *treasury >= 0 {
		lb.CreditRating = min(lb.CreditRating+CreditDriftUp, MaxCreditRating)
	} else {
		lb.CreditRating = max(lb.CreditRating-CreditDriftDown, MinCreditRating)
	}

	if !lb.Bankrupt && *treasury < BankruptcyThreshold && len(lb.Loans) >= MaxLoans {
		lb.Bankrupt = true
		res.WentBankrupt = true
	}
	if lb.Bankrupt && *treasury >= 0 {
		lb.Bankrupt = false
	}
	return res
}

func (lb *LoanBook) SaveKey() string { return "loan_book" }

func (lb *LoanBook) SaveBytes() ([]byte, bool) {
	if len(lb.Loans) == 0 && !lb.Bankrupt && lb.TotalPaid == 0 &&
		(lb.CreditRating == DefaultCreditRating || lb.CreditRating == 0) {
		return nil, false
	}
	b, err := json.Marshal(lb)
	return b, err == nil
}

func (lb *LoanBook) LoadBytes(b []byte) error {
	v := NewLoanBook()
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*lb = v
	return nil
}
