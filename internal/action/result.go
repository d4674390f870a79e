package action

import (
	"encoding/json"
	"fmt"
)

// Failure reasons shared by the executor.
const (
	ReasonOutOfBounds       = "out of bounds"
	ReasonInsufficientFunds = "insufficient funds"
	ReasonBlockedByWater    = "blocked by water"
	ReasonOccupied          = "cell occupied"
	ReasonNotRoadAdjacent   = "no adjacent road"
	ReasonInvalid           = "invalid argument"
	ReasonLoanCap           = "loan cap reached"
	ReasonBankrupt          = "city is bankrupt"
	ReasonNothingToRemove   = "nothing to remove"
	ReasonNeedsDirection    = "one-way road needs a direction"
)

// Result is Success or Failure(reason). It encodes as "Success" or
// {"Failure":"reason"}.
type Result struct {
	Failure string
}

// Success is the zero Result.
var Success = Result{}

// Fail returns a failed result.
func Fail(reason string) Result { return Result{Failure: reason} }

// Failf formats a failure reason.
func Failf(format string, args ...any) Result { return Result{Failure: fmt.Sprintf(format, args...)} }

// OK reports success.
func (r Result) OK() bool { return r.Failure == "" }

func (r Result) String() string {
	if r.OK() {
		return "Success"
	}
	return "Failure(" + r.Failure + ")"
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.OK() {
		return []byte(`"Success"`), nil
	}
	return json.Marshal(map[string]string{"Failure": r.Failure})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "Success" {
			return fmt.Errorf("decode result: unexpected %q", s)
		}
		*r = Success
		return nil
	}
	var f struct {
		Failure string `json:"Failure"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if f.Failure == "" {
		return fmt.Errorf("decode result: empty failure reason")
	}
	*r = Fail(f.Failure)
	return nil
}

// Record pairs an action with the tick it ran on and its outcome.
type Record struct {
	Tick   uint64   `json:"tick"`
	Action Envelope `json:"action"`
	Result Result   `json:"result"`
}
