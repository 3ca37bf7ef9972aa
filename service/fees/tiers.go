package fees

import "math"

// Status classifies network congestion against a threshold.
type Status string

const (
	StatusGood Status = "good"
	StatusBusy Status = "busy"
)

// Tiers are suggested per-byte fees around the current rate.
type Tiers struct {
	Low  uint64 `json:"low"`
	Avg  uint64 `json:"avg"`
	High uint64 `json:"high"`
}

// ComputeTiers derives low/avg/high at 80%, 100% and 120% of rate,
// floored, never below 1.
func ComputeTiers(rate float64) Tiers {
	return Tiers{
		Low:  atLeastOne(math.Floor(rate * 8 / 10)),
		Avg:  atLeastOne(math.Floor(rate)),
		High: atLeastOne(math.Floor(rate * 12 / 10)),
	}
}

// Classify reports good when rate is at or below threshold.
func Classify(rate, threshold float64) Status {
	if rate <= threshold {
		return StatusGood
	}
	return StatusBusy
}

func atLeastOne(v float64) uint64 {
	if math.IsNaN(v) || v < 1 {
		return 1
	}
	return uint64(v)
}
