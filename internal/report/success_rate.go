package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NoAssertionsMarker replaces the numeric success rate when a run executed no assertions.
const NoAssertionsMarker = "no assertions executed"

// SuccessRate is a percentage rounded to two decimals, or undefined when the
// run had no assertions. It serialises as a string: "95.00" or the marker.
type SuccessRate struct {
	value   float64
	defined bool
}

// NewSuccessRate computes (total - failed) / total * 100.
func NewSuccessRate(total, failed int) SuccessRate {
	if total <= 0 {
		return SuccessRate{}
	}

	pct := float64(total-failed) / float64(total) * 100

	return Rate(pct)
}

// Rate wraps an already computed percentage.
func Rate(pct float64) SuccessRate {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return SuccessRate{}
	}

	return SuccessRate{value: round2(pct), defined: true}
}

// Value returns the percentage and whether it is defined.
func (s SuccessRate) Value() (float64, bool) {
	return s.value, s.defined
}

// Defined is false when no assertions were executed.
func (s SuccessRate) Defined() bool {
	return s.defined
}

func (s SuccessRate) String() string {
	if !s.defined {
		return NoAssertionsMarker
	}

	return strconv.FormatFloat(s.value, 'f', 2, 64)
}

// MarshalJSON implements json.Marshaler.
func (s SuccessRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the string form, a bare number, or null.
func (s *SuccessRate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = SuccessRate{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("decoding success rate: %w", err)
		}

		str = strings.TrimSpace(str)
		if str == "" || str == NoAssertionsMarker || strings.EqualFold(str, "NaN") {
			*s = SuccessRate{}
			return nil
		}

		pct, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("parsing success rate %q: %w", str, err)
		}

		*s = Rate(pct)

		return nil
	}

	var pct float64
	if err := json.Unmarshal(data, &pct); err != nil {
		return fmt.Errorf("decoding success rate: %w", err)
	}

	*s = Rate(pct)

	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
