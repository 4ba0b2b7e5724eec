// Package vitals evaluates heart rate, SpO2 and body temperature readings
// against fixed reference ranges.
package vitals

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Range is a closed interval of normal values.
type Range struct {
	Min float64
	Max float64
}

// Outside reports whether v is strictly outside the range. NaN is never
// outside because every comparison against NaN is false.
func (r Range) Outside(v float64) bool {
	return v < r.Min || v > r.Max
}

// ParseRange parses "min:max", e.g. "36.5:37.5". Both bounds must be finite
// and min must not exceed max.
func ParseRange(s string) (Range, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return Range{}, fmt.Errorf("range %q: want min:max", s)
	}
	minV, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: min: %w", s, err)
	}
	maxV, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: max: %w", s, err)
	}
	if math.IsNaN(minV) || math.IsInf(minV, 0) || math.IsNaN(maxV) || math.IsInf(maxV, 0) {
		return Range{}, fmt.Errorf("range %q: bounds must be finite", s)
	}
	if minV > maxV {
		return Range{}, fmt.Errorf("range %q: min above max", s)
	}
	return Range{Min: minV, Max: maxV}, nil
}

// String formats r as ParseRange accepts it.
func (r Range) String() string {
	return strconv.FormatFloat(r.Min, 'f', -1, 64) + ":" + strconv.FormatFloat(r.Max, 'f', -1, 64)
}

// Ranges holds the reference range for each vital sign.
type Ranges struct {
	HeartRate   Range
	SpO2        Range
	Temperature Range
}

// DefaultRanges are the adult resting reference ranges.
var DefaultRanges = Ranges{
	HeartRate:   Range{Min: 60, Max: 100},
	SpO2:        Range{Min: 95, Max: 100},
	Temperature: Range{Min: 36.5, Max: 37.5},
}

// Evaluate checks the readings against DefaultRanges.
func Evaluate(heartRate, spo2, temperature float64) []string {
	return DefaultRanges.Evaluate(heartRate, spo2, temperature)
}

// Evaluate returns a description of every reading outside its range, in
// heart rate, SpO2, temperature order. An empty result means all normal.
func (r Ranges) Evaluate(heartRate, spo2, temperature float64) []string {
	var abnormal []string
	if r.HeartRate.Outside(heartRate) {
		abnormal = append(abnormal, "Heart Rate ("+FormatValue(heartRate)+" bpm)")
	}
	if r.SpO2.Outside(spo2) {
		abnormal = append(abnormal, "SpO2 ("+FormatValue(spo2)+"%)")
	}
	if r.Temperature.Outside(temperature) {
		abnormal = append(abnormal, "Temp ("+FormatValue(temperature)+"°C)")
	}
	return abnormal
}

// FormatValue renders v the way a JavaScript number prints: shortest
// round-trip digits, e.g. 101, 38.2, Infinity. Zero of either sign is "0",
// and magnitudes outside [1e-6, 1e21) use exponent form such as 1e+21 or
// 1.5e-7.
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}

	if a := math.Abs(v); a >= 1e-6 && a < 1e21 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	// Go pads the exponent to two digits (1e-07), JavaScript does not
	s := strconv.FormatFloat(v, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}
