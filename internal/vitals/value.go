package vitals

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Value is a reading submitted by a client. Dashboards send form input as
// strings and device syncs send numbers, so both decode into a float64.
// Anything that does not parse becomes NaN.
type Value float64

// NaN returns a Value that is not a number, the value of a missing reading.
func NaN() Value {
	return Value(math.NaN())
}

// Float64 returns the reading as a float64.
func (v Value) Float64() float64 {
	return float64(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*v = NaN()
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(ParseLenient(s))
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil && !isRangeErr(err) {
			return err
		}
		*v = Value(f)
	case '[':
		// an array reads as its elements joined by commas, so [75] is 75
		// and [75,80] stops at the comma
		text, err := arrayText(data)
		if err != nil {
			return err
		}
		*v = Value(ParseLenient(text))
	default:
		// null, booleans and objects carry no reading
		*v = NaN()
	}
	return nil
}

// arrayText renders a JSON array as comma-joined element text: strings
// verbatim, numbers as written, null as empty, nested arrays recursively.
func arrayText(data []byte) (string, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return "", err
	}

	parts := make([]string, len(elems))
	for i, raw := range elems {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		switch raw[0] {
		case '"':
			if err := json.Unmarshal(raw, &parts[i]); err != nil {
				return "", err
			}
		case '[':
			text, err := arrayText(raw)
			if err != nil {
				return "", err
			}
			parts[i] = text
		case 'n':
			// null
		case '{':
			parts[i] = "[object Object]"
		default:
			parts[i] = string(raw)
		}
	}
	return strings.Join(parts, ","), nil
}

// ParseLenient parses the longest decimal prefix of s after leading
// whitespace, so "75 bpm" is 75 and ".5" is 0.5. "Infinity" with an optional
// sign is accepted. Input without a numeric prefix yields NaN.
func ParseLenient(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}

	intDigits := countDigits(s[i:])
	end := i + intDigits

	fracDigits := 0
	if end < len(s) && s[end] == '.' {
		fracDigits = countDigits(s[end+1:])
		if intDigits > 0 || fracDigits > 0 {
			end += 1 + fracDigits
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return math.NaN()
	}

	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		j := end + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if n := countDigits(s[j:]); n > 0 {
			end = j + n
		}
	}

	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil && !isRangeErr(err) {
		return math.NaN()
	}
	return f
}

func countDigits(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}

// isRangeErr reports overflow/underflow, where ParseFloat still returns
// ±Inf or 0 and the value is usable.
func isRangeErr(err error) bool {
	var ne *strconv.NumError
	return errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange)
}
