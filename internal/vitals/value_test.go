package vitals

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParseLenient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
	}{
		{"75", 75},
		{"36.9", 36.9},
		{"  98", 98},
		{"75bpm", 75},
		{"37.2 C", 37.2},
		{".5", 0.5},
		{"5.", 5},
		{"+12", 12},
		{"-4", -4},
		{"1e2", 100},
		{"1e", 1},
		{"2E+1x", 20},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
		{"1e400", math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := ParseLenient(tt.in); got != tt.want {
				t.Errorf("ParseLenient(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLenient_NaN(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", " ", "abc", "-", ".", "+.", "e5", "bpm75", "NaN", "infinity"} {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			if got := ParseLenient(in); !math.IsNaN(got) {
				t.Errorf("ParseLenient(%q) = %v, want NaN", in, got)
			}
		})
	}
}

func TestValue_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    float64
		wantNaN bool
	}{
		{name: "number", in: `75`, want: 75},
		{name: "float", in: `36.9`, want: 36.9},
		{name: "negative", in: `-1`, want: -1},
		{name: "string", in: `"98"`, want: 98},
		{name: "string with unit", in: `"38.2C"`, want: 38.2},
		{name: "empty string", in: `""`, wantNaN: true},
		{name: "garbage string", in: `"high"`, wantNaN: true},
		{name: "null", in: `null`, wantNaN: true},
		{name: "bool", in: `true`, wantNaN: true},
		{name: "object", in: `{"v":1}`, wantNaN: true},
		{name: "single element array", in: `[75]`, want: 75},
		{name: "string element array", in: `["38.2C"]`, want: 38.2},
		{name: "array reads first element", in: `[75, 80]`, want: 75},
		{name: "nested array", in: `[[99]]`, want: 99},
		{name: "empty array", in: `[]`, wantNaN: true},
		{name: "array led by null", in: `[null, 5]`, wantNaN: true},
		{name: "array of object", in: `[{"v":1}]`, wantNaN: true},
		{name: "array of bool", in: `[true]`, wantNaN: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var v Value
			if err := json.Unmarshal([]byte(tt.in), &v); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if tt.wantNaN {
				if !math.IsNaN(v.Float64()) {
					t.Errorf("Unmarshal(%s) = %v, want NaN", tt.in, v)
				}
				return
			}
			if v.Float64() != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, v, tt.want)
			}
		})
	}
}

func TestValue_MissingFieldKeepsDefault(t *testing.T) {
	t.Parallel()

	req := struct {
		HeartRate Value `json:"heartRate"`
		SpO2      Value `json:"spo2"`
	}{HeartRate: NaN(), SpO2: NaN()}

	if err := json.Unmarshal([]byte(`{"spo2":"97"}`), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !math.IsNaN(req.HeartRate.Float64()) {
		t.Errorf("HeartRate = %v, want NaN for missing field", req.HeartRate)
	}
	if req.SpO2.Float64() != 97 {
		t.Errorf("SpO2 = %v, want 97", req.SpO2)
	}
}

func FuzzParseLenient(f *testing.F) {
	f.Add("75")
	f.Add("36.9C")
	f.Add("-Infinity")
	f.Add("1e999")
	f.Add("\x00\xff")
	f.Add("   .")

	f.Fuzz(func(t *testing.T, s string) {
		// Must not panic.
		_ = ParseLenient(s)

		var v Value
		b, err := json.Marshal(s)
		if err != nil {
			t.Skip()
		}
		if err := v.UnmarshalJSON(b); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", b, err)
		}
	})
}
