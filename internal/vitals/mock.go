package vitals

import (
	"math/rand/v2"
	"strconv"
)

// Mock is a simulated reading from a wearable band. Temperature is a string
// with one decimal, matching what the band sync endpoint has always served.
type Mock struct {
	HeartRate   int    `json:"heartRate"`
	SpO2        int    `json:"spo2"`
	Temperature string `json:"temperature"`
}

// MockReading draws a healthy reading uniformly from heart rate [65,90],
// SpO2 [96,100] and temperature [36.6,37.2] in 0.1 steps. A nil r uses the
// global source.
func MockReading(r *rand.Rand) Mock {
	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}

	tenths := 366 + intN(7)
	return Mock{
		HeartRate:   65 + intN(26),
		SpO2:        96 + intN(5),
		Temperature: strconv.FormatFloat(float64(tenths)/10, 'f', 1, 64),
	}
}
