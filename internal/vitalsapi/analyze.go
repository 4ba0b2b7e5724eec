package vitalsapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/vitallink/internal/sos"
	"github.com/linnemanlabs/vitallink/internal/vitals"
)

type analyzeRequest struct {
	HeartRate   vitals.Value    `json:"heartRate"`
	SpO2        vitals.Value    `json:"spo2"`
	Temperature vitals.Value    `json:"temperature"`
	Location    json.RawMessage `json:"location"`
}

// location renders whatever the client sent as text. Strings are used
// verbatim, null or a missing field is empty.
func (req *analyzeRequest) location() string {
	raw := bytes.TrimSpace(req.Location)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	// absent readings stay NaN and are not flagged
	req := analyzeRequest{
		HeartRate:   vitals.NaN(),
		SpO2:        vitals.NaN(),
		Temperature: vitals.NaN(),
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	res, err := a.svc.Analyze(r.Context(), sos.Reading{
		HeartRate:   req.HeartRate.Float64(),
		SpO2:        req.SpO2.Float64(),
		Temperature: req.Temperature.Float64(),
		Location:    req.location(),
	})
	if err != nil {
		a.logger.Error(r.Context(), err, "vitals analysis failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("vitallink.status", string(res.Status)),
		attribute.Bool("vitallink.sos_generated", res.SOSGenerated),
	)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleFetchMock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.mock())
}
