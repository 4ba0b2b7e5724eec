package vitalsapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type updateContactRequest struct {
	ID          contactID `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
}

// contactID accepts 2 and "2". Anything that is not an integer is kept as
// invalid and matches no contact.
type contactID struct {
	value int64
	valid bool
}

func (c *contactID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// 2.0 is a valid id from a JSON number
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil || f != float64(int64(f)) {
			*c = contactID{}
			return nil
		}
		n = int64(f)
	}
	*c = contactID{value: n, valid: true}
	return nil
}

func (a *API) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := a.svc.Contacts(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list contacts")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (a *API) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	var req updateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	span := trace.SpanFromContext(r.Context())

	if !req.ID.valid {
		a.logger.Warn(r.Context(), "contact update without a usable id, nothing changed")
		writeJSON(w, http.StatusOK, map[string]string{"message": "Contact updated"})
		return
	}
	span.SetAttributes(attribute.Int64("vitallink.contact.id", req.ID.value))

	if err := a.svc.UpdateContact(r.Context(), req.ID.value, req.Name, req.PhoneNumber); err != nil {
		a.logger.Error(r.Context(), err, "failed to update contact", "contact_id", req.ID.value)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Contact updated"})
}
