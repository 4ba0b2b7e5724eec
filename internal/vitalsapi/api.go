// Package vitalsapi exposes contacts and vitals analysis as a JSON API for
// the VitalLink dashboard.
package vitalsapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/vitallink/internal/sos"
	"github.com/linnemanlabs/vitallink/internal/vitals"
)

// Service defines the business operations vitalsapi needs.
type Service interface {
	Analyze(ctx context.Context, rd sos.Reading) (*sos.Result, error)
	Contacts(ctx context.Context) ([]sos.Contact, error)
	UpdateContact(ctx context.Context, id int64, name, phoneNumber string) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger         log.Logger
	svc            Service
	allowedOrigins []string
	mock           func() vitals.Mock
}

// New creates a new API handler. allowedOrigins defaults to any origin.
func New(logger log.Logger, svc Service, allowedOrigins []string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("sos service is required"))
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &API{
		logger:         logger,
		svc:            svc,
		allowedOrigins: allowedOrigins,
		mock:           func() vitals.Mock { return vitals.MockReading(nil) },
	}
}

// RegisterRoutes attaches API endpoints to the router. Each contacts and
// analyze route is also served under the name older dashboards use.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		// the dashboard is served from another origin
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   a.allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))

		for _, p := range []string{"/contacts", "/emergency-contacts"} {
			r.Get(p, a.handleListContacts)
			r.Post(p, a.handleUpdateContact)
			r.Put(p, a.handleUpdateContact)
		}

		r.Post("/analyze", a.handleAnalyze)
		r.Post("/vitals/analyze", a.handleAnalyze)
		r.Get("/vitals/fetch-mock", a.handleFetchMock)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
