package plcsim

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/plcsnmp/plcsnmp/internal/api/common"
	"github.com/plcsnmp/plcsnmp/internal/auth"
	"github.com/plcsnmp/plcsnmp/internal/middleware"
)

type deviceResponse struct {
	Name    string `json:"name"`
	Vendor  string `json:"vendor"`
	Version string `json:"version"`
}

type stateRequest struct {
	State string `json:"state"`
}

type writeRequest struct {
	Value *string `json:"value"`
}

// API serves the controller tag endpoints for a Store
type API struct {
	store  *Store
	logger *slog.Logger
}

// NewRouter builds the tag API. tokens may be nil to serve without
// authentication.
func NewRouter(store *Store, tokens *auth.Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "plcsim")

	a := &API{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JWTAuth(tokens))

		r.Get("/device", a.Device)
		r.Get("/state", a.GetState)
		r.Put("/state", a.SetState)

		r.Route("/symbols", func(r chi.Router) {
			r.Get("/", a.ListSymbols)
			r.Get("/{name}", a.GetSymbol)
			r.Put("/{name}", a.WriteSymbol)
		})
	})

	return r
}

// Device handles GET /api/v1/device
func (a *API) Device(w http.ResponseWriter, r *http.Request) {
	d := a.store.Device()
	common.SendJSON(w, http.StatusOK, deviceResponse{Name: d.Name, Vendor: d.Vendor, Version: d.Version})
}

// GetState handles GET /api/v1/state
func (a *API) GetState(w http.ResponseWriter, r *http.Request) {
	common.SendJSON(w, http.StatusOK, stateRequest{State: a.store.State().String()})
}

// SetState handles PUT /api/v1/state
func (a *API) SetState(w http.ResponseWriter, r *http.Request) {
	input, ok := common.DecodeJSON[stateRequest](w, r)
	if !ok {
		return
	}

	if err := a.store.SetState(input.State); err != nil {
		common.SendError(w, r, http.StatusBadRequest, "INVALID_STATE", "Unknown run state", err)
		return
	}

	a.logger.Info("run state changed", "state", a.store.State().String())
	common.SendJSON(w, http.StatusOK, stateRequest{State: a.store.State().String()})
}

// ListSymbols handles GET /api/v1/symbols
func (a *API) ListSymbols(w http.ResponseWriter, r *http.Request) {
	annotated := r.URL.Query().Get("annotated") == "true"
	common.SendJSON(w, http.StatusOK, a.store.Symbols(annotated))
}

// GetSymbol handles GET /api/v1/symbols/{name}
func (a *API) GetSymbol(w http.ResponseWriter, r *http.Request) {
	sym, err := a.store.Symbol(chi.URLParam(r, "name"))
	if err != nil {
		a.sendStoreError(w, r, err)
		return
	}
	common.SendJSON(w, http.StatusOK, sym)
}

// WriteSymbol handles PUT /api/v1/symbols/{name}
func (a *API) WriteSymbol(w http.ResponseWriter, r *http.Request) {
	input, ok := common.DecodeJSON[writeRequest](w, r)
	if !ok {
		return
	}
	if input.Value == nil {
		common.SendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "value is required", nil)
		return
	}

	name := chi.URLParam(r, "name")
	if err := a.store.Write(name, *input.Value); err != nil {
		a.sendStoreError(w, r, err)
		return
	}

	a.logger.Debug("symbol written", "symbol", name, "value", *input.Value)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) sendStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrSymbolNotFound) {
		common.SendError(w, r, http.StatusNotFound, "NOT_FOUND", "Symbol not found", err)
		return
	}
	common.SendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Store operation failed", err)
}
