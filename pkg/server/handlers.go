package server

import (
	"encoding/json"
	"io"
	"net/http"

	kitlog "github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goji "goji.io/v3"
	"goji.io/v3/pat"

	"github.com/DECODEproject/iotdashboard/pkg/dashboard"
	"github.com/DECODEproject/iotdashboard/pkg/middleware"
)

// maxBodyBytes bounds the size of request bodies we will decode.
const maxBodyBytes = 1 << 20

// errorResponse is the JSON body rendered for any failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// deviceRequest is the body of a device command. State is left undecoded so
// that any JSON value can be reduced to on or off.
type deviceRequest struct {
	State interface{} `json:"state"`
}

// handler exposes the dashboard operations over HTTP.
type handler struct {
	dashboard *dashboard.Dashboard
	logger    kitlog.Logger
}

// NewMux returns the router serving the dashboard JSON API along with the
// pulse and metrics endpoints, wrapped in our standard middleware.
func NewMux(dash *dashboard.Dashboard, db Pinger, logger kitlog.Logger) *goji.Mux {
	h := &handler{
		dashboard: dash,
		logger:    logger,
	}

	mux := goji.NewMux()

	mux.Handle(pat.Get("/api/live-sensors"), http.HandlerFunc(h.liveSensors))
	mux.Handle(pat.Get("/api/temperature-history"), http.HandlerFunc(h.history))
	mux.Handle(pat.Post("/api/readings"), http.HandlerFunc(h.ingest))
	mux.Handle(pat.Post("/api/device/:name/set"), http.HandlerFunc(h.setDevice))
	mux.Handle(pat.Get("/api/security/list"), http.HandlerFunc(h.securityList))
	mux.Handle(pat.Get("/api/devices"), http.HandlerFunc(h.devices))
	mux.Handle(pat.Get("/api/dashboard"), http.HandlerFunc(h.summary))
	mux.Handle(pat.Get("/pulse"), PulseHandler(db))
	mux.Handle(pat.Get("/metrics"), promhttp.Handler())

	mux.Use(middleware.RequestIDMiddleware)

	metricsMiddleware := middleware.MetricsMiddleware("decode", "dashboard")
	mux.Use(metricsMiddleware)

	return mux
}

func (h *handler) liveSensors(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.dashboard.LiveStatus(r.Context()))
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	timeline, err := h.dashboard.History(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, timeline)
}

func (h *handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req dashboard.IngestRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	reading, err := h.dashboard.Ingest(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, reading)
}

func (h *handler) setDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cmd := h.dashboard.SetDevice(r.Context(), pat.Param(r, "name"), req.State)

	h.writeJSON(w, r, http.StatusOK, cmd)
}

func (h *handler) securityList(w http.ResponseWriter, r *http.Request) {
	events, err := h.dashboard.SecurityEvents(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, events)
}

func (h *handler) devices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.dashboard.Actuators())
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.dashboard.Summary(r.Context()))
}

// decodeBody decodes an optional JSON request body into v. An empty body
// leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && err != io.EOF {
		return dashboard.InvalidArgumentError("body", "must be a valid JSON object")
	}
	return nil
}

// writeJSON renders v as the JSON response body with the given status.
func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Log("msg", "failed to write response", "path", r.URL.Path, "err", err, "requestID", middleware.RequestID(r.Context()))
	}
}

// writeError renders err as a JSON error body. Argument errors are the
// caller's fault and are reported verbatim; anything else is logged and
// reported as an opaque internal error.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if dashboard.IsArgumentError(err) {
		h.writeJSON(w, r, http.StatusBadRequest, &errorResponse{Error: err.Error()})
		return
	}

	h.logger.Log("msg", "request failed", "path", r.URL.Path, "err", err, "requestID", middleware.RequestID(r.Context()))
	h.writeJSON(w, r, http.StatusInternalServerError, &errorResponse{Error: "internal server error"})
}
