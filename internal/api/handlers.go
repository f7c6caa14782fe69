package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RevCBH/loadnode/internal/container"
	"github.com/RevCBH/loadnode/internal/orchestrator"
	"github.com/RevCBH/loadnode/internal/workspace"
)

const maxStartBody = 512 << 20

// StartRequest is the body of POST /jmeter/container/start. TestJars values
// travel base64-encoded.
type StartRequest struct {
	TestID     string            `json:"testId"`
	Image      string            `json:"image"`
	Env        map[string]string `json:"env"`
	FileString string            `json:"fileString"`
	TestData   map[string]string `json:"testData"`
	TestJars   map[string][]byte `json:"testJars"`
}

// RunRequest converts the wire body to an orchestrator request.
func (s StartRequest) RunRequest() orchestrator.RunRequest {
	return orchestrator.RunRequest{
		RunID:          s.TestID,
		Image:          s.Image,
		Env:            s.Env,
		TestDefinition: s.FileString,
		DataFiles:      s.TestData,
		BinaryFiles:    s.TestJars,
	}
}

// HealthResponse is the body of GET /status.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// validateID rejects path IDs that cannot name a run or report.
func validateID(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !workspace.ValidRunID(chi.URLParam(r, param)) {
				http.Error(w, "invalid "+param, http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *handler) start(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStartBody)).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.svc.Start(r.Context(), body.RunRequest()); err != nil {
		h.writeError(w, err)
		return
	}
	writeText(w, "OK")
}

func (h *handler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Stop(r.Context(), chi.URLParam(r, "testId")); err != nil {
		h.writeError(w, err)
		return
	}
	writeText(w, "OK")
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Status(r.Context(), chi.URLParam(r, "testId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []container.Summary{}
	}
	writeJSON(w, list)
}

func (h *handler) logs(w http.ResponseWriter, r *http.Request) {
	writeText(w, h.svc.Logs(r.Context(), chi.URLParam(r, "testId")))
}

func (h *handler) downloadJTL(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportId")
	data := h.svc.FetchArtifact(reportID)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reportID+".jtl"))
	_, _ = w.Write(data)
}

func (h *handler) deleteJTL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.DeleteArtifact(chi.URLParam(r, "reportId")))
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Version: h.version})
}

func (h *handler) getMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, h.metrics(r.Context()))
}

// writeError maps orchestrator errors to status codes.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		code = http.StatusBadRequest
	case orchestrator.IsPrecondition(err):
		code = http.StatusPreconditionFailed
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s))
}
