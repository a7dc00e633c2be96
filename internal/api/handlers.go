package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kuhlman-labs/jamf-redeploy/internal/batch"
	"github.com/kuhlman-labs/jamf-redeploy/internal/csvimport"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
	"github.com/kuhlman-labs/jamf-redeploy/internal/storage"
)

// maxUploadBytes caps the size of an uploaded CSV
const maxUploadBytes = 10 << 20

const defaultRunsLimit = 50

// credentialsRequest optionally overrides the configured Jamf credentials
type credentialsRequest struct {
	BaseURL      string `json:"base_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func (c credentialsRequest) toCredentials() models.Credentials {
	return models.Credentials{BaseURL: c.BaseURL, ClientID: c.ClientID, ClientSecret: c.ClientSecret}
}

type redeployRequest struct {
	credentialsRequest
	SerialNumber string `json:"serial_number"`
}

// BatchResponse is the body of GET /api/v1/batch
type BatchResponse struct {
	batch.Snapshot
	Running     bool              `json:"running"`
	LastOutcome *batch.RunOutcome `json:"last_outcome,omitempty"`
}

// LoadResponse is the body of a successful POST /api/v1/batch
type LoadResponse struct {
	Loaded    int  `json:"loaded"`
	Skipped   int  `json:"skipped"`
	HasHeader bool `json:"has_header"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleGetBatch handles GET /api/v1/batch
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.batchResponse())
}

func (s *Server) batchResponse() BatchResponse {
	return BatchResponse{
		Snapshot:    s.manager.Snapshot(),
		Running:     s.manager.Running(),
		LastOutcome: s.manager.LastOutcome(),
	}
}

// handleLoadBatch handles POST /api/v1/batch. The body is the raw CSV text.
func (s *Server) handleLoadBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Failed to read CSV body")
		return
	}

	res, err := s.manager.Load(string(body))
	if err != nil {
		s.sendManagerError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, LoadResponse{
		Loaded:    len(res.Records),
		Skipped:   res.Skipped,
		HasHeader: res.HasHeader,
	})
}

// handleClearBatch handles DELETE /api/v1/batch
func (s *Server) handleClearBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Clear(); err != nil {
		s.sendManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetBatch handles POST /api/v1/batch/reset
func (s *Server) handleResetBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Reset(); err != nil {
		s.sendManagerError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.batchResponse())
}

// handleRunBatch handles POST /api/v1/batch/run. The run continues after the
// response is written; poll GET /api/v1/batch for progress.
func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decodeOptionalJSON(w, r, &req) {
		return
	}

	creds, err := s.creds.Credentials(req.toCredentials())
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.manager.Batch().Len() == 0 {
		s.sendError(w, http.StatusBadRequest, batch.ErrEmptyBatch.Error())
		return
	}

	if err := s.manager.Start(s.runCtx, creds); err != nil {
		s.sendManagerError(w, err)
		return
	}

	s.logger.Info("Bulk redeploy started over HTTP", "total", s.manager.Batch().Len())
	s.sendJSON(w, http.StatusAccepted, s.batchResponse())
}

// handleCancelBatch handles POST /api/v1/batch/cancel
func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	if !s.manager.Cancel() {
		s.sendError(w, http.StatusConflict, "No bulk redeploy is running")
		return
	}
	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleRedeployOne handles POST /api/v1/redeploy
func (s *Server) handleRedeployOne(w http.ResponseWriter, r *http.Request) {
	var req redeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	creds, err := s.creds.Credentials(req.toCredentials())
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.manager.RedeployOne(r.Context(), creds, req.SerialNumber)
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrMissingSerial):
			s.sendError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, batch.ErrComputerNotFound):
			s.sendError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, batch.ErrAuthentication), errors.Is(err, batch.ErrRedeployFailed):
			s.sendError(w, http.StatusBadGateway, err.Error())
		default:
			s.logger.Error("Single redeploy failed", "serial", req.SerialNumber, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Redeploy failed")
		}
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

// handleListRuns handles GET /api/v1/runs?limit=N
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Run history is disabled")
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch runs")
		return
	}
	s.sendJSON(w, http.StatusOK, runs)
}

// handleGetRun handles GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Run history is disabled")
		return
	}

	runID := r.PathValue("id")
	run, err := s.history.GetRun(r.Context(), runID)
	if errors.Is(err, storage.ErrRunNotFound) {
		s.sendError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to get run", "run_id", runID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to fetch run")
		return
	}
	s.sendJSON(w, http.StatusOK, run)
}

// decodeOptionalJSON decodes a JSON body when one is present
func (s *Server) decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.sendError(w, http.StatusBadRequest, "Invalid request body")
	return false
}

// sendManagerError maps batch manager and ingestion errors to HTTP statuses
func (s *Server) sendManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, batch.ErrRunInProgress):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, csvimport.ErrEmptyInput), errors.Is(err, csvimport.ErrNoValidRecords):
		s.sendError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Batch operation failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, err.Error())
	}
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
