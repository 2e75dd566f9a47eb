package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/streampanel/resolvd/internal/model"
	"github.com/streampanel/resolvd/internal/resolver"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// installRequest is the JSON body for POST /v1/program.
type installRequest struct {
	SourceURL string `json:"source_url"`
}

// resolveRequest is the JSON body for POST /v1/resolve.
type resolveRequest struct {
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	ChannelName string            `json:"channel_name"`
	ProxyConfig json.RawMessage   `json:"proxy_config"`
}

// resolveResponse wraps the resolution outcome. Result is null when
// resolution is unavailable; the caller falls back to the unresolved URL.
type resolveResponse struct {
	Result *model.ResolveResult `json:"result"`
}

// scheduleRequest is the JSON body for PUT /v1/schedule.
type scheduleRequest struct {
	Interval string `json:"interval"`
}

// programHealthResponse is the JSON response for GET /v1/program/health.
type programHealthResponse struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// listRunsResponse wraps the paginated run history.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInstallProgram(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SourceURL == "" {
		s.writeError(w, http.StatusBadRequest, "source_url is required")
		return
	}

	if err := s.programs.Install(r.Context(), req.SourceURL); err != nil {
		s.engine.SetLastError(err.Error())
		s.logger.Error("install program", "source_url", req.SourceURL, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, resolver.ErrInvalidProgram) {
			status = http.StatusUnprocessableEntity
		}
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, s.programs.State())
}

func (s *Server) handleInstallTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.programs.InstallTemplate(r.Context()); err != nil {
		s.engine.SetLastError(err.Error())
		s.logger.Error("install template", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.programs.State())
}

func (s *Server) handleProgramHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.programs.CheckHealth(r.Context()); err != nil {
		s.writeJSON(w, http.StatusOK, programHealthResponse{Healthy: false, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, programHealthResponse{Healthy: true})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	result := s.engine.Resolve(r.Context(), model.ResolveRequest{
		URL:         req.URL,
		Headers:     req.Headers,
		DisplayName: req.ChannelName,
		ProxyConfig: req.ProxyConfig,
	})

	s.writeJSON(w, http.StatusOK, resolveResponse{Result: result})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.scheduler.Schedule(r.Context(), req.Interval); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, model.ScheduleState{
		HumanInterval: req.Interval,
		Active:        true,
	})
}

func (s *Server) handleStopSchedule(w http.ResponseWriter, r *http.Request) {
	wasActive := s.scheduler.Stop(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]bool{"was_active": wasActive})
}

func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	s.scheduler.RunNow(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.engine.Cache().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.reporter.Snapshot(r.Context()))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
