package httptransport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"geo-export-service/internal/apperr"
	"geo-export-service/internal/entity"
	"geo-export-service/internal/service"
)

const maxBodyBytes = 10 << 20

type Handler struct {
	jobSvc   *service.JobService
	querySvc *service.QueryService
	logger   *zap.Logger
}

func NewHandler(jobSvc *service.JobService, querySvc *service.QueryService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{jobSvc: jobSvc, querySvc: querySvc, logger: logger}
}

// jobRequest is the body of every count/download endpoint. Fields are kept raw
// because filters are normalized, not validated, and compress is coerced.
type jobRequest struct {
	Filters  json.RawMessage `json:"filters,omitempty" swaggertype:"object"`
	Compress json.RawMessage `json:"compress,omitempty" swaggertype:"boolean"`

	raw json.RawMessage
}

type acceptedResp struct {
	JobID   string           `json:"jobId"`
	Status  entity.JobStatus `json:"status"`
	JobType entity.JobType   `json:"jobType"`
}

type countResp struct {
	Count int64 `json:"count"`
}

type jobResp struct {
	JobID     string           `json:"jobId"`
	JobType   entity.JobType   `json:"jobType"`
	Status    entity.JobStatus `json:"status"`
	CreatedAt string           `json:"createdAt"`
	Result    *entity.Result   `json:"result,omitempty"`
	Error     *string          `json:"error,omitempty"`
}

// CreateCountJob godoc
// @Summary Queue a count job
// @Description Normalizes filters, records a QUEUED job and enqueues it. Accepts {filters:{...}} or the filter object itself.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body jobRequest true "filters"
// @Success 202 {object} acceptedResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /api/count [post]
func (h *Handler) CreateCountJob(w http.ResponseWriter, r *http.Request) {
	h.createJob(w, r, entity.JobTypeCount)
}

// CreateExportJob godoc
// @Summary Queue an export job
// @Description Normalizes filters, records a QUEUED job and enqueues it. The artifact link appears on the job once DONE.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body jobRequest true "filters and compress flag"
// @Success 202 {object} acceptedResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /api/download [post]
func (h *Handler) CreateExportJob(w http.ResponseWriter, r *http.Request) {
	h.createJob(w, r, entity.JobTypeExport)
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request, typ entity.JobType) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobSvc.CreateJob(r.Context(), service.CreateJobRequest{
		Type:     typ,
		Filters:  req.filters(typ == entity.JobTypeCount),
		Compress: truthy(req.Compress),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResp{
		JobID:   job.ID.String(),
		Status:  job.Status,
		JobType: job.Type,
	})
}

// GetCountJob godoc
// @Summary Poll a count job
// @Tags jobs
// @Produce json
// @Param jobId path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 404 {object} apiError
// @Router /api/count/{jobId} [get]
func (h *Handler) GetCountJob(w http.ResponseWriter, r *http.Request) {
	h.getJob(w, r, entity.JobTypeCount)
}

// GetExportJob godoc
// @Summary Poll an export job
// @Tags jobs
// @Produce json
// @Param jobId path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 404 {object} apiError
// @Router /api/download/{jobId} [get]
func (h *Handler) GetExportJob(w http.ResponseWriter, r *http.Request) {
	h.getJob(w, r, entity.JobTypeExport)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request, typ entity.JobType) {
	id, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		writeErr(w, http.StatusNotFound, "job not found")
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id, typ)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := jobResp{
		JobID:     j.ID.String(),
		JobType:   j.Type,
		Status:    j.Status,
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339),
	}
	switch j.Status {
	case entity.StatusDone:
		resp.Result = j.Result
	case entity.StatusError:
		resp.Error = j.Error
	}

	writeJSON(w, http.StatusOK, resp)
}

// Count godoc
// @Summary Count matching features now
// @Description Runs the count inline. Accepts {filters:{...}} or the filter object itself.
// @Tags query
// @Accept json
// @Produce json
// @Param request body jobRequest true "filters"
// @Success 200 {object} countResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /count [post]
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.querySvc.Count(r.Context(), req.filters(true))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResp{Count: n})
}

// Download godoc
// @Summary Export matching features now
// @Description Streams the export back as the response body: GeoJSON, or a zip holding it when compress is set.
// @Tags query
// @Accept json
// @Produce application/geo+json
// @Produce application/zip
// @Param request body jobRequest true "filters and compress flag"
// @Success 200 {file} file
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /download [post]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	art, err := h.querySvc.Export(r.Context(), req.filters(false), truthy(req.Compress))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer func() {
		if cerr := art.Cleanup(); cerr != nil {
			h.logger.Warn("artifact cleanup failed", zap.String("path", art.Dir), zap.Error(cerr))
		}
	}()

	f, err := os.Open(art.Path)
	if err != nil {
		h.fail(w, r, apperr.Internal("open artifact", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	if art.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(art.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("artifact write interrupted", zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	switch code {
	case http.StatusNotFound:
		writeErr(w, code, "job not found")
		return
	case http.StatusInternalServerError:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeErr(w, code, apperr.PublicMessage(err))
}

// decodeRequest reads a JSON object body. An empty body counts as {}.
func decodeRequest(w http.ResponseWriter, r *http.Request) (*jobRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.New("Request body too large")
		}
		return nil, errors.New("Invalid JSON in request body")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}

	var req jobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.New("Invalid JSON in request body")
	}
	req.raw = body
	return &req, nil
}

// filters returns the filter payload. With topLevel, a body without a
// "filters" key is itself taken as the filter object.
func (q *jobRequest) filters(topLevel bool) json.RawMessage {
	if len(q.Filters) > 0 {
		return q.Filters
	}
	if topLevel {
		return q.raw
	}
	return nil
}

// truthy coerces a loosely typed flag: true, non-zero numbers and the strings
// 1/true/yes/on (any case) are true; everything else is false.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true
		}
	}
	return false
}
