// Package handlers implements the submission/HITL/admin HTTP boundary of
// spec.md §6, grounded on the teacher's internal/http/handlers shape.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	"github.com/ridgeline-labs/review-orchestrator/internal/feedback"
	httpresponse "github.com/ridgeline-labs/review-orchestrator/internal/http/response"
	"github.com/ridgeline-labs/review-orchestrator/internal/llm"
	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
	"github.com/ridgeline-labs/review-orchestrator/internal/orchestrator"
	pkgerrors "github.com/ridgeline-labs/review-orchestrator/internal/pkg/errors"
	"github.com/ridgeline-labs/review-orchestrator/internal/progress"
	"github.com/ridgeline-labs/review-orchestrator/internal/store"
	"github.com/ridgeline-labs/review-orchestrator/internal/title"
)

// JobsHandler implements job submission, HITL feedback, and the progress
// stream — the three operations spec.md §6 requires of the submission
// surface.
type JobsHandler struct {
	store  store.Store
	engine *orchestrator.Engine
	inbox  *feedback.Inbox
	hub    *progress.Hub
	llm    llm.Gateway // used only for title inference on submission
	log    *logger.Logger

	idemMu  sync.Mutex
	idemKey map[string]int64 // Idempotency-Key -> job_id; in memory, entries never expire
}

func NewJobsHandler(st store.Store, engine *orchestrator.Engine, inbox *feedback.Inbox, hub *progress.Hub, gateway llm.Gateway, log *logger.Logger) *JobsHandler {
	return &JobsHandler{
		store:   st,
		engine:  engine,
		inbox:   inbox,
		hub:     hub,
		llm:     gateway,
		log:     log.With("component", "JobsHandler"),
		idemKey: make(map[string]int64),
	}
}

type submitRequest struct {
	Domain          string `json:"domain"`
	Division        string `json:"division"`
	HitlStages      []int  `json:"hitl_stages"`
	ProposalContent string `json:"proposal_content"`
	Segments        []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"segments,omitempty"`
}

type pageRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type submitResponse struct {
	JobID     int64     `json:"job_id"`
	Status    string    `json:"status"`
	Pages     []pageRef `json:"pages,omitempty"`
	PageCount int       `json:"page_count"`
}

// CreateJob is POST /jobs: validates the submission, creates the job row,
// infers a title, and launches the orchestrator. Body carries
// {domain, division, hitl_stages, proposal_content|segments} per spec.md
// §6; an optional Idempotency-Key header (SPEC_FULL.md §7) makes retried
// submissions return the original job instead of creating a duplicate.
func (h *JobsHandler) CreateJob(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresponse.Error(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.ProposalContent) == "" && len(req.Segments) == 0 {
		httpresponse.Error(c, http.StatusBadRequest, "missing_content", errMissingContent)
		return
	}

	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		if jobID, ok := h.lookupIdempotent(key); ok {
			job, err := h.store.GetJob(c.Request.Context(), jobID)
			if err == nil {
				c.JSON(http.StatusOK, toSubmitResponse(job))
				return
			}
		}
	}

	segments := make([]domain.Segment, 0, len(req.Segments))
	for _, s := range req.Segments {
		segments = append(segments, domain.Segment{ID: s.ID, Title: s.Title, Body: s.Body})
	}

	job := &domain.Job{
		Domain:          req.Domain,
		Division:        req.Division,
		ProposalContent: req.ProposalContent,
		Segments:        segments,
		HitlStages:      req.HitlStages,
		Status:          domain.StatusPending,
	}
	job.Title = title.Generate(c.Request.Context(), h.llm, req.ProposalContent)

	jobID, err := h.store.CreateJob(c.Request.Context(), job)
	if err != nil {
		httpresponse.Error(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	job.ID = jobID

	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		h.rememberIdempotent(key, jobID)
	}

	h.engine.Submit(jobID)

	c.JSON(http.StatusAccepted, toSubmitResponse(job))
}

func toSubmitResponse(job *domain.Job) submitResponse {
	pageCount := len(job.Segments)
	if pageCount == 0 {
		pageCount = 1
	}
	resp := submitResponse{JobID: job.ID, Status: "submitted", PageCount: pageCount}
	for _, seg := range job.Segments {
		resp.Pages = append(resp.Pages, pageRef{ID: seg.ID, Title: seg.Title})
	}
	return resp
}

func (h *JobsHandler) lookupIdempotent(key string) (int64, bool) {
	h.idemMu.Lock()
	defer h.idemMu.Unlock()
	id, ok := h.idemKey[key]
	return id, ok
}

func (h *JobsHandler) rememberIdempotent(key string, jobID int64) {
	h.idemMu.Lock()
	defer h.idemMu.Unlock()
	h.idemKey[key] = jobID
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
	Skip     bool   `json:"skip,omitempty"`
}

// PublishFeedback is POST /jobs/:id/feedback: delivers HITL feedback (or a
// skip) into the Feedback Inbox for the currently open checkpoint.
func (h *JobsHandler) PublishFeedback(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		httpresponse.Error(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresponse.Error(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	h.inbox.PublishFeedback(jobID, feedback.Value{Text: req.Feedback, Skip: req.Skip})
	httpresponse.OK(c, gin.H{"accepted": true})
}

// Stream is GET /jobs/:id/stream: a long-lived SSE connection relaying
// every progress.Event published for this job, grounded on the teacher's
// SSEHub.ServeHTTP.
func (h *JobsHandler) Stream(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		httpresponse.Error(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpresponse.Error(c, http.StatusInternalServerError, "streaming_unsupported", errStreamingUnsupported)
		return
	}

	obs := h.hub.Subscribe(jobID)
	defer h.hub.Unsubscribe(obs)

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(w, "ping", `{}`)
			flusher.Flush()
		case ev, ok := <-obs.Events:
			if !ok {
				return
			}
			payload, err := marshalEvent(ev)
			if err != nil {
				h.log.Warn("failed to marshal progress event", "job_id", jobID, "error", err)
				continue
			}
			writeSSE(w, string(ev.Kind), payload)
			flusher.Flush()
		}
	}
}

// GetJob is GET /jobs/:id: a detail fetch for the submitting client (no
// admin filters, just the one job's current state).
func (h *JobsHandler) GetJob(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		httpresponse.Error(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pkgerrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		httpresponse.Error(c, status, "job_not_found", err)
		return
	}
	httpresponse.OK(c, job)
}

func parseJobID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
