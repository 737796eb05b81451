package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	httpresponse "github.com/ridgeline-labs/review-orchestrator/internal/http/response"
	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
	pkgerrors "github.com/ridgeline-labs/review-orchestrator/internal/pkg/errors"
	"github.com/ridgeline-labs/review-orchestrator/internal/pkg/pointers"
	"github.com/ridgeline-labs/review-orchestrator/internal/store"
)

// AdminHandler exposes the paged list/detail/update/delete/cancel surface
// spec.md §6 calls "out of core but must be unambiguous".
type AdminHandler struct {
	store store.Store
	log   *logger.Logger
}

func NewAdminHandler(st store.Store, log *logger.Logger) *AdminHandler {
	return &AdminHandler{store: st, log: log.With("component", "AdminHandler")}
}

type listResponse struct {
	Jobs  []domain.Job `json:"jobs"`
	Total int64        `json:"total"`
}

// ListJobs is GET /admin/jobs: paged, filtered by status/human_decision/
// llm_decision, plus a substring search over title/content.
func (h *AdminHandler) ListJobs(c *gin.Context) {
	filter := store.Filter{
		Status:        c.Query("status"),
		HumanDecision: domain.Decision(c.Query("human_decision")),
		LLMDecision:   domain.Decision(c.Query("llm_decision")),
		Search:        c.Query("q"),
	}
	page := store.Page{
		Offset: parseIntOrDefault(c.Query("offset"), 0),
		Limit:  parseIntOrDefault(c.Query("limit"), 20),
	}

	jobs, total, err := h.store.ListJobs(c.Request.Context(), filter, page)
	if err != nil {
		httpresponse.Error(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	httpresponse.OK(c, listResponse{Jobs: jobs, Total: total})
}

// GetJob is GET /admin/jobs/:id.
func (h *AdminHandler) GetJob(c *gin.Context) {
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

type updateJobRequest struct {
	Title           *string         `json:"title,omitempty"`
	Domain          *string         `json:"domain,omitempty"`
	Division        *string         `json:"division,omitempty"`
	ProposalContent *string         `json:"proposal_content,omitempty"`
	HitlStages      []int           `json:"hitl_stages,omitempty"`
	HumanDecision   *domain.Decision `json:"human_decision,omitempty"`
}

// UpdateJob is PATCH /admin/jobs/:id: the only surface allowed to write
// human_decision (spec.md §3), plus the editable submission fields named
// in spec.md §6.
func (h *AdminHandler) UpdateJob(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		httpresponse.Error(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresponse.Error(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	patch := store.Patch{
		Title:           req.Title,
		Domain:          req.Domain,
		Division:        req.Division,
		ProposalContent: req.ProposalContent,
		HitlStages:      req.HitlStages,
		HumanDecision:   req.HumanDecision,
	}
	job, err := h.store.UpdateJob(c.Request.Context(), jobID, patch)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pkgerrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		httpresponse.Error(c, status, "update_failed", err)
		return
	}
	httpresponse.OK(c, job)
}

// DeleteJob is DELETE /admin/jobs/:id.
func (h *AdminHandler) DeleteJob(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		httpresponse.Error(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	if err := h.store.DeleteJob(c.Request.Context(), jobID); err != nil {
		httpresponse.Error(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	httpresponse.OK(c, gin.H{"deleted": true})
}

// CancelJob is POST /admin/jobs/:id/cancel (SPEC_FULL.md §7, supplemented
// feature): sets status=canceled; the orchestrator checks this at each
// stage boundary before running the next stage.
func (h *AdminHandler) CancelJob(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		httpresponse.Error(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.store.UpdateJob(c.Request.Context(), jobID, store.Patch{Status: pointers.String(domain.StatusCanceled)})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pkgerrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		httpresponse.Error(c, status, "cancel_failed", err)
		return
	}
	httpresponse.OK(c, job)
}

func parseIntOrDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
