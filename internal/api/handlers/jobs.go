package handlers

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/api/middleware"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/pipeline"
)

// SearchService runs or queues interactive searches
type SearchService interface {
	Submit(ctx context.Context, req pipeline.SearchRequest) (*pipeline.SearchResponse, error)
}

// ExtractService starts extractions
type ExtractService interface {
	Submit(ctx context.Context, urls []string, prompt string) (string, error)
}

// PollService checks extractions
type PollService interface {
	Poll(ctx context.Context, userID string, req pipeline.PollRequest) (*pipeline.PollResult, error)
}

// CronService runs the scheduled ingestion
type CronService interface {
	Run(ctx context.Context) (*pipeline.CronResult, error)
}

// ExtractRequest is the body of POST /api/jobs/extract
type ExtractRequest struct {
	URLs   []string `json:"urls" validate:"required,min=1,max=50,dive,required"`
	Prompt string   `json:"prompt"`
}

// JobsHandler handles the ingestion API
type JobsHandler struct {
	search   SearchService
	extract  ExtractService
	poll     PollService
	cron     CronService
	validate *validator.Validate
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(search SearchService, extract ExtractService, poll PollService, cron CronService) *JobsHandler {
	return &JobsHandler{
		search:   search,
		extract:  extract,
		poll:     poll,
		cron:     cron,
		validate: validator.New(),
	}
}

// Search handles POST /api/jobs/search
func (h *JobsHandler) Search(c *fiber.Ctx) error {
	var req pipeline.SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	uid, ok := resolveUser(c, req.UserID)
	if !ok {
		return respondError(c, domain.ErrUnauthorized)
	}
	req.UserID = uid

	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	resp, err := h.search.Submit(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// Extract handles POST /api/jobs/extract
func (h *JobsHandler) Extract(c *fiber.Ctx) error {
	var req ExtractRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	id, err := h.extract.Submit(c.UserContext(), req.URLs, req.Prompt)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"jobId":   id,
		"status":  domain.ExtractionProcessing,
	})
}

// ExtractStatus handles POST /api/jobs/extract/status. The provider's
// status body is returned with jobsInserted added; provider errors keep the
// provider's status code.
func (h *JobsHandler) ExtractStatus(c *fiber.Ctx) error {
	var req pipeline.PollRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	uid, ok := resolveUser(c, "")
	if !ok || uid == "" {
		return respondError(c, domain.ErrUnauthorized)
	}

	res, err := h.poll.Poll(c.UserContext(), uid, req)
	if err != nil {
		if up, ok := domain.AsUpstream(err); ok && up.Kind == domain.UpstreamHTTP && up.Status >= 400 {
			return c.Status(up.Status).JSON(fiber.Map{
				"error":   "provider_error",
				"message": up.Body,
			})
		}
		return respondError(c, err)
	}

	body := statusBody(res.Extraction)
	body["jobsInserted"] = res.JobsInserted
	return c.JSON(body)
}

// Cron handles POST /api/jobs/cron
func (h *JobsHandler) Cron(c *fiber.Ctx) error {
	res, err := h.cron.Run(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": err.Error(),
		})
	}
	return c.JSON(res)
}

// resolveUser reconciles the authenticated user with the user named in the
// body. Without auth the body decides; with auth a different body user is
// rejected.
func resolveUser(c *fiber.Ctx, bodyUserID string) (string, bool) {
	authed := middleware.UserID(c)
	switch {
	case authed == "":
		return bodyUserID, true
	case bodyUserID == "" || bodyUserID == authed:
		return authed, true
	default:
		return "", false
	}
}

func statusBody(ext *domain.ExtractionJob) map[string]any {
	body := make(map[string]any)
	if ext == nil {
		return body
	}
	if len(ext.Raw) > 0 && json.Unmarshal(ext.Raw, &body) == nil && len(body) > 0 {
		return body
	}
	if b, err := json.Marshal(ext); err == nil {
		_ = json.Unmarshal(b, &body)
	}
	return body
}
