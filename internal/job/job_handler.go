package job

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/common"
	"github.com/joeflack4/genonaut/internal/dto"
	"github.com/joeflack4/genonaut/internal/events"
	"github.com/joeflack4/genonaut/internal/storage/postgres"
	"github.com/joeflack4/genonaut/middleware"
)

type JobHandler struct {
	service JobServiceInterface
	gateway *events.Gateway
}

func NewJobHandler(s JobServiceInterface, g *events.Gateway) *JobHandler {
	return &JobHandler{service: s, gateway: g}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// Create handles HTTP requests for submitting a new generation job.
// It validates and binds the request body, delegates business logic to the
// JobService, and returns HTTP 201 with the created job.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.JobCreateDTO

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	resp, err := h.service.CreateJob(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Get handles HTTP requests to fetch a job by its ID.
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Cancel handles HTTP requests to cancel a job. Returns HTTP 200 with the
// cancelled job, or HTTP 409 when the job already reached a terminal state.
func (h *JobHandler) Cancel(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	resp, err := h.service.CancelJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List handles HTTP requests to retrieve all jobs for a given user.
func (h *JobHandler) List(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.APIError{Message: "user_id parameter is required"})
		return
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

// Events streams a job's status transitions to the client as server-sent
// events. The current status is replayed immediately on connect and the
// stream ends after the first terminal event.
func (h *JobHandler) Events(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	stream, err := h.gateway.Stream(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			c.JSON(http.StatusNotFound, common.APIError{Message: "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, common.APIError{Message: "failed to open stream"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent("status", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.APIError{Message: "invalid job ID"})
		return uuid.Nil, false
	}
	return id, true
}
