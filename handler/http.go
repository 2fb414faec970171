package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"renderqueue/dto"
	"renderqueue/repository"
	"renderqueue/service"
)

type Handler struct {
	svc service.Service
}

func NewHandler(svc service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateJob(c *gin.Context) {
	var req dto.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.EnqueueResponse{Ok: false, Error: err.Error()})
		return
	}

	job, err := h.svc.Enqueue(c.Request.Context(), req)
	if errors.Is(err, service.ErrMissingImageURL) {
		c.JSON(http.StatusBadRequest, dto.EnqueueResponse{Ok: false, Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.EnqueueResponse{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.EnqueueResponse{Ok: true, ID: job.ID})
}

func (h *Handler) QueueJob(c *gin.Context) {
	var req dto.QueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.QueueJobResponse{Success: false, Error: err.Error()})
		return
	}

	job, created, err := h.svc.QueueForSource(c.Request.Context(), req)
	if errors.Is(err, service.ErrMissingImageURL) {
		c.JSON(http.StatusBadRequest, dto.QueueJobResponse{Success: false, Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.QueueJobResponse{Success: false, Error: err.Error()})
		return
	}

	message := "render job queued"
	if !created {
		message = "render job already queued for this source"
	}
	c.JSON(http.StatusOK, dto.QueueJobResponse{
		Success: true,
		JobID:   job.ID,
		Status:  job.Status.String(),
		Message: message,
	})
}

func (h *Handler) ClaimJob(c *gin.Context) {
	var req dto.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ClaimResponse{Ok: false, Error: err.Error()})
		return
	}

	job, err := h.svc.Claim(c.Request.Context(), req.WorkerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ClaimResponse{Ok: false, Error: err.Error()})
		return
	}
	// No candidate is a no-op success, not an error.
	c.JSON(http.StatusOK, dto.ClaimResponse{Ok: true, Job: job})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req dto.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	err := h.svc.UpdateStatus(c.Request.Context(), req)
	if errors.Is(err, service.ErrInvalidStatus) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) Heartbeat(c *gin.Context) {
	var req dto.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	if err := h.svc.Heartbeat(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "heartbeat recorded"})
}

func (h *Handler) ResetStuck(c *gin.Context) {
	// Body is entirely optional; a bare POST sweeps with defaults.
	var req dto.ResetRequest
	_ = c.ShouldBindJSON(&req)

	res, err := h.svc.Sweep(c.Request.Context(), minutesToDuration(req.Minutes), req.ResetErrors)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ResetResponse{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.ResetResponse{
		Success:    true,
		ResetCount: res.ResetCount,
		Jobs:       res.Jobs,
	})
}

func (h *Handler) ListJobs(c *gin.Context) {
	status := c.Query("status")
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	includeWorker := c.Query("worker_stats") == "true"

	resp, err := h.svc.List(c.Request.Context(), status, limit, offset, includeWorker)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ListResponse{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func minutesToDuration(minutes int) time.Duration {
	if minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}
