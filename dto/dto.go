package dto

import (
	"time"

	"github.com/google/uuid"
	"renderqueue/entities"
)

// EnqueueRequest is the body of POST /jobs. The image source may arrive
// under several names; resolution order is InputURL, ImageURL, then the
// payload keys input_url, image_url, album_cover_url, images[0].
type EnqueueRequest struct {
	Type     string         `json:"type" binding:"required"`
	Payload  map[string]any `json:"payload"`
	Priority int            `json:"priority"`
	InputURL string         `json:"input_url"`
	ImageURL string         `json:"image_url"`
}

type EnqueueResponse struct {
	Ok    bool      `json:"ok"`
	ID    uuid.UUID `json:"id,omitempty"`
	Error string    `json:"error,omitempty"`
}

// QueueJobRequest is the deduplicating enqueue used by the MusicScan
// backend: at most one active job per (sourceType, sourceId).
type QueueJobRequest struct {
	ImageURL   string `json:"imageUrl" binding:"required"`
	SourceType string `json:"sourceType" binding:"required"`
	SourceID   string `json:"sourceId"`
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Priority   int    `json:"priority"`
}

type QueueJobResponse struct {
	Success bool      `json:"success"`
	JobID   uuid.UUID `json:"jobId,omitempty"`
	Status  string    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type ClaimRequest struct {
	WorkerID string `json:"worker_id" binding:"required"`
}

type ClaimResponse struct {
	Ok    bool                `json:"ok"`
	Job   *entities.RenderJob `json:"job"`
	Error string              `json:"error,omitempty"`
}

type StatusUpdateRequest struct {
	ID           uuid.UUID      `json:"id" binding:"required"`
	Status       string         `json:"status" binding:"required"`
	Result       map[string]any `json:"result"`
	ErrorMessage string         `json:"error_message"`
	OutputURL    string         `json:"output_url"`
}

type HeartbeatRequest struct {
	ID                string         `json:"id" binding:"required"`
	Ts                *time.Time     `json:"ts"`
	Status            string         `json:"status"`
	PollingIntervalMs int            `json:"polling_interval_ms"`
	Metadata          map[string]any `json:"metadata"`
}

type ResetRequest struct {
	Minutes     int  `json:"minutes"`
	ResetErrors bool `json:"reset_errors"`
}

type ResetResponse struct {
	Success    bool                 `json:"success"`
	ResetCount int                  `json:"reset_count"`
	Jobs       []entities.RenderJob `json:"jobs"`
	Error      string               `json:"error,omitempty"`
}

type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

type ListResponse struct {
	Ok          bool                 `json:"ok"`
	Jobs        []entities.RenderJob `json:"jobs"`
	Stats       map[string]int64     `json:"stats"`
	WorkerStats *entities.WorkerStat `json:"worker_stats,omitempty"`
	Pagination  Pagination           `json:"pagination"`
	Error       string               `json:"error,omitempty"`
}

// EnqueueMessage is the AMQP variant of EnqueueRequest, published by the
// backend on render.job.request.
type EnqueueMessage struct {
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	Priority   int            `json:"priority"`
	ImageURL   string         `json:"imageUrl"`
	SourceType string         `json:"sourceType"`
	SourceID   string         `json:"sourceId"`
}

// JobEvent is published on render.job.queued and render.job.completed so
// the backend can refresh collection pages without polling.
type JobEvent struct {
	JobID     uuid.UUID `json:"jobId"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	OutputURL string    `json:"outputUrl,omitempty"`
}
