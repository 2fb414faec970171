package entities

import (
	"time"

	"gorm.io/datatypes"
)

// WorkerStat is advisory liveness data, fully overwritten on every
// heartbeat. Nothing depends on it for correctness.
type WorkerStat struct {
	ID                string         `json:"id" gorm:"primaryKey"`
	LastHeartbeat     time.Time      `json:"last_heartbeat"`
	Status            string         `json:"status"`
	PollingIntervalMs int            `json:"polling_interval_ms"`
	Metadata          datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (WorkerStat) TableName() string {
	return "worker_stats"
}
