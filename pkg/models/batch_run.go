package models

import "time"

// BatchRunMode describes how much of the candidate space a run rescored
type BatchRunMode string

const (
	BatchRunModeFull        BatchRunMode = "full"
	BatchRunModeIncremental BatchRunMode = "incremental"
)

// BatchRun records a successful batch comparator run
type BatchRun struct {
	ID            string       `json:"id" db:"id"`
	Mode          BatchRunMode `json:"mode" db:"mode"`
	Fingerprint   string       `json:"fingerprint" db:"fingerprint"`
	Watermark     time.Time    `json:"watermark" db:"watermark"`
	StartedAt     time.Time    `json:"started_at" db:"started_at"`
	FinishedAt    time.Time    `json:"finished_at" db:"finished_at"`
	Participants  int          `json:"participants" db:"participants"`
	PairsScored   int          `json:"pairs_scored" db:"pairs_scored"`
	PairsUpserted int          `json:"pairs_upserted" db:"pairs_upserted"`
	PairsRemoved  int          `json:"pairs_removed" db:"pairs_removed"`
	PairsSkipped  int          `json:"pairs_skipped" db:"pairs_skipped"`
}
