package model

import "time"

type SnapshotStatus string

const (
	SnapshotPending   SnapshotStatus = "pending"
	SnapshotUploading SnapshotStatus = "uploading"
	SnapshotCompleted SnapshotStatus = "completed"
	SnapshotFailed    SnapshotStatus = "failed"
)

// Snapshot is one encrypted copy of the database uploaded to object storage.
type Snapshot struct {
	ID           int64          `json:"id"`
	ObjectKey    string         `json:"object_key"`
	SizeBytes    int64          `json:"size_bytes"`
	Generations  int64          `json:"generations"`
	Status       SnapshotStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}
