// Package downloads simulates bandwidth-paced downloads whose concurrency is
// bounded by a replaceable admission controller.
package downloads

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Active reports whether a task in status s still counts toward the workload:
// waiting for a permit, transferring or paused.
func (s Status) Active() bool {
	return !s.Terminal()
}

// Snapshot is a consistent, copyable view of a task.
type Snapshot struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Status          Status     `json:"status"`
	Message         string     `json:"message"`
	TotalBytes      int64      `json:"total_bytes"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	Fraction        float64    `json:"fraction"`
	SpeedBps        int64      `json:"speed_bps"`
	RateBps         float64    `json:"rate_bps"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

type EventKind string

const (
	EventCreated  EventKind = "created"
	EventStatus   EventKind = "status"
	EventProgress EventKind = "progress"
	EventRemoved  EventKind = "removed"
)

// Event is published on the manager's Hub whenever a task changes.
type Event struct {
	Kind EventKind `json:"kind"`
	Task Snapshot  `json:"task"`
	At   time.Time `json:"at"`
}

// DownloadTask is the read/control surface a presentation layer needs.
// *Task implements it.
type DownloadTask interface {
	ID() uuid.UUID
	Title() string
	TotalBytes() int64
	DownloadedBytes() int64
	Fraction() float64
	Message() string
	Status() Status
	Snapshot() Snapshot

	Pause()
	Resume()
	Cancel()
}
