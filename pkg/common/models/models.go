package models

import (
	"time"
)

// Event bus envelope
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // reconciliation
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Window is a half-open admission time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

type EntityCounts struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// ReconciliationResult is the summary returned by every reconciliation entry point.
type ReconciliationResult struct {
	Success           bool         `json:"success"`
	Timestamp         time.Time    `json:"timestamp"`
	Window            *Window      `json:"window,omitempty"`
	RecordsSeen       int          `json:"records_seen"`
	Patients          EntityCounts `json:"patients"`
	Encounters        EntityCounts `json:"encounters"`
	CompaniesRepaired int          `json:"companies_repaired"`
	Errors            []string     `json:"errors"`
}
