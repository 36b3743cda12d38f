package runlog

import (
	"encoding/json"
	"time"

	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TriggerPreviousDay = "previous_day"
	TriggerRange       = "range"
)

// Run is one persisted reconciliation invocation.
type Run struct {
	ID                uuid.UUID      `gorm:"primaryKey;column:id;size:36" json:"id"`
	Trigger           string         `gorm:"column:run_trigger;size:32;index" json:"trigger"`
	WindowStart       time.Time      `gorm:"column:window_start" json:"window_start"`
	WindowEnd         time.Time      `gorm:"column:window_end" json:"window_end"`
	Success           bool           `gorm:"column:success" json:"success"`
	RecordsSeen       int            `gorm:"column:records_seen" json:"records_seen"`
	PatientsCreated   int            `gorm:"column:patients_created" json:"patients_created"`
	PatientsSkipped   int            `gorm:"column:patients_skipped" json:"patients_skipped"`
	EncountersCreated int            `gorm:"column:encounters_created" json:"encounters_created"`
	EncountersSkipped int            `gorm:"column:encounters_skipped" json:"encounters_skipped"`
	CompaniesRepaired int            `gorm:"column:companies_repaired" json:"companies_repaired"`
	Errors            datatypes.JSON `gorm:"column:errors" json:"errors"`
	ErrorMessage      string         `gorm:"column:error_message" json:"error_message,omitempty"`
	StartedAt         time.Time      `gorm:"column:started_at;index" json:"started_at"`
	FinishedAt        time.Time      `gorm:"column:finished_at" json:"finished_at"`
}

func (Run) TableName() string {
	return "reconciliation_runs"
}

// NewRun builds the history row for a finished invocation. result is nil
// when extraction failed before the engine ran.
func NewRun(trigger string, window models.Window, result *models.ReconciliationResult, runErr error, startedAt, finishedAt time.Time) *Run {
	run := &Run{
		ID:          uuid.New(),
		Trigger:     trigger,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		StartedAt:   startedAt.UTC(),
		FinishedAt:  finishedAt.UTC(),
		Errors:      datatypes.JSON("[]"),
	}
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	if result == nil {
		return run
	}

	run.Success = result.Success && runErr == nil
	run.RecordsSeen = result.RecordsSeen
	run.PatientsCreated = result.Patients.Created
	run.PatientsSkipped = result.Patients.Skipped
	run.EncountersCreated = result.Encounters.Created
	run.EncountersSkipped = result.Encounters.Skipped
	run.CompaniesRepaired = result.CompaniesRepaired
	if len(result.Errors) > 0 {
		if encoded, err := json.Marshal(result.Errors); err == nil {
			run.Errors = datatypes.JSON(encoded)
		}
	}
	return run
}

// Diagnostics decodes the stored record diagnostics.
func (r *Run) Diagnostics() []string {
	var out []string
	if len(r.Errors) == 0 {
		return out
	}
	if err := json.Unmarshal(r.Errors, &out); err != nil {
		return nil
	}
	return out
}
