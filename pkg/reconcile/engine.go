package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clinicsync/admissions/pkg/admissions"
	"github.com/clinicsync/admissions/pkg/common/logger"
	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Engine merges extracted admissions into the local store. Entities are only
// ever created; rows that already exist are counted as skipped and left
// untouched. All writes of one call share a transaction that is committed
// once at the end, and every record runs under its own savepoint.
//
// Engine does not serialise concurrent calls.
type Engine struct {
	db     *gorm.DB
	repo   *admissions.Repository
	policy admissions.Policy
	now    func() time.Time
	commit func(tx *gorm.DB) error
}

func NewEngine(db *gorm.DB, policy admissions.Policy) *Engine {
	return &Engine{
		db:     db,
		repo:   admissions.NewRepository(db),
		policy: policy,
		now:    time.Now,
		commit: func(tx *gorm.DB) error { return tx.Commit().Error },
	}
}

// recordOutcome holds the counters of one record. They are merged into the
// result only when the record's savepoint survives.
type recordOutcome struct {
	patientsCreated   int
	patientsSkipped   int
	encountersCreated int
	encountersSkipped int
	companiesRepaired int
}

func (o recordOutcome) mergeInto(result *models.ReconciliationResult) {
	result.Patients.Created += o.patientsCreated
	result.Patients.Skipped += o.patientsSkipped
	result.Encounters.Created += o.encountersCreated
	result.Encounters.Skipped += o.encountersSkipped
	result.CompaniesRepaired += o.companiesRepaired
}

func (e *Engine) Reconcile(ctx context.Context, records []admissions.Record) (*models.ReconciliationResult, error) {
	result := &models.ReconciliationResult{
		Timestamp:   e.now(),
		RecordsSeen: len(records),
	}
	diags := newDiagnostics(e.policy.MaxDiagnostics)

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		result.Errors = diags.list()
		return result, CommitError{reason: fmt.Errorf("begin: %w", tx.Error)}
	}
	repo := e.repo.WithTx(tx)

	for i, record := range records {
		index := i + 1
		outcome, err := e.reconcileRecord(ctx, tx, repo, diags, index, record)
		if err != nil {
			diags.add(index, err)
			continue
		}
		outcome.mergeInto(result)
	}

	if err := e.commit(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && !errors.Is(rbErr, gorm.ErrInvalidTransaction) {
			logger.Log.WithError(rbErr).Error("rollback after failed commit")
		}
		logger.Log.WithError(err).WithField("records", len(records)).Error("reconciliation commit failed")
		failed := &models.ReconciliationResult{
			Success:     false,
			Timestamp:   result.Timestamp,
			RecordsSeen: result.RecordsSeen,
			Errors:      diags.list(),
		}
		return failed, CommitError{reason: err}
	}

	result.Success = true
	result.Errors = diags.list()

	logger.Log.WithFields(logrus.Fields{
		"records":            result.RecordsSeen,
		"patients_created":   result.Patients.Created,
		"patients_skipped":   result.Patients.Skipped,
		"encounters_created": result.Encounters.Created,
		"encounters_skipped": result.Encounters.Skipped,
		"companies_repaired": result.CompaniesRepaired,
		"diagnostics":        diags.total,
	}).Info("Reconciliation committed")

	return result, nil
}

// reconcileRecord applies one record under a savepoint. A returned error or a
// panic rolls the record back to the savepoint. The savepoint is released
// either way.
func (e *Engine) reconcileRecord(ctx context.Context, tx *gorm.DB, repo *admissions.Repository, diags *diagnostics, index int, record admissions.Record) (outcome recordOutcome, err error) {
	savepoint := fmt.Sprintf("record_%d", index)
	if err := tx.SavePoint(savepoint).Error; err != nil {
		return recordOutcome{}, fmt.Errorf("savepoint: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
		if err != nil {
			outcome = recordOutcome{}
			if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
				logger.Log.WithError(rbErr).WithField("record", index).Error("rollback to savepoint failed")
			}
		}
		// Released savepoints keep a long batch from stacking subtransactions.
		if relErr := tx.Exec("RELEASE SAVEPOINT " + savepoint).Error; relErr != nil {
			logger.Log.WithError(relErr).WithField("record", index).Warn("release savepoint failed")
		}
	}()

	return e.apply(ctx, tx, repo, diags, index, record)
}

func (e *Engine) apply(ctx context.Context, tx *gorm.DB, repo *admissions.Repository, diags *diagnostics, index int, record admissions.Record) (recordOutcome, error) {
	var outcome recordOutcome

	patientID := record.NaturalID()
	if patientID == "" {
		diags.add(index, RecordValidationError{Field: "natural id"})
		return outcome, nil
	}
	if !record.ConsecutiveID.Valid {
		diags.add(index, RecordValidationError{Field: "consecutive id"})
		return outcome, nil
	}

	patientAvailable, err := e.resolvePatient(ctx, repo, diags, index, record, &outcome)
	if err != nil {
		return outcome, err
	}

	encounterID := e.policy.EncounterID(record.ConsecutiveID.Int64)
	_, err = repo.FindEncounter(ctx, encounterID)
	switch {
	case err == nil:
		outcome.encountersSkipped++
		return outcome, nil
	case !errors.Is(err, admissions.ErrNotFound):
		return outcome, fmt.Errorf("looking up encounter %s: %w", encounterID, err)
	}

	if !patientAvailable {
		diags.add(index, RecordValidationError{
			Field:  "patient " + patientID,
			Detail: "encounter " + encounterID + " omitted",
		})
		return outcome, nil
	}
	if !record.CompanyID.Valid {
		diags.add(index, RecordValidationError{
			Field:  "company id",
			Detail: "encounter " + encounterID + " omitted",
		})
		return outcome, nil
	}

	companyID := record.CompanyID.Int64
	_, err = repo.FindCompany(ctx, companyID)
	switch {
	case errors.Is(err, admissions.ErrNotFound):
		if err := e.repairCompany(ctx, tx, repo, index, record); err != nil {
			var repairErr ReferentialRepairError
			if errors.As(err, &repairErr) {
				diags.add(index, repairErr)
				return outcome, nil
			}
			return outcome, err
		}
		outcome.companiesRepaired++
	case err != nil:
		return outcome, fmt.Errorf("looking up company %d: %w", companyID, err)
	}

	admittedAt := e.now()
	if record.AdmittedAt.Valid {
		admittedAt = record.AdmittedAt.Time
	}
	encounter := &admissions.Encounter{
		ID:         encounterID,
		PatientID:  patientID,
		CompanyID:  companyID,
		StatusID:   e.policy.DefaultStatusID,
		FollowUpID: e.policy.DefaultFollowUpID,
		AdmittedAt: admittedAt,
	}
	if err := repo.CreateEncounter(ctx, encounter); err != nil {
		return outcome, fmt.Errorf("creating encounter %s: %w", encounterID, err)
	}
	outcome.encountersCreated++

	logger.Log.WithFields(logrus.Fields{
		"record":       index,
		"encounter_id": encounterID,
		"patient_id":   patientID,
		"company_id":   companyID,
	}).Debug("Encounter staged")

	return outcome, nil
}

// resolvePatient reports whether the patient exists after the call, either
// because it was already stored or because it was created here.
func (e *Engine) resolvePatient(ctx context.Context, repo *admissions.Repository, diags *diagnostics, index int, record admissions.Record, outcome *recordOutcome) (bool, error) {
	patientID := record.NaturalID()

	_, err := repo.FindPatient(ctx, patientID)
	switch {
	case err == nil:
		outcome.patientsSkipped++
		return true, nil
	case !errors.Is(err, admissions.ErrNotFound):
		return false, fmt.Errorf("looking up patient %s: %w", patientID, err)
	}

	documentTypeID, ok := e.policy.ResolveDocumentType(record)
	if !ok {
		diags.add(index, RecordValidationError{
			Field:  "document type",
			Detail: "patient " + patientID + " not created",
		})
		return false, nil
	}

	if err := repo.CreatePatient(ctx, admissions.NewPatient(record, documentTypeID)); err != nil {
		return false, fmt.Errorf("creating patient %s: %w", patientID, err)
	}
	outcome.patientsCreated++
	return true, nil
}

// repairCompany inserts a placeholder company under a nested savepoint so a
// failed insert leaves the rest of the record intact.
func (e *Engine) repairCompany(ctx context.Context, tx *gorm.DB, repo *admissions.Repository, index int, record admissions.Record) error {
	stub := e.policy.CompanyStub(record)
	savepoint := fmt.Sprintf("record_%d_company", index)
	if err := tx.SavePoint(savepoint).Error; err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	if err := repo.CreateCompany(ctx, stub); err != nil {
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
			return fmt.Errorf("rolling back company %d stub: %w", stub.ID, rbErr)
		}
		return ReferentialRepairError{CompanyID: stub.ID, reason: err}
	}

	logger.Log.WithFields(logrus.Fields{
		"record":          index,
		"company_id":      stub.ID,
		"company_type_id": stub.CompanyTypeID,
		"name":            stub.Name,
	}).Info("Company stub created for missing payer")
	return nil
}
