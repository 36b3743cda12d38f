package reconcile

import (
	"errors"
	"fmt"
)

// RecordValidationError marks a source row lacking a mandatory key or
// reference. It is recovered locally and only surfaces as a diagnostic.
type RecordValidationError struct {
	Field  string
	Detail string
}

func (e RecordValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("missing %s, %s", e.Field, e.Detail)
	}
	return "missing " + e.Field
}

// ReferentialRepairError is returned when a company stub cannot be written.
// The dependent encounter is omitted.
type ReferentialRepairError struct {
	CompanyID int64
	reason    error
}

func (e ReferentialRepairError) Error() string {
	return fmt.Sprintf("company %d stub failed, encounter omitted: %v", e.CompanyID, e.reason)
}

func (e ReferentialRepairError) Unwrap() error {
	return e.reason
}

// CommitError means nothing staged by the call was persisted.
type CommitError struct {
	reason error
}

func (e CommitError) Error() string {
	if e.reason == nil {
		return "reconciliation commit failed"
	}
	return "reconciliation commit failed: " + e.reason.Error()
}

func (e CommitError) Unwrap() error {
	return e.reason
}

func IsCommitError(err error) bool {
	var ce CommitError
	return errors.As(err, &ce)
}
