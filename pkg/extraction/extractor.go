package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinicsync/admissions/pkg/admissions"
	"github.com/clinicsync/admissions/pkg/common/logger"
	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/jmoiron/sqlx"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/sirupsen/logrus"
)

const admissionsSelect = `SELECT
	adm.cnsctvo_admsns   AS consecutive_id,
	adm.fcha_admsn       AS admitted_at,
	td.cdgo              AS document_type_code,
	td.unco              AS document_type_id,
	afl.nmro_idntfccn    AS id_number,
	afl.prmr_nmbre       AS first_name,
	afl.sgndo_nmbre      AS middle_name,
	afl.prmr_aplldo      AS last_name,
	afl.sgndo_aplldo     AS second_last_name,
	afl.tlfno            AS phone,
	afl.eml              AS email,
	ae.unco_emprsa       AS company_id,
	emp.unco_tpo_emprsa  AS company_type_id,
	te.dscrpcn           AS company_type_description
FROM tbAdmisiones AS adm
	INNER JOIN tbAfiliados          AS afl ON adm.unco_afldo = afl.unco
	INNER JOIN tbTiposDocumentos    AS td  ON afl.unco_tpo_idntfccn = td.unco
	INNER JOIN tbAdmisionesEmpresas AS ae  ON adm.unco = ae.unco_admsns
	INNER JOIN tbEmpresas           AS emp ON ae.unco_emprsa = emp.unco
	INNER JOIN tbTipoEmpresa        AS te  ON emp.unco_tpo_emprsa = te.unco`

// Extractor reads admissions for a time window from the source of record.
// Each call owns its connection pool and closes it before returning.
//
// Source timestamps carry no zone. They are read and compared as wall-clock
// values of loc.
type Extractor struct {
	resolve SourceResolver
	policy  admissions.Policy
	loc     *time.Location
}

func NewExtractor(resolve SourceResolver, policy admissions.Policy, loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.Local
	}
	return &Extractor{resolve: resolve, policy: policy, loc: loc}
}

func (x *Extractor) Extract(ctx context.Context, window models.Window) ([]admissions.Record, error) {
	if x.resolve == nil {
		return nil, ConfigurationError{Missing: []string{"source"}}
	}
	source, err := x.resolve()
	if err != nil {
		return nil, err
	}
	if err := source.Validate(); err != nil {
		return nil, err
	}

	query, args, err := x.statement(source.Driver, window)
	if err != nil {
		return nil, fmt.Errorf("building extraction statement: %w", err)
	}

	target := source.Redacted()
	log := logger.WithFields(logrus.Fields{
		"target":       target,
		"window_start": window.Start,
		"window_end":   window.End,
	})

	db, err := sqlx.Open(source.Driver, source.DSN)
	if err != nil {
		return nil, ConnectionError{Op: "open", Target: target, reason: err}
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.WithError(cerr).Warn("failed to close external connection")
			return
		}
		log.Debug("External connection closed")
	}()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, ConnectionError{Op: "connect", Target: target, reason: err}
	}
	log.Info("Connected to external source")

	var records []admissions.Record
	if err := db.SelectContext(ctx, &records, db.Rebind(query), args...); err != nil {
		return nil, ConnectionError{Op: "query", Target: target, reason: err}
	}

	for i := range records {
		if records[i].AdmittedAt.Valid {
			records[i].AdmittedAt.Time = wallClock(records[i].AdmittedAt.Time, x.loc)
		}
	}

	log.WithField("records", len(records)).Info("Admissions extracted")
	return records, nil
}

func (x *Extractor) statement(driver string, window models.Window) (string, []interface{}, error) {
	clauses := []string{
		"emp.unco_tpo_emprsa IN (?)",
		"adm.cnsctvo_admsns IS NOT NULL",
		"adm.fcha_admsn >= ?",
		"adm.fcha_admsn < ?",
	}
	args := []interface{}{
		x.policy.AllowedCompanyTypes,
		bindTime(driver, window.Start.In(x.loc)),
		bindTime(driver, window.End.In(x.loc)),
	}

	if len(x.policy.ExcludedCompanyIDs) > 0 {
		clauses = append(clauses, "ae.unco_emprsa NOT IN (?)")
		args = append(args, x.policy.ExcludedCompanyIDs)
	}

	query := admissionsSelect + "\nWHERE " + strings.Join(clauses, "\n\tAND ") + "\nORDER BY adm.cnsctvo_admsns"
	return sqlx.In(query, args...)
}

// bindTime drops the zone of t and keeps its wall clock. SQL Server gets a
// datetime parameter; a time.Time would be sent as datetimeoffset and the
// datetime column compared at +00:00.
func bindTime(driver string, t time.Time) interface{} {
	naive := wallClock(t, time.UTC)
	switch strings.ToLower(driver) {
	case "sqlserver", "mssql":
		return mssql.DateTime1(naive)
	default:
		return naive
	}
}

// wallClock re-labels the wall-clock fields of t with loc.
func wallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
