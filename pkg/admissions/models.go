package admissions

import (
	"database/sql"
	"strings"
	"time"
)

// Record is one admission row as returned by the source of record. Every
// column may be NULL on the source side.
type Record struct {
	ConsecutiveID          sql.NullInt64  `db:"consecutive_id"`
	AdmittedAt             sql.NullTime   `db:"admitted_at"`
	DocumentTypeCode       sql.NullString `db:"document_type_code"`
	DocumentTypeID         sql.NullInt64  `db:"document_type_id"`
	IDNumber               sql.NullString `db:"id_number"`
	FirstName              sql.NullString `db:"first_name"`
	MiddleName             sql.NullString `db:"middle_name"`
	LastName               sql.NullString `db:"last_name"`
	SecondLastName         sql.NullString `db:"second_last_name"`
	Phone                  sql.NullString `db:"phone"`
	Email                  sql.NullString `db:"email"`
	CompanyID              sql.NullInt64  `db:"company_id"`
	CompanyTypeID          sql.NullInt64  `db:"company_type_id"`
	CompanyTypeDescription sql.NullString `db:"company_type_description"`
}

// NaturalID returns the trimmed id-number, empty when absent.
func (r Record) NaturalID() string {
	return text(r.IDNumber)
}

type Patient struct {
	ID             string `gorm:"primaryKey;column:id;size:50"`
	DocumentTypeID int64  `gorm:"column:document_type_id;not null"`
	FirstName      string `gorm:"column:first_name;size:100"`
	MiddleName     string `gorm:"column:middle_name;size:100"`
	LastName       string `gorm:"column:last_name;size:100"`
	SecondLastName string `gorm:"column:second_last_name;size:100"`
	Phone          string `gorm:"column:phone;size:50"`
	Email          string `gorm:"column:email;size:255"`
}

type Company struct {
	ID            int64  `gorm:"primaryKey;autoIncrement:false;column:id"`
	CompanyTypeID int64  `gorm:"column:company_type_id;not null"`
	Name          string `gorm:"column:name;size:255;not null"`
}

type Encounter struct {
	ID         string    `gorm:"primaryKey;column:id;size:50"`
	PatientID  string    `gorm:"column:patient_id;size:50;not null;index"`
	CompanyID  int64     `gorm:"column:company_id;not null;index"`
	StatusID   int64     `gorm:"column:status_id;not null"`
	FollowUpID int64     `gorm:"column:follow_up_id"`
	AdmittedAt time.Time `gorm:"column:admitted_at"`
	Notes      string    `gorm:"column:notes"`
}

func (Patient) TableName() string {
	return "patients"
}

func (Company) TableName() string {
	return "companies"
}

func (Encounter) TableName() string {
	return "encounters"
}

// NewPatient maps the demographic columns of r onto a patient row.
func NewPatient(r Record, documentTypeID int64) *Patient {
	return &Patient{
		ID:             r.NaturalID(),
		DocumentTypeID: documentTypeID,
		FirstName:      text(r.FirstName),
		MiddleName:     text(r.MiddleName),
		LastName:       text(r.LastName),
		SecondLastName: text(r.SecondLastName),
		Phone:          text(r.Phone),
		Email:          text(r.Email),
	}
}

func text(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return strings.TrimSpace(s.String)
}
