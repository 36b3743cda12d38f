package admissions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunables shared by extraction and reconciliation.
type Policy struct {
	AllowedCompanyTypes []int64          `yaml:"allowed_company_types" json:"allowed_company_types"`
	ExcludedCompanyIDs  []int64          `yaml:"excluded_company_ids" json:"excluded_company_ids"`
	EncounterPrefix     string           `yaml:"encounter_prefix" json:"encounter_prefix"`
	DefaultStatusID     int64            `yaml:"default_status_id" json:"default_status_id"`
	DefaultFollowUpID   int64            `yaml:"default_follow_up_id" json:"default_follow_up_id"`
	DocumentTypes       map[string]int64 `yaml:"document_types" json:"document_types"`
	CompanyLabel        string           `yaml:"company_label" json:"company_label"`
	MaxDiagnostics      int              `yaml:"max_diagnostics" json:"max_diagnostics"`
}

func DefaultPolicy() Policy {
	return Policy{
		AllowedCompanyTypes: []int64{4, 5},
		EncounterPrefix:     "ADM",
		DefaultStatusID:     1,
		DefaultFollowUpID:   8,
		DocumentTypes: map[string]int64{
			"CC": 1,
			"TI": 2,
			"CE": 3,
			"RC": 4,
			"PA": 5,
		},
		CompanyLabel:   "Company",
		MaxDiagnostics: 20,
	}
}

// LoadPolicy reads a YAML policy file. An empty path yields DefaultPolicy;
// fields missing from the file keep their default values.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return policy, err
	}

	if err := yaml.Unmarshal(content, &policy); err != nil {
		return Policy{}, err
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (p Policy) Validate() error {
	if len(p.AllowedCompanyTypes) == 0 {
		return errors.New("policy: allowed_company_types must not be empty")
	}
	if strings.TrimSpace(p.EncounterPrefix) == "" {
		return errors.New("policy: encounter_prefix required")
	}
	if p.MaxDiagnostics <= 0 {
		return errors.New("policy: max_diagnostics must be positive")
	}
	return nil
}

// EncounterID derives the deterministic local encounter id.
func (p Policy) EncounterID(consecutive int64) string {
	return p.EncounterPrefix + strconv.FormatInt(consecutive, 10)
}

// ResolveDocumentType prefers the source id and falls back to the code table.
func (p Policy) ResolveDocumentType(r Record) (int64, bool) {
	if r.DocumentTypeID.Valid && r.DocumentTypeID.Int64 > 0 {
		return r.DocumentTypeID.Int64, true
	}
	code := strings.ToUpper(text(r.DocumentTypeCode))
	if code == "" {
		return 0, false
	}
	id, ok := p.DocumentTypes[code]
	return id, ok && id > 0
}

// CompanyStub builds the placeholder company for an unknown payer.
func (p Policy) CompanyStub(r Record) *Company {
	id := r.CompanyID.Int64
	var typeID int64
	if r.CompanyTypeID.Valid {
		typeID = r.CompanyTypeID.Int64
	}
	name := text(r.CompanyTypeDescription)
	if name == "" {
		name = fmt.Sprintf("%s %d", p.CompanyLabel, id)
	}
	return &Company{ID: id, CompanyTypeID: typeID, Name: name}
}
