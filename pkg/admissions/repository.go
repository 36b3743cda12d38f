package admissions

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("admissions: record not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Patient{}, &Company{}, &Encounter{})
}

func (r *Repository) FindPatient(ctx context.Context, id string) (*Patient, error) {
	var patient Patient
	result := r.db.WithContext(ctx).First(&patient, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &patient, nil
}

func (r *Repository) CreatePatient(ctx context.Context, patient *Patient) error {
	return r.db.WithContext(ctx).Create(patient).Error
}

func (r *Repository) FindCompany(ctx context.Context, id int64) (*Company, error) {
	var company Company
	result := r.db.WithContext(ctx).First(&company, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &company, nil
}

func (r *Repository) CreateCompany(ctx context.Context, company *Company) error {
	return r.db.WithContext(ctx).Create(company).Error
}

func (r *Repository) FindEncounter(ctx context.Context, id string) (*Encounter, error) {
	var encounter Encounter
	result := r.db.WithContext(ctx).First(&encounter, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &encounter, nil
}

func (r *Repository) CreateEncounter(ctx context.Context, encounter *Encounter) error {
	return r.db.WithContext(ctx).Create(encounter).Error
}
