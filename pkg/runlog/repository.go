package runlog

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("reconciliation run not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Run{})
}

func (r *Repository) Create(ctx context.Context, run *Run) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) Latest(ctx context.Context) (*Run, error) {
	var run Run
	result := r.db.WithContext(ctx).Order("started_at desc").First(&run)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &run, nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []Run
	result := r.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&runs)
	return runs, result.Error
}
