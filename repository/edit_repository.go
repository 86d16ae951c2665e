package repository

import (
	"context"
	"errors"

	"github.com/odhiambocuttice/instagram-audio-downloader/model"

	"gorm.io/gorm"
)

// EditRepository stores produced edits. Rows are insert-only.
type EditRepository interface {
	Create(ctx context.Context, out *model.EditOutput) error
	GetByID(ctx context.Context, id string) (*model.EditOutput, error)
}

type gormEditRepository struct {
	db *gorm.DB
}

// NewGormEditRepository creates an EditRepository backed by gorm.
func NewGormEditRepository(db *gorm.DB) EditRepository {
	return &gormEditRepository{db: db}
}

func (r *gormEditRepository) Create(ctx context.Context, out *model.EditOutput) error {
	return r.db.WithContext(ctx).Create(out).Error
}

func (r *gormEditRepository) GetByID(ctx context.Context, id string) (*model.EditOutput, error) {
	var out model.EditOutput
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}
