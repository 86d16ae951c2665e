package repository

import (
	"context"
	"errors"

	"github.com/odhiambocuttice/instagram-audio-downloader/model"

	"gorm.io/gorm"
)

// TaskRepository persists download tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *model.DownloadTask) error
	GetByID(ctx context.Context, id string) (*model.DownloadTask, error)
	ListRecent(ctx context.Context, limit int) ([]*model.DownloadTask, error)
	Update(ctx context.Context, task *model.DownloadTask) error
}

// gormTaskRepository implements TaskRepository with gorm.
type gormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository creates a TaskRepository backed by gorm.
func NewGormTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

func (r *gormTaskRepository) Create(ctx context.Context, task *model.DownloadTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// GetByID returns nil, nil when the task does not exist.
func (r *gormTaskRepository) GetByID(ctx context.Context, id string) (*model.DownloadTask, error) {
	var task model.DownloadTask
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// ListRecent returns the newest tasks first.
func (r *gormTaskRepository) ListRecent(ctx context.Context, limit int) ([]*model.DownloadTask, error) {
	var tasks []*model.DownloadTask
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *gormTaskRepository) Update(ctx context.Context, task *model.DownloadTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}
