package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

// MemoryTaskRepository keeps tasks in process memory. It backs the
// standalone download command, which runs without a database.
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*model.DownloadTask
}

// NewMemoryTaskRepository creates an empty MemoryTaskRepository.
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]*model.DownloadTask)}
}

func (r *MemoryTaskRepository) Create(ctx context.Context, task *model.DownloadTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *MemoryTaskRepository) GetByID(ctx context.Context, id string) (*model.DownloadTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	return task.Clone(), nil
}

func (r *MemoryTaskRepository) ListRecent(ctx context.Context, limit int) ([]*model.DownloadTask, error) {
	r.mu.RLock()
	out := make([]*model.DownloadTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTaskRepository) Update(ctx context.Context, task *model.DownloadTask) error {
	return r.Create(ctx, task)
}

var _ TaskRepository = (*MemoryTaskRepository)(nil)
