package repository

import (
	"context"
	"testing"
	"time"

	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

func TestMemoryTaskRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTaskRepository()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, model.NewDownloadTask(id, "https://example.com/"+id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.GetByID(ctx, "missing")
	if err != nil || got != nil {
		t.Errorf("GetByID(missing) = %v, %v; want nil, nil", got, err)
	}

	task, _ := repo.GetByID(ctx, "b")
	task.Progress = 50
	if stored, _ := repo.GetByID(ctx, "b"); stored.Progress != 0 {
		t.Error("GetByID must return a copy")
	}
	if err := repo.Update(ctx, task); err != nil {
		t.Fatal(err)
	}
	if stored, _ := repo.GetByID(ctx, "b"); stored.Progress != 50 {
		t.Errorf("progress = %d after update, want 50", stored.Progress)
	}

	recent, _ := repo.ListRecent(ctx, 2)
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" {
		t.Errorf("ListRecent(2) = %v", recent)
	}
}
