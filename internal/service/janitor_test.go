package service

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/pocketshare/internal/repository"
	"github.com/bigkaa/pocketshare/internal/tus"
)

func TestFingerprintJanitor_RunOnce(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryFingerprints()

	_, _ = store.AddUpload(ctx, tus.PreviousUpload{
		Fingerprint: "old", UploadURL: "http://tus/1", Size: 1,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	})
	_, _ = store.AddUpload(ctx, tus.PreviousUpload{
		Fingerprint: "fresh", UploadURL: "http://tus/2", Size: 1,
		CreatedAt: time.Now().UTC(),
	})

	j := NewFingerprintJanitor(store, time.Hour, 24*time.Hour, testLogger())
	if n := j.RunOnce(ctx); n != 1 {
		t.Errorf("удалено %d, ожидается 1", n)
	}
	if left, _ := store.FindUploads(ctx, "fresh"); len(left) != 1 {
		t.Error("свежий отпечаток не должен удаляться")
	}
	if left, _ := store.FindUploads(ctx, "old"); len(left) != 0 {
		t.Error("устаревший отпечаток должен быть удалён")
	}
}

func TestFingerprintJanitor_StartStop(t *testing.T) {
	store := repository.NewMemoryFingerprints()
	_, _ = store.AddUpload(context.Background(), tus.PreviousUpload{
		Fingerprint: "old", UploadURL: "http://tus/1", Size: 1,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	})

	j := NewFingerprintJanitor(store, 10*time.Millisecond, time.Minute, testLogger())
	j.Start(context.Background())
	defer j.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if left, _ := store.FindUploads(context.Background(), "old"); len(left) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("фоновая очистка не удалила устаревший отпечаток")
}
