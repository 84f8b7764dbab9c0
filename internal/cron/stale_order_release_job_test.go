package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type stubReleaser struct {
	cutoff time.Time
	limit  int
	err    error
}

func (s *stubReleaser) ReleaseStale(_ context.Context, createdBefore time.Time, limit int) (int, error) {
	s.cutoff = createdBefore
	s.limit = limit
	return 3, s.err
}

func TestStaleOrderReleaseJobCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	releaser := &stubReleaser{}
	job, err := NewStaleOrderReleaseJob(StaleOrderReleaseJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Orders: releaser,
		Days:   7,
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewStaleOrderReleaseJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC); !releaser.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, releaser.cutoff)
	}
	if releaser.limit != defaultStaleReleaseBatch {
		t.Fatalf("expected default batch, got %d", releaser.limit)
	}
}

func TestStaleOrderReleaseJobPropagatesError(t *testing.T) {
	job, err := NewStaleOrderReleaseJob(StaleOrderReleaseJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Orders: &stubReleaser{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("NewStaleOrderReleaseJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
