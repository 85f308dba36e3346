package services_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bionicotaku/estate-services-listing/internal/services"

	"github.com/go-kratos/kratos/v2/log"
)

func TestSweepStale_UsesCutoffAndReason(t *testing.T) {
	repo := &propertyRepoStub{sweepCount: 2}
	svc, err := services.NewLifecycleService(repo, 2*time.Hour, log.NewStdLogger(io.Discard))
	if err != nil {
		t.Fatalf("NewLifecycleService: %v", err)
	}

	before := time.Now()
	count, err := svc.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if len(repo.sweepCalls) != 1 {
		t.Fatalf("expected 1 sweep call, got %d", len(repo.sweepCalls))
	}
	call := repo.sweepCalls[0]
	wantCutoff := before.Add(-2 * time.Hour)
	if call.cutoff.Before(wantCutoff.Add(-time.Minute)) || call.cutoff.After(wantCutoff.Add(time.Minute)) {
		t.Errorf("cutoff = %v, want ~%v", call.cutoff, wantCutoff)
	}
	if call.reason == "" {
		t.Error("sweep reason must be recorded")
	}
}

func TestSweepStale_PropagatesRepoError(t *testing.T) {
	repo := &propertyRepoStub{sweepErr: errStageFailed}
	svc, err := services.NewLifecycleService(repo, time.Hour, log.NewStdLogger(io.Discard))
	if err != nil {
		t.Fatalf("NewLifecycleService: %v", err)
	}

	if _, err := svc.SweepStale(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewLifecycleService_RequiresPositiveWindow(t *testing.T) {
	if _, err := services.NewLifecycleService(&propertyRepoStub{}, 0, log.NewStdLogger(io.Discard)); err == nil {
		t.Fatal("expected error for non-positive stale window")
	}
}
