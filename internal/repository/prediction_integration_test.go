//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/capserve/capserve/internal/model"
	"github.com/capserve/capserve/internal/testutil"
)

func newPredictionTestEnv(t *testing.T) (context.Context, *PredictionRepository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetPredictionsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, NewPredictionRepository(repo)
}

func TestIntegrationPrediction_BulkInsertAndList(t *testing.T) {
	ctx, repo := newPredictionTestEnv(t)

	base := time.Now().UTC().Truncate(time.Millisecond)
	records := []*model.PredictionRecord{
		testutil.NewTestPredictionRecord(t, "pred-a"),
		testutil.NewTestPredictionRecord(t, "pred-b"),
		testutil.NewTestPredictionRecord(t, "pred-c"),
	}
	records[0].CreatedAt = base.Add(-2 * time.Second)
	records[1].CreatedAt = base.Add(-1 * time.Second)
	records[2].CreatedAt = base
	records[2].Decision = model.DecisionRejected
	records[2].Label = 0
	records[2].Probability = 0.12

	if err := repo.BulkInsert(ctx, records); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	got, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List returned %d records, want 3", len(got))
	}
	// Newest first
	if got[0].ID != "pred-c" {
		t.Errorf("first record ID = %s, want pred-c", got[0].ID)
	}
	if got[0].RequestID != "req-pred-c" {
		t.Errorf("RequestID = %s, want req-pred-c", got[0].RequestID)
	}
}

func TestIntegrationPrediction_BulkInsertIdempotent(t *testing.T) {
	ctx, repo := newPredictionTestEnv(t)

	records := []*model.PredictionRecord{testutil.NewTestPredictionRecord(t, "pred-dup")}
	if err := repo.BulkInsert(ctx, records); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := repo.BulkInsert(ctx, records); err != nil {
		t.Fatalf("re-insert should not fail: %v", err)
	}

	got, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("List returned %d records after duplicate insert, want 1", len(got))
	}
}

func TestIntegrationPrediction_ListFilters(t *testing.T) {
	ctx, repo := newPredictionTestEnv(t)

	approved := testutil.NewTestPredictionRecord(t, "pred-approved")
	rejected := testutil.NewTestPredictionRecord(t, "pred-rejected")
	rejected.Decision = model.DecisionRejected
	rejected.Label = 0
	otherVersion := testutil.NewTestPredictionRecord(t, "pred-v2")
	otherVersion.ModelVersion = "2"

	if err := repo.BulkInsert(ctx, []*model.PredictionRecord{approved, rejected, otherVersion}); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	got, err := repo.List(ctx, ListFilter{Decision: model.DecisionRejected})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "pred-rejected" {
		t.Errorf("decision filter returned %+v, want only pred-rejected", got)
	}

	got, err = repo.List(ctx, ListFilter{ModelVersion: "2"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "pred-v2" {
		t.Errorf("version filter returned %+v, want only pred-v2", got)
	}
}

func TestIntegrationPrediction_Stats(t *testing.T) {
	ctx, repo := newPredictionTestEnv(t)

	approved := testutil.NewTestPredictionRecord(t, "pred-s1")
	approved.Probability = 0.8
	rejected := testutil.NewTestPredictionRecord(t, "pred-s2")
	rejected.Decision = model.DecisionRejected
	rejected.Label = 0
	rejected.Probability = 0.2
	rejected.Cached = true

	if err := repo.BulkInsert(ctx, []*model.PredictionRecord{approved, rejected}); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	stats, err := repo.GetStats(ctx, "")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Total != 2 || stats.Approved != 1 || stats.Rejected != 1 {
		t.Errorf("stats = %+v, want total 2, approved 1, rejected 1", stats)
	}
	if stats.CacheHits != 1 {
		t.Errorf("cache hits = %d, want 1", stats.CacheHits)
	}
	if stats.AvgProbability < 0.49 || stats.AvgProbability > 0.51 {
		t.Errorf("avg probability = %v, want ~0.5", stats.AvgProbability)
	}
}
