//go:build integration

package webhook

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/capserve/capserve/internal/model"
	"github.com/capserve/capserve/internal/testutil"
)

func TestIntegrationWebhook_CreateEndpoint(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	retrieved, err := repo.GetEndpoint(ctx, endpoint.ID)
	if err != nil {
		t.Fatalf("GetEndpoint failed: %v", err)
	}

	if retrieved.TargetURL != endpoint.TargetURL {
		t.Errorf("TargetURL mismatch: got %q, want %q", retrieved.TargetURL, endpoint.TargetURL)
	}
	if !retrieved.Enabled {
		t.Error("Endpoint should be enabled")
	}
	if len(retrieved.EventTypes) != 1 || retrieved.EventTypes[0] != model.EventTypeModelReloaded {
		t.Errorf("EventTypes mismatch: got %v", retrieved.EventTypes)
	}
}

func TestIntegrationWebhook_ListActiveEndpointsByEvent(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	reloaded := testutil.NewTestEndpoint(t, testutil.UniqueID("ep-reloaded"))
	failed := testutil.NewTestEndpoint(t, testutil.UniqueID("ep-failed"))
	failed.EventTypes = []model.EventType{model.EventTypeModelLoadFailed}
	disabled := testutil.NewTestEndpoint(t, testutil.UniqueID("ep-disabled"))
	disabled.Enabled = false

	for _, ep := range []*model.WebhookEndpoint{reloaded, failed, disabled} {
		if err := repo.CreateEndpoint(ctx, ep); err != nil {
			t.Fatalf("CreateEndpoint failed: %v", err)
		}
	}

	active, err := repo.ListActiveEndpointsByEvent(ctx, model.EventTypeModelReloaded)
	if err != nil {
		t.Fatalf("ListActiveEndpointsByEvent failed: %v", err)
	}

	if len(active) != 1 {
		t.Fatalf("expected 1 active endpoint, got %d", len(active))
	}
	if active[0].ID != reloaded.ID {
		t.Errorf("wrong endpoint returned: got %q, want %q", active[0].ID, reloaded.ID)
	}
}

func TestIntegrationWebhook_CreateDelivery(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusPending {
		t.Errorf("Status mismatch: got %q, want %q", retrieved.Status, model.DeliveryStatusPending)
	}
	if retrieved.AttemptCount != 0 {
		t.Errorf("AttemptCount should be 0, got %d", retrieved.AttemptCount)
	}
}

func TestIntegrationWebhook_DeliverySuccess(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	if err := repo.UpdateDeliverySuccess(ctx, delivery.ID, 200); err != nil {
		t.Fatalf("UpdateDeliverySuccess failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusSuccess {
		t.Errorf("Status mismatch: got %q, want %q", retrieved.Status, model.DeliveryStatusSuccess)
	}
	if retrieved.AttemptCount != 1 {
		t.Errorf("AttemptCount should be 1, got %d", retrieved.AttemptCount)
	}
	if retrieved.LastHTTPStatus == nil || *retrieved.LastHTTPStatus != 200 {
		t.Error("LastHTTPStatus should be 200")
	}
}

func TestIntegrationWebhook_DeliveryRetry(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	status := 500
	nextRetry := time.Now().Add(1 * time.Minute)
	if err := repo.UpdateDeliveryFailure(ctx, delivery.ID, &status, "server error", nextRetry, false); err != nil {
		t.Fatalf("UpdateDeliveryFailure failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusFailed {
		t.Errorf("Status mismatch: got %q, want %q", retrieved.Status, model.DeliveryStatusFailed)
	}
	if retrieved.AttemptCount != 1 {
		t.Errorf("AttemptCount should be 1, got %d", retrieved.AttemptCount)
	}
	if retrieved.LastHTTPStatus == nil || *retrieved.LastHTTPStatus != 500 {
		t.Error("LastHTTPStatus should be 500")
	}
	if retrieved.LastError != "server error" {
		t.Errorf("LastError mismatch: got %q, want %q", retrieved.LastError, "server error")
	}
}

func TestIntegrationWebhook_DeliveryExhausted(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)
	delivery.MaxAttempts = 3

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	status := 503
	if err := repo.UpdateDeliveryFailure(ctx, delivery.ID, &status, "service unavailable", time.Now(), true); err != nil {
		t.Fatalf("UpdateDeliveryFailure (exhausted) failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusExhausted {
		t.Errorf("Status mismatch: got %q, want %q", retrieved.Status, model.DeliveryStatusExhausted)
	}
	if !retrieved.IsTerminal() {
		t.Error("Exhausted delivery should be terminal")
	}
}

func TestIntegrationWebhook_DuplicateEventEndpoint(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery1 := newTestDelivery(t, endpoint.ID)
	eventID := delivery1.EventID

	if err := repo.CreateDelivery(ctx, delivery1); err != nil {
		t.Fatalf("CreateDelivery (first) failed: %v", err)
	}

	// Same event fanned out twice must not create a second row
	delivery2 := newTestDelivery(t, endpoint.ID)
	delivery2.EventID = eventID

	if err := repo.CreateDelivery(ctx, delivery2); err != nil {
		t.Fatalf("CreateDelivery (duplicate) should not error: %v", err)
	}

	deliveries, total, err := repo.ListDeliveriesByEndpoint(ctx, endpoint.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListDeliveriesByEndpoint failed: %v", err)
	}

	if total != 1 {
		t.Errorf("Expected 1 delivery, got %d", total)
	}
	if len(deliveries) != 1 {
		t.Errorf("Expected 1 delivery in list, got %d", len(deliveries))
	}
}

func TestIntegrationWebhook_GetPendingDeliveries(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	// Create 3 past-due deliveries
	for i := 0; i < 3; i++ {
		delivery := newTestDelivery(t, endpoint.ID)
		delivery.NextRetryAt = time.Now().Add(-1 * time.Minute)
		if err := repo.CreateDelivery(ctx, delivery); err != nil {
			t.Fatalf("CreateDelivery (%d) failed: %v", i, err)
		}
		time.Sleep(1 * time.Millisecond)
	}

	// And one scheduled in the future
	futureDelivery := newTestDelivery(t, endpoint.ID)
	futureDelivery.NextRetryAt = time.Now().Add(1 * time.Hour)
	if err := repo.CreateDelivery(ctx, futureDelivery); err != nil {
		t.Fatalf("CreateDelivery (future) failed: %v", err)
	}

	pending, err := repo.GetPendingDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingDeliveries failed: %v", err)
	}

	if len(pending) != 3 {
		t.Errorf("Expected 3 pending deliveries, got %d", len(pending))
	}
}

func TestIntegrationWebhook_EndpointSoftDelete(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)
	delivery.NextRetryAt = time.Now().Add(-1 * time.Minute)
	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	if err := repo.DeleteEndpoint(ctx, endpoint.ID); err != nil {
		t.Fatalf("DeleteEndpoint failed: %v", err)
	}

	if _, err := repo.GetEndpoint(ctx, endpoint.ID); !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("Expected ErrEndpointNotFound, got: %v", err)
	}

	// Pending work for a deleted endpoint must not be picked up
	pending, err := repo.GetPendingDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingDeliveries failed: %v", err)
	}
	for _, d := range pending {
		if d.EndpointID == endpoint.ID {
			t.Error("pending query returned delivery for deleted endpoint")
		}
	}
}

func TestIntegrationWebhook_QueueDepth(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	depth, err := repo.GetQueueDepth(ctx)
	if err != nil {
		t.Fatalf("GetQueueDepth failed: %v", err)
	}
	if depth != 0 {
		t.Errorf("Expected queue depth 0, got %d", depth)
	}

	for i := 0; i < 2; i++ {
		delivery := newTestDelivery(t, endpoint.ID)
		if err := repo.CreateDelivery(ctx, delivery); err != nil {
			t.Fatalf("CreateDelivery (%d) failed: %v", i, err)
		}
		time.Sleep(1 * time.Millisecond)
	}

	depth, err = repo.GetQueueDepth(ctx)
	if err != nil {
		t.Fatalf("GetQueueDepth (after add) failed: %v", err)
	}
	if depth != 2 {
		t.Errorf("Expected queue depth 2, got %d", depth)
	}
}

func TestIntegrationWebhook_ResetDeliveryForRetry(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("endpoint"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	if err := repo.UpdateDeliveryFailure(ctx, delivery.ID, nil, "exhausted", time.Now(), true); err != nil {
		t.Fatalf("UpdateDeliveryFailure failed: %v", err)
	}

	if err := repo.ResetDeliveryForRetry(ctx, delivery.ID); err != nil {
		t.Fatalf("ResetDeliveryForRetry failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusPending {
		t.Errorf("Status should be pending after reset, got %q", retrieved.Status)
	}
}

func TestIntegrationWebhook_PublisherFanOut(t *testing.T) {
	ctx, repo := newWebhookTestEnv(t)

	ep1 := testutil.NewTestEndpoint(t, testutil.UniqueID("ep1"))
	ep2 := testutil.NewTestEndpoint(t, testutil.UniqueID("ep2"))
	other := testutil.NewTestEndpoint(t, testutil.UniqueID("other"))
	other.EventTypes = []model.EventType{model.EventTypeModelLoadFailed}

	for _, ep := range []*model.WebhookEndpoint{ep1, ep2, other} {
		if err := repo.CreateEndpoint(ctx, ep); err != nil {
			t.Fatalf("CreateEndpoint failed: %v", err)
		}
	}

	publisher := NewPublisher(repo, testLogger())
	event := &model.ModelEvent{
		ID:              NewEventID(),
		Type:            model.EventTypeModelReloaded,
		ModelName:       "credit-approval",
		Stage:           "Production",
		Version:         "7",
		PreviousVersion: "6",
		OccurredAt:      time.Now().UTC(),
	}

	if err := publisher.PublishModelEvent(ctx, event); err != nil {
		t.Fatalf("PublishModelEvent failed: %v", err)
	}

	// One delivery per subscribed endpoint, none for the other event type
	for _, ep := range []*model.WebhookEndpoint{ep1, ep2} {
		_, total, err := repo.ListDeliveriesByEndpoint(ctx, ep.ID, nil, 10, 0)
		if err != nil {
			t.Fatalf("ListDeliveriesByEndpoint failed: %v", err)
		}
		if total != 1 {
			t.Errorf("endpoint %s: expected 1 delivery, got %d", ep.ID, total)
		}
	}
	_, total, err := repo.ListDeliveriesByEndpoint(ctx, other.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListDeliveriesByEndpoint failed: %v", err)
	}
	if total != 0 {
		t.Errorf("unsubscribed endpoint should have 0 deliveries, got %d", total)
	}

	// Re-publishing the same event is idempotent
	if err := publisher.PublishModelEvent(ctx, event); err != nil {
		t.Fatalf("PublishModelEvent (repeat) failed: %v", err)
	}
	_, total, err = repo.ListDeliveriesByEndpoint(ctx, ep1.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListDeliveriesByEndpoint failed: %v", err)
	}
	if total != 1 {
		t.Errorf("repeat publish should not add deliveries, got %d", total)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDelivery(t testing.TB, endpointID string) *model.WebhookDelivery {
	t.Helper()
	now := time.Now().UTC()
	return &model.WebhookDelivery{
		ID:           testutil.UniqueID("delivery"),
		EndpointID:   endpointID,
		EventID:      testutil.UniqueID("event"),
		EventType:    model.EventTypeModelReloaded,
		PayloadJSON:  `{"event_type":"model.reloaded","data":{"model_name":"credit-approval","version":"7"}}`,
		Status:       model.DeliveryStatusPending,
		AttemptCount: 0,
		MaxAttempts:  5,
		NextRetryAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newWebhookTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	// pgxpool for lock and schema reset, database/sql for the repository
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.ResetWebhooksSchema(ctx, pool); err != nil {
		t.Fatalf("reset webhooks schema: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	return ctx, NewRepository(db)
}
