package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/capserve/capserve/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// resetSchema drops and recreates one migration's schema.
func resetSchema(ctx context.Context, pool *pgxpool.Pool, name string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downPath := filepath.Join(root, "migrations", name+".down.sql")
	upPath := filepath.Join(root, "migrations", name+".up.sql")

	downSQL, err := os.ReadFile(downPath)
	if err != nil {
		return fmt.Errorf("read down migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply down migration: %w", err)
	}

	upSQL, err := os.ReadFile(upPath)
	if err != nil {
		return fmt.Errorf("read up migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply up migration: %w", err)
	}

	return nil
}

// ResetPredictionsSchema drops and recreates the predictions schema for tests.
func ResetPredictionsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000002_predictions")
}

// ResetWebhooksSchema drops and recreates the webhooks schema for tests.
func ResetWebhooksSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000003_webhooks")
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestApplicant creates an applicant with sensible defaults.
func NewTestApplicant(t testing.TB) *model.Applicant {
	t.Helper()
	return &model.Applicant{
		Age:               35,
		AnnualIncome:      85000,
		CreditScore:       720,
		EmploymentYears:   8,
		DebtToIncomeRatio: 0.25,
		NumExistingCards:  3,
		TotalCreditLimit:  45000,
		EmploymentStatus:  model.EmploymentEmployed,
		HousingType:       model.HousingMortgage,
		EducationLevel:    model.EducationBachelor,
		MaritalStatus:     model.MaritalMarried,
	}
}

// NewTestPredictionRecord creates an audit record with sensible defaults.
func NewTestPredictionRecord(t testing.TB, id string) *model.PredictionRecord {
	t.Helper()
	return &model.PredictionRecord{
		ID:            id,
		RequestID:     "req-" + id,
		ApplicantJSON: `{"age":35,"credit_score":720}`,
		Label:         1,
		Probability:   0.83,
		Decision:      model.DecisionApproved,
		ModelVersion:  "1",
		LatencyMs:     1.2,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewTestEndpoint creates a webhook endpoint with sensible defaults.
func NewTestEndpoint(t testing.TB, id string) *model.WebhookEndpoint {
	t.Helper()
	now := time.Now().UTC()
	return &model.WebhookEndpoint{
		ID:            id,
		TargetURL:     "https://example.com/hooks/" + id,
		SigningSecret: fmt.Sprintf("whsec-%d", now.UnixNano()),
		Enabled:       true,
		EventTypes:    []model.EventType{model.EventTypeModelReloaded},
		Name:          "Test Endpoint",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
