package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Experiment identifies an MLflow experiment.
type Experiment struct {
	ID   string `json:"experiment_id"`
	Name string `json:"name"`
}

// Run identifies an active MLflow run and where its artifacts live.
type Run struct {
	ID          string `json:"run_id"`
	ArtifactURI string `json:"artifact_uri"`
}

// Metric is one scalar value logged against a run.
type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

// Param is one hyperparameter logged against a run.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EnsureExperiment returns the experiment with the given name, creating it
// when it does not exist yet.
func (c *Client) EnsureExperiment(ctx context.Context, name string) (*Experiment, error) {
	var got struct {
		Experiment Experiment `json:"experiment"`
	}
	err := c.doJSON(ctx, http.MethodGet,
		"/api/2.0/mlflow/experiments/get-by-name?experiment_name="+name, nil, &got)
	if err == nil {
		return &got.Experiment, nil
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "RESOURCE_DOES_NOT_EXIST" {
		return nil, err
	}

	var created struct {
		ID string `json:"experiment_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/create",
		map[string]string{"name": name}, &created); err != nil {
		return nil, err
	}
	return &Experiment{ID: created.ID, Name: name}, nil
}

// CreateRun starts a new run under the experiment.
func (c *Client) CreateRun(ctx context.Context, experimentID, runName string) (*Run, error) {
	body := map[string]any{
		"experiment_id": experimentID,
		"run_name":      runName,
		"start_time":    time.Now().UnixMilli(),
	}
	var out struct {
		Run struct {
			Info Run `json:"info"`
		} `json:"run"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", body, &out); err != nil {
		return nil, err
	}
	return &out.Run.Info, nil
}

// LogBatch records params and metrics against a run in one call.
func (c *Client) LogBatch(ctx context.Context, runID string, params []Param, metrics []Metric) error {
	body := map[string]any{"run_id": runID}
	if len(params) > 0 {
		body["params"] = params
	}
	if len(metrics) > 0 {
		body["metrics"] = metrics
	}
	return c.doJSON(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-batch", body, nil)
}

// FinishRun marks the run as finished or failed.
func (c *Client) FinishRun(ctx context.Context, runID string, failed bool) error {
	status := "FINISHED"
	if failed {
		status = "FAILED"
	}
	body := map[string]any{
		"run_id":   runID,
		"status":   status,
		"end_time": time.Now().UnixMilli(),
	}
	return c.doJSON(ctx, http.MethodPost, "/api/2.0/mlflow/runs/update", body, nil)
}

// UploadArtifact stores data under the run's artifact root at path. The run
// must use proxied artifact storage (an mlflow-artifacts URI), which is what
// a tracking server started with --serve-artifacts hands out.
func (c *Client) UploadArtifact(ctx context.Context, run *Run, path string, data []byte) error {
	const scheme = "mlflow-artifacts:"
	if !strings.HasPrefix(run.ArtifactURI, scheme) {
		return fmt.Errorf("unsupported artifact store %q, need proxied artifact access", run.ArtifactURI)
	}
	root := strings.TrimPrefix(run.ArtifactURI, scheme)
	endpoint := c.baseURL + "/api/2.0/mlflow-artifacts/artifacts" + root + "/" + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload artifact failed: %s", strings.TrimSpace(string(b)))
	}
	return nil
}

// RegisterVersion registers a new version of the named model from a run's
// artifacts and returns the assigned version. The registered model is created
// on first use.
func (c *Client) RegisterVersion(ctx context.Context, name string, run *Run) (*ModelVersion, error) {
	err := c.doJSON(ctx, http.MethodPost, "/api/2.0/mlflow/registered-models/create",
		map[string]string{"name": name}, nil)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Code != "RESOURCE_ALREADY_EXISTS" {
			return nil, err
		}
	}

	body := map[string]string{
		"name":   name,
		"source": run.ArtifactURI,
		"run_id": run.ID,
	}
	var out struct {
		ModelVersion ModelVersion `json:"model_version"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/2.0/mlflow/model-versions/create", body, &out); err != nil {
		return nil, err
	}
	return &out.ModelVersion, nil
}

// TransitionStage moves a model version to the given stage, archiving any
// version already there.
func (c *Client) TransitionStage(ctx context.Context, name, version, stage string) error {
	body := map[string]any{
		"name":                      name,
		"version":                   version,
		"stage":                     stage,
		"archive_existing_versions": true,
	}
	return c.doJSON(ctx, http.MethodPost, "/api/2.0/mlflow/model-versions/transition-stage", body, nil)
}
