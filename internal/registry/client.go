// Package registry talks to an MLflow tracking server over its REST API.
// It covers the small surface the service needs: resolving the latest model
// version in a stage, downloading run artifacts, and recording training runs.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrModelNotFound means the registered model has no version in the
	// requested stage.
	ErrModelNotFound = errors.New("model version not found")
	// ErrArtifactNotFound means the run exists but the artifact path does not.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrUnavailable means the tracking server could not be reached.
	ErrUnavailable = errors.New("registry unavailable")
)

// APIError is a structured error returned by the MLflow REST API.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mlflow: %s: %s", e.Code, e.Message)
}

// ModelVersion describes one version of a registered model.
type ModelVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Stage   string `json:"current_stage"`
	RunID   string `json:"run_id"`
	Source  string `json:"source"`
	Status  string `json:"status"`
}

// Client is an MLflow REST API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for the tracking server at baseURL. A trailing
// slash on baseURL is tolerated.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// Ping checks that the tracking server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// GetLatestVersion resolves the newest version of the named model in the
// given stage. Returns ErrModelNotFound when no version exists there.
func (c *Client) GetLatestVersion(ctx context.Context, name, stage string) (*ModelVersion, error) {
	// https://mlflow.org/docs/latest/rest-api.html#get-latest-model-versions
	body := map[string]any{"name": name, "stages": []string{stage}}

	var out struct {
		ModelVersions []ModelVersion `json:"model_versions"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/2.0/mlflow/registered-models/get-latest-versions", body, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "RESOURCE_DOES_NOT_EXIST" {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
		}
		return nil, err
	}
	if len(out.ModelVersions) == 0 {
		return nil, fmt.Errorf("%w: %s has no version in stage %s", ErrModelNotFound, name, stage)
	}

	// The API returns at most one version per requested stage, but pick the
	// highest version defensively in case of duplicates.
	latest := out.ModelVersions[0]
	for _, mv := range out.ModelVersions[1:] {
		if mv.Version > latest.Version {
			latest = mv
		}
	}
	return &latest, nil
}

// DownloadArtifact fetches the raw bytes of an artifact logged under runID.
func (c *Client) DownloadArtifact(ctx context.Context, runID, path string) ([]byte, error) {
	q := url.Values{}
	q.Set("run_id", runID)
	q.Set("path", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get-artifact?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s in run %s", ErrArtifactNotFound, path, runID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download artifact failed: %s", strings.TrimSpace(string(b)))
	}
	return b, nil
}

// doJSON performs one JSON request/response round trip against the API.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(b, apiErr) == nil && apiErr.Code != "" {
			return apiErr
		}
		return fmt.Errorf("mlflow: %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
	}
	return nil
}
