package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestClient_Ping(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() = %v", err)
	}
}

func TestClient_Ping_Unavailable(t *testing.T) {
	t.Parallel()

	c := NewClient("http://127.0.0.1:1", 500*time.Millisecond)
	if err := c.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Ping() = %v, want ErrUnavailable", err)
	}
}

func TestClient_GetLatestVersion(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/2.0/mlflow/registered-models/get-latest-versions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model_versions":[
			{"name":"credit-approval","version":"3","current_stage":"Production","run_id":"run-3","source":"s3://m/3"}
		]}`))
	}))

	mv, err := c.GetLatestVersion(context.Background(), "credit-approval", "Production")
	if err != nil {
		t.Fatalf("GetLatestVersion() = %v", err)
	}
	if mv.Version != "3" || mv.RunID != "run-3" || mv.Stage != "Production" {
		t.Errorf("unexpected version: %+v", mv)
	}
}

func TestClient_GetLatestVersion_NotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{
			name:    "unknown model",
			status:  http.StatusNotFound,
			payload: `{"error_code":"RESOURCE_DOES_NOT_EXIST","message":"no such model"}`,
		},
		{
			name:    "empty stage",
			status:  http.StatusOK,
			payload: `{"model_versions":[]}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))

			_, err := c.GetLatestVersion(context.Background(), "credit-approval", "Staging")
			if !errors.Is(err, ErrModelNotFound) {
				t.Errorf("GetLatestVersion() = %v, want ErrModelNotFound", err)
			}
		})
	}
}

func TestClient_DownloadArtifact(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get-artifact" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("run_id"); got != "run-3" {
			t.Errorf("run_id = %s, want run-3", got)
		}
		if got := r.URL.Query().Get("path"); got != "bundle/bundle.json" {
			t.Errorf("path = %s, want bundle/bundle.json", got)
		}
		_, _ = w.Write([]byte(`{"metadata":{}}`))
	}))

	b, err := c.DownloadArtifact(context.Background(), "run-3", "bundle/bundle.json")
	if err != nil {
		t.Fatalf("DownloadArtifact() = %v", err)
	}
	if string(b) != `{"metadata":{}}` {
		t.Errorf("unexpected body %q", b)
	}
}

func TestClient_DownloadArtifact_NotFound(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := c.DownloadArtifact(context.Background(), "run-3", "missing.json")
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("DownloadArtifact() = %v, want ErrArtifactNotFound", err)
	}
}

func TestClient_EnsureExperiment_CreatesWhenMissing(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/2.0/mlflow/experiments/get-by-name":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code":"RESOURCE_DOES_NOT_EXIST","message":"nope"}`))
		case "/api/2.0/mlflow/experiments/create":
			_, _ = w.Write([]byte(`{"experiment_id":"7"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	exp, err := c.EnsureExperiment(context.Background(), "credit-approval")
	if err != nil {
		t.Fatalf("EnsureExperiment() = %v", err)
	}
	if exp.ID != "7" || exp.Name != "credit-approval" {
		t.Errorf("unexpected experiment: %+v", exp)
	}
}

func TestClient_UploadArtifact(t *testing.T) {
	t.Parallel()

	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	run := &Run{ID: "run-9", ArtifactURI: "mlflow-artifacts:/7/run-9/artifacts"}
	if err := c.UploadArtifact(context.Background(), run, "bundle/bundle.json", []byte("{}")); err != nil {
		t.Fatalf("UploadArtifact() = %v", err)
	}
	want := "/api/2.0/mlflow-artifacts/artifacts/7/run-9/artifacts/bundle/bundle.json"
	if gotPath != want {
		t.Errorf("path = %s, want %s", gotPath, want)
	}
}

func TestClient_UploadArtifact_NonProxiedStore(t *testing.T) {
	t.Parallel()

	c := NewClient("http://localhost:5000", time.Second)
	run := &Run{ID: "run-9", ArtifactURI: "s3://bucket/run-9/artifacts"}
	if err := c.UploadArtifact(context.Background(), run, "x", nil); err == nil {
		t.Error("expected error for non-proxied artifact store")
	}
}

func TestClient_RegisterVersion_ExistingModel(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/2.0/mlflow/registered-models/create":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_code":"RESOURCE_ALREADY_EXISTS","message":"exists"}`))
		case "/api/2.0/mlflow/model-versions/create":
			_, _ = w.Write([]byte(`{"model_version":{"name":"credit-approval","version":"4","run_id":"run-9"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	run := &Run{ID: "run-9", ArtifactURI: "mlflow-artifacts:/7/run-9/artifacts"}
	mv, err := c.RegisterVersion(context.Background(), "credit-approval", run)
	if err != nil {
		t.Fatalf("RegisterVersion() = %v", err)
	}
	if mv.Version != "4" {
		t.Errorf("version = %s, want 4", mv.Version)
	}
}
