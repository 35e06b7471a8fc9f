package scorer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// BundleArtifactPath is the artifact path of the bundle within an MLflow run.
const BundleArtifactPath = "bundle/bundle.json"

// Bundle errors.
var (
	ErrNoMetadata = errors.New("bundle has no metadata section")
	ErrNoPipeline = errors.New("bundle has no pipeline section")
)

// Metadata carries serving configuration and provenance for a bundle.
type Metadata struct {
	ModelName    string             `json:"model_name"`
	Flavor       string             `json:"flavor"`
	Threshold    float64            `json:"threshold"` // decision threshold on P(approved)
	FeatureNames []string           `json:"feature_names"`
	TrainedAt    time.Time          `json:"trained_at"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Bundle is the parsed model artifact. The pipeline section stays raw here;
// the features package owns its schema and decodes it on load.
type Bundle struct {
	Metadata Metadata        `json:"metadata"`
	Model    json.RawMessage `json:"model"`
	Pipeline json.RawMessage `json:"pipeline"`

	scorer Scorer
}

// Scorer returns the classifier decoded from the model section.
func (b *Bundle) Scorer() Scorer { return b.scorer }

// ParseBundle decodes and validates a bundle document.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}

	if b.Metadata.Flavor == "" {
		return nil, ErrNoMetadata
	}
	if len(b.Pipeline) == 0 {
		return nil, ErrNoPipeline
	}
	if b.Metadata.Threshold <= 0 || b.Metadata.Threshold >= 1 {
		return nil, fmt.Errorf("invalid decision threshold %v", b.Metadata.Threshold)
	}

	s, err := decodeModel(b.Metadata.Flavor, b.Model)
	if err != nil {
		return nil, err
	}
	if len(b.Metadata.FeatureNames) != s.NumFeatures() {
		return nil, fmt.Errorf("%w: %d feature names, model expects %d",
			ErrDimensionMismatch, len(b.Metadata.FeatureNames), s.NumFeatures())
	}

	b.scorer = s
	return &b, nil
}

// decodeModel decodes the flavor-specific model section.
func decodeModel(flavor string, raw json.RawMessage) (Scorer, error) {
	switch flavor {
	case FlavorLinear:
		var m LinearModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode linear model: %w", err)
		}
		if len(m.Weights) == 0 {
			return nil, ErrEmptyModel
		}
		return &m, nil
	case FlavorGBDT:
		var m GBDTModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode gbdt model: %w", err)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlavor, flavor)
	}
}

// EncodeBundle serializes a bundle for upload as a run artifact.
func EncodeBundle(meta Metadata, model Scorer, pipeline json.RawMessage) ([]byte, error) {
	rawModel, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	doc := Bundle{
		Metadata: meta,
		Model:    rawModel,
		Pipeline: pipeline,
	}
	return json.MarshalIndent(doc, "", "  ")
}
