package fusionhead

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// LinearHead is a trained linear scorer loaded from a yaml checkpoint. The
// feature spec file is the training-time contract: it pins the feature names
// and their order, and the checkpoint must match its width exactly.
type LinearHead struct {
	features []string
	weights  []float64
	bias     float64
}

type checkpointFile struct {
	Version  int       `yaml:"version"`
	Features []string  `yaml:"features"`
	Weights  []float64 `yaml:"weights"`
	Bias     float64   `yaml:"bias"`
}

type featureSpecFile struct {
	Version  int      `yaml:"version"`
	Features []string `yaml:"features"`
}

const supportedVersion = 1

// Load reads the checkpoint and feature spec and validates them against each
// other. Any mismatch fails the load; the caller falls back to running
// without the head rather than scoring with a wrong feature order.
func Load(checkpointPath, featureSpecPath string) (*LinearHead, error) {
	var checkpoint checkpointFile
	if err := readYAML(checkpointPath, &checkpoint); err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var spec featureSpecFile
	if err := readYAML(featureSpecPath, &spec); err != nil {
		return nil, fmt.Errorf("read feature spec: %w", err)
	}

	if checkpoint.Version != supportedVersion || spec.Version != supportedVersion {
		return nil, fmt.Errorf("unsupported version: checkpoint %d, spec %d", checkpoint.Version, spec.Version)
	}
	if len(spec.Features) == 0 {
		return nil, fmt.Errorf("feature spec lists no features")
	}
	if len(checkpoint.Features) != len(spec.Features) {
		return nil, fmt.Errorf("checkpoint has %d features, spec has %d", len(checkpoint.Features), len(spec.Features))
	}
	for i, name := range spec.Features {
		if checkpoint.Features[i] != name {
			return nil, fmt.Errorf("feature %d mismatch: checkpoint %q, spec %q", i, checkpoint.Features[i], name)
		}
	}
	if len(checkpoint.Weights) != len(spec.Features) {
		return nil, fmt.Errorf("checkpoint has %d weights for %d features", len(checkpoint.Weights), len(spec.Features))
	}

	return &LinearHead{
		features: spec.Features,
		weights:  checkpoint.Weights,
		bias:     checkpoint.Bias,
	}, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

var _ ports.FusionHead = (*LinearHead)(nil)

func (h *LinearHead) FeatureNames() []string {
	out := make([]string, len(h.features))
	copy(out, h.features)
	return out
}

func (h *LinearHead) Predict(features [][]float64) ([]float64, error) {
	scores := make([]float64, len(features))
	for i, vec := range features {
		if len(vec) != len(h.weights) {
			return nil, fmt.Errorf("feature vector %d has width %d, head expects %d", i, len(vec), len(h.weights))
		}
		score := h.bias
		for j, v := range vec {
			score += h.weights[j] * v
		}
		scores[i] = score
	}
	return scores, nil
}
