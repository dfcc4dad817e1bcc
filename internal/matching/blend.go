package matching

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Blend holds the tunable parameters of the vector ranking pass.
type Blend struct {
	ClassicWeight       float64 `json:"classic_weight"`       // Weight of the classic score (default: 0.45)
	EmbeddingWeight     float64 `json:"embedding_weight"`     // Weight of the embedding similarity (default: 0.55)
	SimilarityThreshold float64 `json:"similarity_threshold"` // Minimum similarity for the blend to apply (default: 0.2)
}

// CalibrationConfig is the JSON layout of a vector calibration file.
type CalibrationConfig struct {
	Version string `json:"version"`
	Blend   Blend  `json:"blend"`
}

// DefaultBlend returns the blend used when no calibration is configured.
func DefaultBlend() Blend {
	return Blend{
		ClassicWeight:       0.45,
		EmbeddingWeight:     0.55,
		SimilarityThreshold: 0.2,
	}
}

// Validate checks that the blend produces scores in [0, 1].
func (b Blend) Validate() error {
	if b.ClassicWeight < 0 || b.EmbeddingWeight < 0 {
		return errors.New("blend weights must be non-negative")
	}
	if sum := b.ClassicWeight + b.EmbeddingWeight; sum <= 0 || sum > 1.0000001 {
		return fmt.Errorf("blend weights must sum to a value in (0, 1], got %.4f", sum)
	}
	if b.SimilarityThreshold < 0 || b.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0, 1], got %.4f", b.SimilarityThreshold)
	}
	return nil
}

// LoadCalibration loads blend parameters from a JSON calibration file.
// An empty path returns the defaults. On any read, parse or validation
// error the defaults are returned together with the error.
// Partial files are merged over the defaults.
func LoadCalibration(filePath string) (Blend, error) {
	if filePath == "" {
		return DefaultBlend(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultBlend(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultBlend(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultBlend()
	merged := MergeBlend(defaults, config.Blend)
	if err := merged.Validate(); err != nil {
		slog.Warn("invalid calibration file, using defaults",
			"path", filePath,
			"error", err)
		return defaults, fmt.Errorf("invalid calibration file: %w", err)
	}
	logBlendOverrides(defaults, merged)

	return merged, nil
}

// MergeBlend applies the non-zero fields of override on top of base.
func MergeBlend(base, override Blend) Blend {
	result := base
	if override.ClassicWeight != 0 {
		result.ClassicWeight = override.ClassicWeight
	}
	if override.EmbeddingWeight != 0 {
		result.EmbeddingWeight = override.EmbeddingWeight
	}
	if override.SimilarityThreshold != 0 {
		result.SimilarityThreshold = override.SimilarityThreshold
	}
	return result
}

func logBlendOverrides(defaults, loaded Blend) {
	var overrides []string

	if loaded.ClassicWeight != defaults.ClassicWeight {
		overrides = append(overrides, fmt.Sprintf("classic_weight: %.2f -> %.2f",
			defaults.ClassicWeight, loaded.ClassicWeight))
	}
	if loaded.EmbeddingWeight != defaults.EmbeddingWeight {
		overrides = append(overrides, fmt.Sprintf("embedding_weight: %.2f -> %.2f",
			defaults.EmbeddingWeight, loaded.EmbeddingWeight))
	}
	if loaded.SimilarityThreshold != defaults.SimilarityThreshold {
		overrides = append(overrides, fmt.Sprintf("similarity_threshold: %.2f -> %.2f",
			defaults.SimilarityThreshold, loaded.SimilarityThreshold))
	}

	if len(overrides) > 0 {
		slog.Info("loaded vector calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded vector calibration (using all defaults)")
	}
}
