package comparison

import (
	"fmt"

	"mrichange/pkg/config"
	"mrichange/pkg/masks"
	"mrichange/pkg/registration"
	"mrichange/pkg/tumors"
)

// Options selects the per-comparison behavior of a Pipeline.
type Options struct {
	// Kind is the transform family estimated by the aligner
	Kind registration.Kind

	// Threshold is the absolute difference above which a pixel counts as changed
	Threshold float64

	// MaskType selects binary or confidence masks built from detections
	MaskType masks.Type

	// Cutoff is the confidence below which boxes are left out of binary masks
	Cutoff float64

	// Tumors controls box-level filtering and matching
	Tumors tumors.Options
}

// DefaultOptions returns rigid registration with a threshold of 10.
func DefaultOptions() Options {
	return Options{
		Kind:      registration.Rigid,
		Threshold: 10.0,
		MaskType:  masks.Binary,
		Cutoff:    masks.DefaultCutoff,
		Tumors:    tumors.DefaultOptions(),
	}
}

// OptionsFromConfig reads pipeline options from cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	kind, err := registration.ParseKind(cfg.Registration.Type)
	if err != nil {
		return Options{}, fmt.Errorf("invalid registration type: %w", err)
	}
	maskType, err := masks.ParseType(cfg.Masks.Type)
	if err != nil {
		return Options{}, fmt.Errorf("invalid mask type: %w", err)
	}
	return Options{
		Kind:      kind,
		Threshold: cfg.Metrics.IntensityThreshold,
		MaskType:  maskType,
		Cutoff:    cfg.Masks.ConfidenceCutoff,
		Tumors: tumors.Options{
			MinConfidence: cfg.Detection.MinConfidence,
			MatchDistance: cfg.Detection.MatchDistance,
		},
	}, nil
}

// ParamsFromConfig reads optimizer settings from cfg.
func ParamsFromConfig(cfg *config.Config) registration.Params {
	return registration.Params{
		LearningRate:      cfg.Registration.LearningRate,
		MinStep:           cfg.Registration.MinStep,
		Iterations:        cfg.Registration.Iterations,
		RelaxationFactor:  cfg.Registration.RelaxationFactor,
		GradientTolerance: cfg.Registration.GradientTolerance,
		ShiftDelta:        cfg.Registration.ShiftDelta,
	}
}
