// Package motion infers camera motion types from indicator records and
// tracks them over time with a consistency-gated state machine.
package motion

import (
	"math"

	"github.com/framewise/shotcoach/internal/model"
)

// ClassifierConfig holds the decision-tree thresholds.
type ClassifierConfig struct {
	StaticThresholdPxS  float64 `yaml:"static_threshold_px_s"`
	SlowThresholdPxS    float64 `yaml:"slow_threshold_px_s"`
	HandheldSmoothness  float64 `yaml:"handheld_smoothness"`
	SignificantChange   float64 `yaml:"significant_change"`
	DollyInOccupancy    float64 `yaml:"dolly_in_occupancy"`
	TrackOccupancy      float64 `yaml:"track_occupancy"`
	TrackSmoothness     float64 `yaml:"track_smoothness"`
	DirectionToleranceD float64 `yaml:"direction_tolerance_deg"`
}

// DefaultClassifierConfig returns the calibrated thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		StaticThresholdPxS:  5.0,
		SlowThresholdPxS:    50.0,
		HandheldSmoothness:  0.5,
		SignificantChange:   0.15,
		DollyInOccupancy:    0.3,
		TrackOccupancy:      0.1,
		TrackSmoothness:     0.6,
		DirectionToleranceD: 30.0,
	}
}

// Inference is the full classification result for one indicator record.
type Inference struct {
	MotionType   model.MotionType   `json:"motion_type"`
	SpeedProfile model.SpeedProfile `json:"speed_profile"`
	Scale        model.SuggestedScale `json:"suggested_scale"`
	Confidence   float64            `json:"confidence"`
}

// Classifier applies the rule-based motion decision tree.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier builds a classifier; zero thresholds fall back to defaults.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	def := DefaultClassifierConfig()
	if cfg.StaticThresholdPxS <= 0 {
		cfg = def
	}
	return &Classifier{cfg: cfg}
}

// Classify runs the decision tree over one indicator record. direction is
// the primary flow direction in degrees; pass nil when unknown.
func (c *Classifier) Classify(ind model.HeuristicIndicators, direction *float64) Inference {
	mt := c.InferType(ind, direction)
	return Inference{
		MotionType:   mt,
		SpeedProfile: c.InferSpeedProfile(ind, mt),
		Scale:        c.InferScale(ind.SubjectOccupancy),
		Confidence:   c.Confidence(ind, mt),
	}
}

// InferType applies the ordered rules; the first match wins.
func (c *Classifier) InferType(ind model.HeuristicIndicators, direction *float64) model.MotionType {
	if ind.AvgMotionPxPerS < c.cfg.StaticThresholdPxS {
		return model.MotionStatic
	}
	if ind.MotionSmoothness < c.cfg.HandheldSmoothness {
		return model.MotionHandheld
	}
	if ind.FramePctChange > c.cfg.SignificantChange {
		if ind.SubjectOccupancy > c.cfg.DollyInOccupancy {
			return model.MotionDollyIn
		}
		return model.MotionDollyOut
	}
	if direction != nil {
		deg := normalizeDeg(*direction)
		if angularDistance(deg, 0) <= c.cfg.DirectionToleranceD || angularDistance(deg, 180) <= c.cfg.DirectionToleranceD {
			return model.MotionPan
		}
		if angularDistance(deg, 90) <= c.cfg.DirectionToleranceD || angularDistance(deg, 270) <= c.cfg.DirectionToleranceD {
			return model.MotionTilt
		}
	}
	if ind.SubjectOccupancy > c.cfg.TrackOccupancy &&
		ind.AvgMotionPxPerS > c.cfg.SlowThresholdPxS &&
		ind.MotionSmoothness > c.cfg.TrackSmoothness {
		return model.MotionTrack
	}
	if ind.AvgMotionPxPerS > c.cfg.SlowThresholdPxS {
		return model.MotionHandheld
	}
	return model.MotionStatic
}

// InferSpeedProfile maps smoothness and frame change onto a velocity curve.
func (c *Classifier) InferSpeedProfile(ind model.HeuristicIndicators, mt model.MotionType) model.SpeedProfile {
	if mt == model.MotionStatic || mt == model.MotionHandheld {
		return model.SpeedLinear
	}
	switch {
	case ind.MotionSmoothness > 0.8:
		return model.SpeedEaseInOut
	case ind.MotionSmoothness > 0.6 && ind.FramePctChange > 0.1:
		return model.SpeedEaseIn
	case ind.MotionSmoothness > 0.6:
		return model.SpeedEaseOut
	default:
		return model.SpeedLinear
	}
}

// InferScale maps subject occupancy onto a framing scale.
func (c *Classifier) InferScale(occupancy float64) model.SuggestedScale {
	switch {
	case occupancy >= 0.5:
		return model.ScaleExtremeCloseup
	case occupancy >= 0.25:
		return model.ScaleCloseup
	case occupancy >= 0.1:
		return model.ScaleMedium
	default:
		return model.ScaleWide
	}
}

// Confidence scores how well the indicators support the inferred type.
func (c *Classifier) Confidence(ind model.HeuristicIndicators, mt model.MotionType) float64 {
	conf := 0.5

	if mt == model.MotionStatic && ind.AvgMotionPxPerS < c.cfg.StaticThresholdPxS {
		conf += 0.3
	}
	if ind.MotionSmoothness > 0.7 {
		conf += 0.15
	} else if ind.MotionSmoothness > 0.5 {
		conf += 0.1
	}
	if (mt == model.MotionDollyIn || mt == model.MotionDollyOut) &&
		ind.FramePctChange > c.cfg.SignificantChange {
		conf += 0.2
	}
	if ind.MotionSmoothness < 0.3 {
		conf -= 0.1
	}
	return model.Clamp01(conf)
}

func normalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func angularDistance(a, b float64) float64 {
	d := math.Abs(normalizeDeg(a) - normalizeDeg(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
