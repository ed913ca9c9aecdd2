package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/framewise/shotcoach/internal/model"
)

func ind(avg, fpc, smooth, occ float64) model.HeuristicIndicators {
	return model.HeuristicIndicators{
		VideoID:          "v1",
		TimeRange:        [2]float64{0, 8},
		AvgMotionPxPerS:  avg,
		FramePctChange:   fpc,
		MotionSmoothness: smooth,
		SubjectOccupancy: occ,
		BeatAlignment:    0.5,
	}
}

func deg(d float64) *float64 { return &d }

func TestInferType(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	tests := []struct {
		name      string
		ind       model.HeuristicIndicators
		direction *float64
		want      model.MotionType
	}{
		{"static below threshold", ind(2, 0.01, 0.95, 0.4), nil, model.MotionStatic},
		{"rough motion is handheld", ind(150, 0.08, 0.35, 0.25), nil, model.MotionHandheld},
		{"dolly in on large subject", ind(85, 0.18, 0.78, 0.45), nil, model.MotionDollyIn},
		{"dolly out on small subject", ind(85, 0.18, 0.78, 0.2), nil, model.MotionDollyOut},
		{"horizontal direction is pan", ind(80, 0.05, 0.7, 0.05), deg(10), model.MotionPan},
		{"pan near 180", ind(80, 0.05, 0.7, 0.05), deg(175), model.MotionPan},
		{"vertical direction is tilt", ind(80, 0.05, 0.7, 0.05), deg(92), model.MotionTilt},
		{"tilt near 270", ind(80, 0.05, 0.7, 0.05), deg(260), model.MotionTilt},
		{"diagonal with subject is track", ind(80, 0.05, 0.7, 0.3), deg(45), model.MotionTrack},
		{"fast without subject is handheld", ind(80, 0.05, 0.55, 0.05), deg(45), model.MotionHandheld},
		{"slow smooth falls back to static", ind(30, 0.05, 0.7, 0.05), deg(45), model.MotionStatic},
		{"negative direction normalized", ind(80, 0.05, 0.7, 0.05), deg(-10), model.MotionPan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.InferType(tt.ind, tt.direction))
		})
	}
}

func TestInferSpeedProfile(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	tests := []struct {
		name string
		ind  model.HeuristicIndicators
		mt   model.MotionType
		want model.SpeedProfile
	}{
		{"static is linear", ind(2, 0.01, 0.95, 0.4), model.MotionStatic, model.SpeedLinear},
		{"handheld is linear", ind(150, 0.1, 0.9, 0.3), model.MotionHandheld, model.SpeedLinear},
		{"very smooth is ease in out", ind(85, 0.05, 0.85, 0.4), model.MotionPan, model.SpeedEaseInOut},
		{"smooth with change is ease in", ind(85, 0.15, 0.7, 0.4), model.MotionDollyIn, model.SpeedEaseIn},
		{"smooth without change is ease out", ind(85, 0.05, 0.7, 0.4), model.MotionPan, model.SpeedEaseOut},
		{"rough movement is linear", ind(85, 0.05, 0.55, 0.4), model.MotionTrack, model.SpeedLinear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.InferSpeedProfile(tt.ind, tt.mt))
		})
	}
}

func TestInferScale(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	assert.Equal(t, model.ScaleExtremeCloseup, c.InferScale(0.6))
	assert.Equal(t, model.ScaleExtremeCloseup, c.InferScale(0.5))
	assert.Equal(t, model.ScaleCloseup, c.InferScale(0.3))
	assert.Equal(t, model.ScaleMedium, c.InferScale(0.15))
	assert.Equal(t, model.ScaleWide, c.InferScale(0.05))
}

func TestConfidence(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	t.Run("smooth static is high confidence", func(t *testing.T) {
		got := c.Confidence(ind(2, 0.01, 0.95, 0.4), model.MotionStatic)
		assert.InDelta(t, 0.95, got, 1e-9)
		assert.Greater(t, got, 0.75)
	})

	t.Run("dolly with significant change gets bonus", func(t *testing.T) {
		got := c.Confidence(ind(85, 0.18, 0.78, 0.45), model.MotionDollyIn)
		assert.InDelta(t, 0.85, got, 1e-9)
	})

	t.Run("jerky motion is penalized", func(t *testing.T) {
		got := c.Confidence(ind(150, 0.08, 0.25, 0.25), model.MotionHandheld)
		assert.InDelta(t, 0.4, got, 1e-9)
	})

	t.Run("clamped to unit interval", func(t *testing.T) {
		got := c.Confidence(ind(1, 0.2, 0.99, 0.5), model.MotionStatic)
		assert.LessOrEqual(t, got, 1.0)
	})
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())
	record := ind(85, 0.18, 0.78, 0.45)

	first := c.Classify(record, nil)
	second := c.Classify(record, nil)
	assert.Equal(t, first, second)
}
