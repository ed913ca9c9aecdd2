// Package indicators computes the scalar motion indicators shared by the
// offline pipeline and the realtime analyzer. All functions are pure and
// deterministic over their inputs.
package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/framewise/shotcoach/internal/model"
)

// Config holds the indicator kernel constants.
type Config struct {
	// SmoothnessDecay is the variance normalizer K in exp(-var/K).
	SmoothnessDecay float64 `yaml:"smoothness_decay"`
	// FramePctScale divides the mean relative area delta before clamping.
	FramePctScale float64 `yaml:"frame_pct_scale"`
	// BeatWindowS is the half-window for beat alignment scoring.
	BeatWindowS float64 `yaml:"beat_window_s"`
}

// DefaultConfig returns the kernel constants used by both pipelines.
func DefaultConfig() Config {
	return Config{
		SmoothnessDecay: 100.0,
		FramePctScale:   0.5,
		BeatWindowS:     0.1,
	}
}

// Kernel evaluates indicators with a fixed configuration.
type Kernel struct {
	cfg Config
}

// NewKernel builds a kernel; a zero config is replaced with defaults.
func NewKernel(cfg Config) *Kernel {
	if cfg.SmoothnessDecay <= 0 {
		cfg.SmoothnessDecay = DefaultConfig().SmoothnessDecay
	}
	if cfg.FramePctScale <= 0 {
		cfg.FramePctScale = DefaultConfig().FramePctScale
	}
	if cfg.BeatWindowS <= 0 {
		cfg.BeatWindowS = DefaultConfig().BeatWindowS
	}
	return &Kernel{cfg: cfg}
}

// AvgMotion returns the average motion speed, floored at zero.
func (k *Kernel) AvgMotion(flow model.OpticalFlowData) float64 {
	return math.Max(0, flow.AvgSpeedPxS)
}

// FramePctChange measures how much the subject area changes between
// consecutive frames, scaled and clamped to [0,1]. A zero-area frame
// followed by a nonzero one counts as a full change.
func (k *Kernel) FramePctChange(bboxes []model.BBox) float64 {
	if len(bboxes) < 2 {
		return 0
	}

	var sum float64
	var n int
	for i := 1; i < len(bboxes); i++ {
		prev := bboxes[i-1].Area()
		curr := bboxes[i].Area()
		switch {
		case prev > 0:
			sum += math.Abs(curr-prev) / prev
			n++
		case curr > 0:
			sum += 1.0
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return model.Clamp01(sum / float64(n) / k.cfg.FramePctScale)
}

// MotionSmoothness maps the variance of frame-to-frame acceleration onto
// (0,1], where 1 is perfectly smooth. Fewer than 3 flow vectors give the
// neutral 0.5.
func (k *Kernel) MotionSmoothness(flow model.OpticalFlowData) float64 {
	vectors := flow.FlowVectors
	if len(vectors) < 3 {
		return 0.5
	}

	magnitudes := make([]float64, len(vectors))
	for i, v := range vectors {
		magnitudes[i] = math.Hypot(v.VX, v.VY)
	}

	accels := make([]float64, len(magnitudes)-1)
	for i := 1; i < len(magnitudes); i++ {
		accels[i-1] = magnitudes[i] - magnitudes[i-1]
	}

	variance := popVariance(accels)
	return math.Exp(-variance / k.cfg.SmoothnessDecay)
}

// SubjectOccupancy is the mean subject area over the sequence, clamped.
func (k *Kernel) SubjectOccupancy(bboxes []model.BBox) float64 {
	if len(bboxes) == 0 {
		return 0
	}
	areas := make([]float64, len(bboxes))
	for i, b := range bboxes {
		areas[i] = b.Area()
	}
	return model.Clamp01(stat.Mean(areas, nil))
}

// BeatAlignment scores how closely motion events land on audio beats.
// Each motion time contributes max(0, 1 - delta/window) against its
// nearest beat. Either list empty yields the neutral 0.5.
func (k *Kernel) BeatAlignment(motionTimes, beatTimes []float64) float64 {
	if len(motionTimes) == 0 || len(beatTimes) == 0 {
		return 0.5
	}

	var sum float64
	for _, mt := range motionTimes {
		nearest := math.Inf(1)
		for _, bt := range beatTimes {
			if d := math.Abs(mt - bt); d < nearest {
				nearest = d
			}
		}
		sum += math.Max(0, 1-nearest/k.cfg.BeatWindowS)
	}
	return model.Clamp01(sum / float64(len(motionTimes)))
}

// Compute derives the full indicator record for a feature bundle over a
// time range.
func (k *Kernel) Compute(features model.FeatureOutput, timeRange [2]float64) model.HeuristicIndicators {
	return model.HeuristicIndicators{
		VideoID:          features.VideoID,
		TimeRange:        timeRange,
		AvgMotionPxPerS:  k.AvgMotion(features.OpticalFlow),
		FramePctChange:   k.FramePctChange(features.SubjectTracking.BBoxes),
		MotionSmoothness: k.MotionSmoothness(features.OpticalFlow),
		SubjectOccupancy: k.SubjectOccupancy(features.SubjectTracking.BBoxes),
		BeatAlignment:    k.BeatAlignment(features.SubjectTracking.Timestamps, features.AudioBeats),
	}
}

// popVariance is the population variance (divide by n, not n-1); the
// smoothness mapping is calibrated against it.
func popVariance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := stat.Mean(xs, nil)
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}

// PopVariance is exported for the smoothing filter's anomaly detector,
// which shares the same variance convention.
func PopVariance(xs []float64) float64 { return popVariance(xs) }
