// Package smoothing reduces cycle-to-cycle noise in realtime indicator
// values with a per-indicator scalar Kalman filter or a sliding-window
// average, and flags anomalous jumps so advice can pause briefly.
package smoothing

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Config controls the filter mode and anomaly handling.
type Config struct {
	WindowSize           int     `yaml:"window_size"`
	UseKalman            bool    `yaml:"use_kalman"`
	AnomalyThreshold     float64 `yaml:"anomaly_threshold"`
	AnomalySuppressCycles int    `yaml:"anomaly_suppress_cycles"`
	ProcessNoise         float64 `yaml:"process_noise"`
	MeasurementNoise     float64 `yaml:"measurement_noise"`
	InitialEstimateError float64 `yaml:"initial_estimate_error"`
}

// DefaultConfig returns the realtime smoothing defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:            3,
		UseKalman:             true,
		AnomalyThreshold:      2.0,
		AnomalySuppressCycles: 2,
		ProcessNoise:          0.01,
		MeasurementNoise:      0.1,
		InitialEstimateError:  1.0,
	}
}

// IndicatorValues is the slice of an analysis result that gets smoothed.
type IndicatorValues struct {
	MotionSmoothness    float64
	AvgSpeed            float64
	SpeedVariance       float64
	PrimaryDirectionDeg float64
	SubjectOccupancy    float64
	Confidence          float64
}

type kalmanState struct {
	estimate        float64
	errorCovariance float64
}

func (s *kalmanState) update(z, q, r float64) float64 {
	pPred := s.errorCovariance + q
	k := pPred / (pPred + r)
	s.estimate += k * (z - s.estimate)
	s.errorCovariance = (1 - k) * pPred
	return s.estimate
}

// Filter smooths indicator streams. Not safe for concurrent use; each
// session's analysis loop owns one.
type Filter struct {
	cfg     Config
	history []IndicatorValues

	smoothness kalmanState
	avgSpeed   kalmanState
	speedVar   kalmanState
	direction  kalmanState
	occupancy  kalmanState
	confidence kalmanState

	anomalyCountdown int
	initialized      bool
}

// NewFilter builds a filter; a zero config is replaced with defaults.
func NewFilter(cfg Config) *Filter {
	if cfg.WindowSize <= 0 {
		cfg = DefaultConfig()
	}
	f := &Filter{cfg: cfg}
	f.resetKalman()
	return f
}

func (f *Filter) resetKalman() {
	p := f.cfg.InitialEstimateError
	for _, s := range []*kalmanState{&f.smoothness, &f.avgSpeed, &f.speedVar, &f.direction, &f.occupancy, &f.confidence} {
		s.estimate = 0
		s.errorCovariance = p
	}
}

// IsSuppressed reports whether advice should be skipped this cycle
// because a recent anomaly (for example a sudden lighting change) makes
// the indicators untrustworthy.
func (f *Filter) IsSuppressed() bool {
	return f.anomalyCountdown > 0
}

// Update smooths one cycle of indicator values. Anomaly detection runs
// against the pre-update history; the countdown is decremented before any
// new anomaly re-arms it.
func (f *Filter) Update(in IndicatorValues) IndicatorValues {
	if f.anomalyCountdown > 0 {
		f.anomalyCountdown--
	}
	if f.initialized && f.detectAnomaly(in) {
		f.anomalyCountdown = f.cfg.AnomalySuppressCycles
	}

	f.history = append(f.history, in)
	if len(f.history) > f.cfg.WindowSize {
		f.history = f.history[len(f.history)-f.cfg.WindowSize:]
	}

	var out IndicatorValues
	if f.cfg.UseKalman {
		out = f.applyKalman(in)
	} else {
		out = f.applyWindowAverage()
	}
	f.initialized = true
	return out
}

func (f *Filter) applyKalman(in IndicatorValues) IndicatorValues {
	if !f.initialized {
		f.smoothness.estimate = in.MotionSmoothness
		f.avgSpeed.estimate = in.AvgSpeed
		f.speedVar.estimate = in.SpeedVariance
		f.direction.estimate = in.PrimaryDirectionDeg
		f.occupancy.estimate = in.SubjectOccupancy
		f.confidence.estimate = in.Confidence
		return in
	}

	q, r := f.cfg.ProcessNoise, f.cfg.MeasurementNoise
	return IndicatorValues{
		MotionSmoothness:    f.smoothness.update(in.MotionSmoothness, q, r),
		AvgSpeed:            f.avgSpeed.update(in.AvgSpeed, q, r),
		SpeedVariance:       f.speedVar.update(in.SpeedVariance, q, r),
		PrimaryDirectionDeg: f.direction.update(in.PrimaryDirectionDeg, q, r),
		SubjectOccupancy:    f.occupancy.update(in.SubjectOccupancy, q, r),
		Confidence:          f.confidence.update(in.Confidence, q, r),
	}
}

func (f *Filter) applyWindowAverage() IndicatorValues {
	n := float64(len(f.history))
	var out IndicatorValues
	var sumSin, sumCos float64
	for _, h := range f.history {
		out.MotionSmoothness += h.MotionSmoothness
		out.AvgSpeed += h.AvgSpeed
		out.SpeedVariance += h.SpeedVariance
		out.SubjectOccupancy += h.SubjectOccupancy
		out.Confidence += h.Confidence
		rad := h.PrimaryDirectionDeg * math.Pi / 180
		sumSin += math.Sin(rad)
		sumCos += math.Cos(rad)
	}
	out.MotionSmoothness /= n
	out.AvgSpeed /= n
	out.SpeedVariance /= n
	out.SubjectOccupancy /= n
	out.Confidence /= n

	// Circular mean keeps directions near 0/360 from averaging to 180.
	deg := math.Atan2(sumSin/n, sumCos/n) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	out.PrimaryDirectionDeg = deg
	return out
}

func (f *Filter) detectAnomaly(in IndicatorValues) bool {
	if len(f.history) < 2 {
		return false
	}

	smoothVals := make([]float64, len(f.history))
	speedVals := make([]float64, len(f.history))
	for i, h := range f.history {
		smoothVals[i] = h.MotionSmoothness
		speedVals[i] = h.AvgSpeed
	}

	return f.deviates(in.MotionSmoothness, smoothVals) || f.deviates(in.AvgSpeed, speedVals)
}

func (f *Filter) deviates(value float64, history []float64) bool {
	mean := stat.Mean(history, nil)
	std := math.Sqrt(stat.Variance(history, nil))
	if std <= 0 {
		std = 0.001
	}
	return math.Abs(value-mean) > f.cfg.AnomalyThreshold*std
}

// Reset clears all filter state.
func (f *Filter) Reset() {
	f.history = nil
	f.anomalyCountdown = 0
	f.initialized = false
	f.resetKalman()
}
