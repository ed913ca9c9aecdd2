// Package advice turns smoothed realtime indicators into prioritized
// Chinese coaching messages. Hysteresis, consistency gating, and
// per-category cooldowns keep the stream from nagging.
package advice

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/framewise/shotcoach/internal/hysteresis"
	"github.com/framewise/shotcoach/internal/model"
	"github.com/framewise/shotcoach/internal/motion"
	"github.com/framewise/shotcoach/internal/smoothing"
)

// Config holds the advice trigger thresholds.
type Config struct {
	StabilityCriticalThreshold float64 `yaml:"stability_critical_threshold"`
	StabilityWarningThreshold  float64 `yaml:"stability_warning_threshold"`

	// Speed thresholds in px/frame.
	SpeedWarningPxFrame float64 `yaml:"speed_warning_px_frame"`
	SpeedCVWarning      float64 `yaml:"speed_cv_warning"`
	SpeedOptimalMin     float64 `yaml:"speed_optimal_min"`
	SpeedOptimalMax     float64 `yaml:"speed_optimal_max"`

	SubjectDeviationThreshold float64 `yaml:"subject_deviation_threshold"`
	SubjectOccupancyMax       float64 `yaml:"subject_occupancy_max"`
	SubjectOccupancyMin       float64 `yaml:"subject_occupancy_min"`

	BeatUpcomingWindowS float64 `yaml:"beat_upcoming_window_s"`
	BeatNowWindowS      float64 `yaml:"beat_now_window_s"`

	TelephotoFocalLengthMM float64 `yaml:"telephoto_focal_length_mm"`
	TelephotoSmoothness    float64 `yaml:"telephoto_smoothness"`

	MinConfidence float64 `yaml:"min_confidence"`
}

// DefaultConfig returns the realtime advice defaults.
func DefaultConfig() Config {
	return Config{
		StabilityCriticalThreshold: 0.4,
		StabilityWarningThreshold:  0.7,
		SpeedWarningPxFrame:        20.0,
		SpeedCVWarning:             0.5,
		SpeedOptimalMin:            5.0,
		SpeedOptimalMax:            15.0,
		SubjectDeviationThreshold:  0.2,
		SubjectOccupancyMax:        0.8,
		SubjectOccupancyMin:        0.1,
		BeatUpcomingWindowS:        0.5,
		BeatNowWindowS:             0.1,
		TelephotoFocalLengthMM:     50.0,
		TelephotoSmoothness:        0.5,
		MinConfidence:              0.5,
	}
}

// Options carries the per-cycle context a Generate call needs beyond the
// analysis result itself.
type Options struct {
	// Now drives cooldown bookkeeping.
	Now time.Time
	// VideoTimeS is the position on the recording timeline, used for
	// beat proximity.
	VideoTimeS float64
	// Beats lists beat timestamps in video seconds, ascending.
	Beats []float64
	// Device selects whether advanced diagnostics are attached.
	Device model.DeviceClass
	// FocalLengthMM is the reported focal length; zero means unreported.
	FocalLengthMM float64
	// SkipSmoothing bypasses the indicator filter, used in tests.
	SkipSmoothing bool
}

// Engine generates advice for one realtime session. Not safe for
// concurrent use; the session's analysis loop owns it.
type Engine struct {
	cfg    Config
	logger zerolog.Logger

	machine *motion.StateMachine
	hyst    *hysteresis.Controller
	filter  *smoothing.Filter

	subjectLostSince *time.Time
}

// NewEngine builds an engine with its own state machine, hysteresis
// controller, and smoothing filter.
func NewEngine(cfg Config, hystCfg hysteresis.Config, smoothCfg smoothing.Config, logger zerolog.Logger) *Engine {
	if cfg.MinConfidence <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger.With().Str("component", "advice_engine").Logger(),
		machine: motion.NewStateMachine(motion.DefaultStateMachineConfig(), motion.DefaultClassifierConfig()),
		hyst:    hysteresis.NewController(hystCfg),
		filter:  smoothing.NewFilter(smoothCfg),
	}
}

// Generate produces the advice payloads for one analysis cycle. Below the
// confidence floor it returns a single analyzing status; while the
// smoothing filter flags an anomaly it returns nothing.
func (e *Engine) Generate(result model.RealtimeAnalysisResult, opts Options) []model.AdvicePayload {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	if result.Confidence < e.cfg.MinConfidence {
		return []model.AdvicePayload{e.stamp(template(keyLowConfidence), opts.Now)}
	}

	smoothness := result.MotionSmoothness
	avgSpeed := result.AvgSpeedPxFrame
	speedVar := result.SpeedVariance
	direction := result.PrimaryDirectionDeg
	occupancy := result.SubjectOccupancy

	if !opts.SkipSmoothing {
		smoothed := e.filter.Update(smoothing.IndicatorValues{
			MotionSmoothness:    smoothness,
			AvgSpeed:            avgSpeed,
			SpeedVariance:       speedVar,
			PrimaryDirectionDeg: direction,
			SubjectOccupancy:    occupancy,
			Confidence:          result.Confidence,
		})
		if e.filter.IsSuppressed() {
			e.logger.Debug().Msg("advice suppressed by indicator anomaly")
			return nil
		}
		smoothness = smoothed.MotionSmoothness
		avgSpeed = smoothed.AvgSpeed
		speedVar = smoothed.SpeedVariance
		direction = smoothed.PrimaryDirectionDeg
		occupancy = smoothed.SubjectOccupancy
	}

	// The classifier expects px/s; realtime speeds are px/frame at an
	// assumed 30 fps capture rate.
	ind := model.HeuristicIndicators{
		VideoID:          "realtime",
		TimeRange:        [2]float64{opts.VideoTimeS, opts.VideoTimeS + 0.5},
		AvgMotionPxPerS:  avgSpeed * 30,
		MotionSmoothness: smoothness,
		SubjectOccupancy: occupancy,
	}
	e.machine.Update(ind, &direction)

	var out []model.AdvicePayload
	if p := e.stabilityAdvice(smoothness, opts.Device, opts.Now); p != nil {
		out = append(out, *p)
	}
	if p := e.speedAdvice(avgSpeed, speedVar, opts.Now); p != nil {
		out = append(out, *p)
	}
	out = append(out, e.compositionAdvice(result.SubjectBBox, occupancy, direction, result.SubjectLost, opts.Now)...)
	if len(opts.Beats) > 0 {
		if p := e.beatAdvice(opts.Beats, opts.VideoTimeS, opts.Now); p != nil {
			out = append(out, *p)
		}
	}
	if p := e.equipmentAdvice(smoothness, opts.FocalLengthMM, opts.Now); p != nil {
		out = append(out, *p)
	}
	return out
}

func (e *Engine) stamp(p model.AdvicePayload, now time.Time) model.AdvicePayload {
	p.TimestampMS = now.UnixMilli()
	return p
}

func (e *Engine) stabilityAdvice(smoothness float64, device model.DeviceClass, now time.Time) *model.AdvicePayload {
	category := string(model.CategoryStability)

	if e.hyst.IsOnCooldown(category, now) {
		return nil
	}
	if e.machine.ShouldSuppress(category) {
		return nil
	}

	state := e.hyst.CheckThresholdMultiLevel(category, smoothness,
		e.cfg.StabilityCriticalThreshold-0.05, e.cfg.StabilityCriticalThreshold+0.05,
		e.cfg.StabilityWarningThreshold-0.05, e.cfg.StabilityWarningThreshold+0.05,
		true)

	// Transient non-critical readings never trigger, but positive
	// feedback skips the gate when smoothness is clearly good.
	if state != hysteresis.LevelCritical {
		if !e.hyst.IsConsistent(category, state == hysteresis.LevelWarning) {
			if state != hysteresis.LevelNormal || smoothness <= e.cfg.StabilityWarningThreshold {
				return nil
			}
		}
	}

	switch state {
	case hysteresis.LevelCritical:
		p := e.stamp(template(keyStabilityCritical), now)
		if device == model.DeviceProfessional {
			p.AdvancedMessage = advancedStabilityCritical
		}
		e.hyst.RecordAdvice(category, now)
		return &p
	case hysteresis.LevelWarning:
		p := e.stamp(template(keyStabilityWarning), now)
		e.hyst.RecordAdvice(category, now)
		return &p
	default:
		if smoothness > e.cfg.StabilityWarningThreshold {
			positiveKey := category + "_positive"
			if !e.hyst.IsOnCooldown(positiveKey, now) {
				p := e.stamp(template(keyStabilityPositive), now)
				e.hyst.RecordAdvice(positiveKey, now)
				return &p
			}
		}
	}
	return nil
}

func (e *Engine) speedAdvice(avgSpeed, speedVar float64, now time.Time) *model.AdvicePayload {
	category := string(model.CategorySpeed)

	if e.hyst.IsOnCooldown(category, now) {
		return nil
	}
	if e.machine.ShouldSuppress(category) {
		return nil
	}

	cv := 0.0
	if avgSpeed > 0 {
		cv = math.Sqrt(speedVar) / avgSpeed
	}

	tooFast := e.hyst.CheckThreshold(category+"_fast", avgSpeed,
		e.cfg.SpeedWarningPxFrame+2, e.cfg.SpeedWarningPxFrame-2, false)
	if tooFast {
		if e.hyst.IsConsistent(category+"_fast", true) {
			p := e.stamp(template(keySpeedTooFast), now)
			e.hyst.RecordAdvice(category, now)
			return &p
		}
		return nil
	}

	if cv > e.cfg.SpeedCVWarning {
		if e.hyst.IsConsistent(category+"_uneven", true) {
			p := e.stamp(template(keySpeedUneven), now)
			e.hyst.RecordAdvice(category, now)
			return &p
		}
		return nil
	}

	if avgSpeed >= e.cfg.SpeedOptimalMin && avgSpeed <= e.cfg.SpeedOptimalMax && cv < e.cfg.SpeedCVWarning {
		positiveKey := category + "_positive"
		if !e.hyst.IsOnCooldown(positiveKey, now) {
			p := e.stamp(template(keySpeedPerfect), now)
			e.hyst.RecordAdvice(positiveKey, now)
			return &p
		}
	}
	return nil
}

func (e *Engine) compositionAdvice(bbox *model.BBox, occupancy, directionDeg float64, subjectLost bool, now time.Time) []model.AdvicePayload {
	var out []model.AdvicePayload
	category := string(model.CategoryComposition)

	if subjectLost {
		if e.subjectLostSince == nil {
			t := now
			e.subjectLostSince = &t
			lostKey := category + "_lost"
			if !e.hyst.IsOnCooldown(lostKey, now) {
				out = append(out, e.stamp(template(keySubjectLost), now))
				e.hyst.RecordAdvice(lostKey, now)
			}
		}
		return out
	}
	e.subjectLostSince = nil

	if p := e.directionHintAdvice(directionDeg, now); p != nil {
		out = append(out, *p)
	}

	if bbox != nil && !e.machine.ShouldSuppress(motion.SuppressHorizontalDrift) && !e.machine.ShouldSuppress(motion.SuppressVerticalDrift) {
		if p := e.positionAdvice(*bbox, now); p != nil {
			out = append(out, *p)
		}
	}

	if !e.machine.ShouldSuppress(motion.SuppressSubjectSizeChange) {
		if p := e.occupancyAdvice(occupancy, now); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (e *Engine) directionHintAdvice(directionDeg float64, now time.Time) *model.AdvicePayload {
	category := string(model.CategoryComposition) + "_direction"

	if e.hyst.IsOnCooldown(category, now) {
		return nil
	}

	key := angleToDirectionKey(directionDeg)

	// Hints only make sense for deliberate camera movements.
	switch e.machine.Current() {
	case model.MotionStatic, model.MotionHandheld:
		return nil
	}

	p := e.stamp(directionHint(key), now)
	e.hyst.RecordAdvice(category, now)
	return &p
}

// angleToDirectionKey maps a flow direction to the on-screen movement it
// implies. Flow pointing down (90 degrees) means the camera is tilting
// down.
func angleToDirectionKey(angleDeg float64) string {
	angle := angleDeg - 360*float64(int(angleDeg/360))
	if angle < 0 {
		angle += 360
	}
	switch {
	case angle >= 45 && angle < 135:
		return "down"
	case angle >= 135 && angle < 225:
		return "left"
	case angle >= 225 && angle < 315:
		return "up"
	default:
		return "right"
	}
}

func (e *Engine) positionAdvice(bbox model.BBox, now time.Time) *model.AdvicePayload {
	category := string(model.CategoryComposition) + "_position"

	if e.hyst.IsOnCooldown(category, now) {
		return nil
	}

	cx, cy := bbox.Center()

	distToCenter := math.Hypot(cx-0.5, cy-0.5)
	minThirds := distToCenter
	for _, tx := range []float64{1.0 / 3, 2.0 / 3} {
		for _, ty := range []float64{1.0 / 3, 2.0 / 3} {
			if d := math.Hypot(cx-tx, cy-ty); d < minThirds {
				minThirds = d
			}
		}
	}

	if minThirds <= e.cfg.SubjectDeviationThreshold {
		return nil
	}

	var direction string
	switch {
	case cx < 0.4:
		direction = "右"
	case cx > 0.6:
		direction = "左"
	case cy < 0.4:
		direction = "下"
	case cy > 0.6:
		direction = "上"
	default:
		return nil
	}

	if !e.hyst.IsConsistent(category, true) {
		return nil
	}
	p := e.stamp(subjectOffCenter(direction), now)
	e.hyst.RecordAdvice(category, now)
	return &p
}

func (e *Engine) occupancyAdvice(occupancy float64, now time.Time) *model.AdvicePayload {
	category := string(model.CategoryComposition) + "_occupancy"

	if e.hyst.IsOnCooldown(category, now) {
		return nil
	}

	if occupancy > e.cfg.SubjectOccupancyMax {
		if e.hyst.IsConsistent(category+"_large", true) {
			p := e.stamp(template(keySubjectTooLarge), now)
			e.hyst.RecordAdvice(category, now)
			return &p
		}
	} else if occupancy < e.cfg.SubjectOccupancyMin {
		if e.hyst.IsConsistent(category+"_small", true) {
			p := e.stamp(template(keySubjectTooSmall), now)
			e.hyst.RecordAdvice(category, now)
			return &p
		}
	}
	return nil
}

func (e *Engine) beatAdvice(beats []float64, videoTimeS float64, now time.Time) *model.AdvicePayload {
	category := string(model.CategoryBeat)

	if e.hyst.IsOnCooldown(category, now) {
		return nil
	}

	nearest := -1.0
	for _, t := range beats {
		if t >= videoTimeS && (nearest < 0 || t < nearest) {
			nearest = t
		}
	}
	if nearest < 0 {
		return nil
	}

	timeToBeat := nearest - videoTimeS
	switch {
	case timeToBeat <= e.cfg.BeatNowWindowS:
		p := e.stamp(template(keyBeatNow), now)
		e.hyst.RecordAdvice(category, now)
		return &p
	case timeToBeat <= e.cfg.BeatUpcomingWindowS:
		p := e.stamp(template(keyBeatUpcoming), now)
		e.hyst.RecordAdvice(category, now)
		return &p
	}
	return nil
}

func (e *Engine) equipmentAdvice(smoothness, focalLengthMM float64, now time.Time) *model.AdvicePayload {
	category := string(model.CategoryEquipment)

	if e.hyst.IsOnCooldown(category, now) {
		return nil
	}

	if focalLengthMM > e.cfg.TelephotoFocalLengthMM && smoothness < e.cfg.TelephotoSmoothness {
		if e.hyst.IsConsistent(category+"_telephoto", true) {
			p := e.stamp(template(keyTelephotoShake), now)
			e.hyst.RecordAdvice(category, now)
			return &p
		}
		return nil
	}

	if smoothness < e.cfg.StabilityCriticalThreshold {
		if e.hyst.IsConsistent(category+"_stabilization", true) {
			p := e.stamp(template(keyStabilization), now)
			e.hyst.RecordAdvice(category, now)
			return &p
		}
	}
	return nil
}

// MotionType returns the committed motion type from the state machine.
func (e *Engine) MotionType() model.MotionType { return e.machine.Current() }

// SuppressionSet returns the advice categories muted by the committed
// motion type.
func (e *Engine) SuppressionSet() map[string]bool { return e.machine.SuppressionSet() }

// IsSubjectLost reports whether the engine is tracking a lost subject.
func (e *Engine) IsSubjectLost() bool { return e.subjectLostSince != nil }

// SubjectLostDuration returns how long the subject has been lost, or
// zero when it is tracked.
func (e *Engine) SubjectLostDuration(now time.Time) time.Duration {
	if e.subjectLostSince == nil {
		return 0
	}
	return now.Sub(*e.subjectLostSince)
}

// Reset clears all engine state for session reuse.
func (e *Engine) Reset() {
	e.filter.Reset()
	e.hyst.Reset("")
	e.machine.Reset()
	e.subjectLostSince = nil
}
