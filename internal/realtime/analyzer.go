package realtime

import (
	"image"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/framewise/shotcoach/internal/indicators"
	"github.com/framewise/shotcoach/internal/model"
)

// Config holds the realtime analysis settings.
type Config struct {
	BufferCapacity int `yaml:"buffer_capacity"`
	MinBufferSize  int `yaml:"min_buffer_size"`

	TargetWidth  int `yaml:"target_width"`
	TargetHeight int `yaml:"target_height"`

	// UseSparseFlow forces degraded mode regardless of latency.
	UseSparseFlow bool `yaml:"use_sparse_flow"`
	// LatencyThresholdMS triggers the switch to sparse flow when the
	// rolling average exceeds it; recovery happens below half of it.
	LatencyThresholdMS float64 `yaml:"latency_threshold_ms"`

	SubjectLostFrames int `yaml:"subject_lost_frames"`

	Flow     flowConfig            `yaml:"flow"`
	Detector subjectDetectorConfig `yaml:"detector"`
}

// DefaultConfig returns the standard realtime settings.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:     10,
		MinBufferSize:      5,
		TargetWidth:        320,
		TargetHeight:       240,
		LatencyThresholdMS: 500,
		SubjectLostFrames:  3,
		Flow:               defaultFlowConfig(),
		Detector:           defaultSubjectDetectorConfig(),
	}
}

// latencyWindowSize is the rolling history length driving degradation.
const latencyWindowSize = 5

// Analyzer runs one session's analysis cycles. Not safe for concurrent
// use; each session drives its analyzer from a single goroutine.
type Analyzer struct {
	cfg      Config
	kernel   *indicators.Kernel
	detector SubjectDetector
	tracker  *subjectTracker
	buffer   *frameBuffer
	logger   zerolog.Logger

	degraded       bool
	latencyHistory []float64
	lastLatencyMS  float64

	now func() time.Time
}

// NewAnalyzer builds an analyzer; a zero config gets defaults.
func NewAnalyzer(cfg Config, logger zerolog.Logger) *Analyzer {
	if cfg.BufferCapacity == 0 {
		cfg = DefaultConfig()
	}
	return &Analyzer{
		cfg:      cfg,
		kernel:   indicators.NewKernel(indicators.DefaultConfig()),
		detector: newEdgeGridDetector(cfg.Detector),
		tracker:  newSubjectTracker(cfg.SubjectLostFrames),
		buffer:   newFrameBuffer(cfg.BufferCapacity),
		logger:   logger.With().Str("component", "realtime_analyzer").Logger(),
		now:      time.Now,
	}
}

// SetDetector swaps the subject detector implementation.
func (a *Analyzer) SetDetector(d SubjectDetector) { a.detector = d }

// AddBase64Frames decodes, resizes, and buffers a frame batch. Returns
// the number of frames decoded successfully.
func (a *Analyzer) AddBase64Frames(b64Frames []string, fps float64) int {
	frames := DecodeFrames(b64Frames)
	a.AddFrames(frames, fps)
	return len(frames)
}

// AddFrames resizes and buffers decoded frames, timestamped at the fps
// interval from now.
func (a *Analyzer) AddFrames(frames []*image.RGBA, fps float64) {
	interval := 1.0 / 30.0
	if fps > 0 {
		interval = 1.0 / fps
	}
	start := float64(a.now().UnixNano()) / 1e9
	for i, frame := range frames {
		resized := resizeFrame(frame, a.cfg.TargetWidth, a.cfg.TargetHeight)
		a.buffer.add(resized, start+float64(i)*interval)
	}
}

// BufferReady reports whether enough frames are buffered for analysis.
func (a *Analyzer) BufferReady() bool { return a.buffer.size() >= a.cfg.MinBufferSize }

// BufferSize returns the current buffered frame count.
func (a *Analyzer) BufferSize() int { return a.buffer.size() }

// Degraded reports whether the analyzer is in sparse-flow mode.
func (a *Analyzer) Degraded() bool { return a.degraded }

// LastLatencyMS returns the previous cycle's total latency.
func (a *Analyzer) LastLatencyMS() float64 { return a.lastLatencyMS }

// AnalyzeBuffered runs one analysis cycle over the current buffer.
func (a *Analyzer) AnalyzeBuffered() model.RealtimeAnalysisResult {
	return a.Analyze(a.buffer.snapshot())
}

// Analyze runs one cycle over the given frames. Fewer than the minimum
// buffer size yields a zero-confidence result.
func (a *Analyzer) Analyze(frames []*image.RGBA) model.RealtimeAnalysisResult {
	started := a.now()

	if len(frames) < a.cfg.MinBufferSize {
		return model.RealtimeAnalysisResult{
			MotionSmoothness: 0.5,
			Confidence:       0.0,
			TimestampMS:      started.UnixMilli(),
		}
	}

	resized := make([]*image.RGBA, len(frames))
	grays := make([]*grayFrame, len(frames))
	for i, f := range frames {
		resized[i] = resizeFrame(f, a.cfg.TargetWidth, a.cfg.TargetHeight)
		grays[i] = toGray(resized[i])
	}

	flowStarted := a.now()
	flow := a.computeFlow(grays)
	flowLatencyMS := float64(a.now().Sub(flowStarted)) / float64(time.Millisecond)
	a.recordLatency(flowLatencyMS)

	smoothness := a.kernel.MotionSmoothness(flow)
	variance := speedVariance(flow.FlowVectors)

	bbox, occupancy, lost := a.tracker.update(a.detector.DetectSubject(grays[len(grays)-1]))
	env := computeEnvFeatures(resized[len(resized)-1])

	totalLatencyMS := float64(a.now().Sub(started)) / float64(time.Millisecond)
	a.lastLatencyMS = totalLatencyMS

	return model.RealtimeAnalysisResult{
		AvgSpeedPxFrame:     flow.AvgSpeedPxS,
		SpeedVariance:       variance,
		MotionSmoothness:    smoothness,
		PrimaryDirectionDeg: flow.PrimaryDirectionDeg,
		SubjectBBox:         bbox,
		SubjectOccupancy:    occupancy,
		SubjectLost:         lost,
		Brightness:          env.Brightness,
		Contrast:            env.Contrast,
		Sharpness:           env.Sharpness,
		Saturation:          env.Saturation,
		DominantLight:       env.DominantLight,
		CompositionScore:    env.CompositionScore,
		AnalysisLatencyMS:   totalLatencyMS,
		Confidence:          a.confidence(len(frames), len(flow.FlowVectors), bbox != nil),
		TimestampMS:         started.UnixMilli(),
	}
}

// computeFlow runs the currently selected flow algorithm over all
// consecutive frame pairs.
func (a *Analyzer) computeFlow(grays []*grayFrame) model.OpticalFlowData {
	sparse := a.degraded || a.cfg.UseSparseFlow
	pairs := make([]pairFlow, 0, len(grays)-1)
	for i := 0; i+1 < len(grays); i++ {
		var p pairFlow
		var ok bool
		if sparse {
			p, ok = sparseFlow(grays[i], grays[i+1], a.cfg.Flow)
		} else {
			p, ok = denseFlow(grays[i], grays[i+1], a.cfg.Flow)
		}
		if ok {
			pairs = append(pairs, p)
		}
	}
	return aggregateFlow(pairs)
}

// recordLatency appends to the rolling history and re-evaluates the
// degradation state. Needs at least two samples to act.
func (a *Analyzer) recordLatency(latencyMS float64) {
	a.latencyHistory = append(a.latencyHistory, latencyMS)
	if len(a.latencyHistory) > latencyWindowSize {
		a.latencyHistory = a.latencyHistory[len(a.latencyHistory)-latencyWindowSize:]
	}
	if len(a.latencyHistory) < 2 {
		return
	}

	var sum float64
	for _, l := range a.latencyHistory {
		sum += l
	}
	avg := sum / float64(len(a.latencyHistory))

	switch {
	case avg > a.cfg.LatencyThresholdMS:
		if !a.degraded {
			a.degraded = true
			a.logger.Warn().Float64("avg_latency_ms", avg).Msg("switching to sparse flow")
		}
	case avg < a.cfg.LatencyThresholdMS*0.5:
		if a.degraded {
			a.degraded = false
			a.logger.Info().Float64("avg_latency_ms", avg).Msg("recovered to dense flow")
		}
	}
}

// confidence combines frame count, flow vector count, and subject
// presence into the result confidence.
func (a *Analyzer) confidence(frameCount, flowVectorCount int, hasSubject bool) float64 {
	var frameConf float64
	switch {
	case frameCount < a.cfg.MinBufferSize:
		frameConf = float64(frameCount) / float64(a.cfg.MinBufferSize)
	case frameCount <= a.cfg.BufferCapacity:
		frameConf = 1.0
	default:
		frameConf = 0.9
	}

	var flowConf float64
	switch {
	case flowVectorCount < 2:
		flowConf = 0.3
	case flowVectorCount < 5:
		flowConf = 0.7
	default:
		flowConf = 1.0
	}

	subjectConf := 0.8
	if hasSubject {
		subjectConf = 1.0
	}

	return model.Clamp01(0.4*frameConf + 0.4*flowConf + 0.2*subjectConf)
}

// Reset clears all per-session analysis state.
func (a *Analyzer) Reset() {
	a.buffer.clear()
	a.tracker.reset()
	a.degraded = false
	a.latencyHistory = a.latencyHistory[:0]
	a.lastLatencyMS = 0
}

func speedVariance(vectors []model.FlowVector) float64 {
	if len(vectors) < 2 {
		return 0
	}
	mags := make([]float64, len(vectors))
	for i, v := range vectors {
		mags[i] = math.Hypot(v.VX, v.VY)
	}
	return popVariance(mags)
}
