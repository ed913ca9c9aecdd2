package model

// BBox is a normalized bounding box. All coordinates live in the closed
// unit square with x+w <= 1 and y+h <= 1.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns w*h.
func (b BBox) Area() float64 {
	return b.W * b.H
}

// IsValid reports whether the box lies inside the unit square.
func (b BBox) IsValid() bool {
	return b.X >= 0 && b.X <= 1 &&
		b.Y >= 0 && b.Y <= 1 &&
		b.W >= 0 && b.W <= 1 &&
		b.H >= 0 && b.H <= 1 &&
		b.X+b.W <= 1 &&
		b.Y+b.H <= 1
}

// Normalize clamps the box into the unit square.
func (b BBox) Normalize() BBox {
	x := clamp01(b.X)
	y := clamp01(b.Y)
	w := clampRange(b.W, 0, 1-x)
	h := clampRange(b.H, 0, 1-y)
	return BBox{X: x, Y: y, W: w, H: h}
}

// Center returns the box center point.
func (b BBox) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// ExifData carries camera metadata recovered from the source video.
// Missing fields stay zero and degrade to neutral defaults downstream.
type ExifData struct {
	FocalLengthMM float64 `json:"focal_length_mm,omitempty"`
	Aperture      float64 `json:"aperture,omitempty"`
	SensorSize    string  `json:"sensor_size,omitempty"`
	ISO           int     `json:"iso,omitempty"`
}

// FlowVector is a single optical-flow displacement.
type FlowVector struct {
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// OpticalFlowData summarizes optical flow over a clip.
type OpticalFlowData struct {
	AvgSpeedPxS         float64      `json:"avg_speed_px_s"`
	PrimaryDirectionDeg float64      `json:"primary_direction_deg"`
	FlowVectors         []FlowVector `json:"flow_vectors"`
}

// SubjectTracking holds parallel per-frame subject observations.
// Timestamps are strictly increasing.
type SubjectTracking struct {
	BBoxes      []BBox    `json:"bbox_sequence"`
	Confidences []float64 `json:"confidence_scores"`
	Timestamps  []float64 `json:"timestamps"`
}

// UploadBundle is the validated output of the upload stage: pre-extracted
// features for a clip, as delivered by the external extractor contract.
type UploadBundle struct {
	VideoID    string  `json:"video_id"`
	FrameCount int     `json:"frame_count"`
	FPS        float64 `json:"fps"`
	DurationS  float64 `json:"duration_s"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Exif       ExifData `json:"exif"`
}

// FeatureOutput is the feature-extraction stage output consumed by the
// indicator kernel.
type FeatureOutput struct {
	VideoID         string          `json:"video_id"`
	OpticalFlow     OpticalFlowData `json:"optical_flow"`
	SubjectTracking SubjectTracking `json:"subject_tracking"`
	AudioBeats      []float64       `json:"audio_beats,omitempty"`
}

// HeuristicIndicators are the five scalar indicators computed for a time
// range of a clip. All bounded scalars lie in [0,1]; speed is >= 0.
type HeuristicIndicators struct {
	VideoID          string     `json:"video_id"`
	TimeRange        [2]float64 `json:"time_range"`
	AvgMotionPxPerS  float64    `json:"avg_motion_px_per_s"`
	FramePctChange   float64    `json:"frame_pct_change"`
	MotionSmoothness float64    `json:"motion_smoothness"`
	SubjectOccupancy float64    `json:"subject_occupancy"`
	BeatAlignment    float64    `json:"beat_alignment_score"`
}

// IsValid reports whether every indicator lies in its declared domain.
func (h HeuristicIndicators) IsValid() bool {
	return h.AvgMotionPxPerS >= 0 &&
		in01(h.FramePctChange) &&
		in01(h.MotionSmoothness) &&
		in01(h.SubjectOccupancy) &&
		in01(h.BeatAlignment) &&
		h.TimeRange[0] >= 0 &&
		h.TimeRange[0] < h.TimeRange[1]
}

// MotionParams describes the movement portion of a metadata record.
type MotionParams struct {
	DurationS        float64      `json:"duration_s"`
	FramePctChange   float64      `json:"frame_pct_change"`
	SpeedProfile     SpeedProfile `json:"speed_profile"`
	MotionSmoothness float64      `json:"motion_smoothness"`
}

// FramingData describes the composition portion of a metadata record.
type FramingData struct {
	SubjectBBox      BBox           `json:"subject_bbox"`
	SubjectOccupancy float64        `json:"subject_occupancy"`
	SuggestedScale   SuggestedScale `json:"suggested_scale"`
}

// MetadataOutput is the validated synthesis result for a clip segment.
type MetadataOutput struct {
	TimeRange      [2]float64   `json:"time_range"`
	MotionType     MotionType   `json:"motion_type"`
	MotionParams   MotionParams `json:"motion_params"`
	Framing        FramingData  `json:"framing"`
	BeatAlignment  float64      `json:"beat_alignment_score"`
	Confidence     float64      `json:"confidence"`
	Explainability string       `json:"explainability"`
}

// AdvancedParams is the third instruction-card layer: adjustable
// parameters plus professional notes.
type AdvancedParams struct {
	TargetOccupancy string   `json:"target_occupancy"`
	DurationS       float64  `json:"duration_s"`
	SpeedCurve      string   `json:"speed_curve"`
	Stabilization   string   `json:"stabilization"`
	Notes           []string `json:"notes"`
}

// InstructionCard is the three-layer shooting instruction card.
type InstructionCard struct {
	VideoID  string         `json:"video_id"`
	Primary  []string       `json:"primary"`
	Explain  string         `json:"explain"`
	Advanced AdvancedParams `json:"advanced"`
}

// IsComplete reports whether all three layers are populated.
func (c InstructionCard) IsComplete() bool {
	return len(c.Primary) > 0 && c.Explain != "" && c.Advanced.Stabilization != ""
}

// RealtimeAnalysisResult is one realtime analysis cycle's output.
type RealtimeAnalysisResult struct {
	AvgSpeedPxFrame     float64       `json:"avg_speed_px_frame"`
	SpeedVariance       float64       `json:"speed_variance"`
	MotionSmoothness    float64       `json:"motion_smoothness"`
	PrimaryDirectionDeg float64       `json:"primary_direction_deg"`
	SubjectBBox         *BBox         `json:"subject_bbox,omitempty"`
	SubjectOccupancy    float64       `json:"subject_occupancy"`
	SubjectLost         bool          `json:"subject_lost"`
	Brightness          float64       `json:"brightness"`
	Contrast            float64       `json:"contrast"`
	Sharpness           float64       `json:"sharpness"`
	Saturation          float64       `json:"saturation"`
	DominantLight       DominantLight `json:"dominant_light"`
	CompositionScore    float64       `json:"composition_score"`
	AnalysisLatencyMS   float64       `json:"analysis_latency_ms"`
	Confidence          float64       `json:"confidence"`
	TimestampMS         int64         `json:"timestamp_ms"`
}

// AdvicePayload is a single realtime coaching message.
type AdvicePayload struct {
	Priority           AdvicePriority `json:"priority"`
	Category           AdviceCategory `json:"category"`
	Message            string         `json:"message"`
	AdvancedMessage    string         `json:"advanced_message,omitempty"`
	TimestampMS        int64          `json:"timestamp_ms"`
	SuppressDurationMS int64          `json:"suppress_duration_ms"`
	TriggerHaptic      bool           `json:"trigger_haptic"`
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func in01(v float64) bool {
	return v >= 0 && v <= 1
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 { return clamp01(v) }
