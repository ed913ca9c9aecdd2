package metadata

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/framewise/shotcoach/internal/model"
)

// maxExplainabilityRunes bounds the explanation text length.
const maxExplainabilityRunes = 500

// ValidationError reports a metadata record that failed schema checks,
// with one dotted-path message per violation.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "metadata: validation failed: " + strings.Join(e.Errors, "; ")
}

// ValidateMetadata checks a record against the output contract and
// returns one message per violation, empty for valid records.
func ValidateMetadata(m model.MetadataOutput) []string {
	var errs []string

	start, end := m.TimeRange[0], m.TimeRange[1]
	if start < 0 {
		errs = append(errs, fmt.Sprintf("time_range: start (%g) must be >= 0", start))
	}
	if start >= end {
		errs = append(errs, fmt.Sprintf("time_range: start (%g) must be < end (%g)", start, end))
	}

	if !m.MotionType.Valid() {
		errs = append(errs, fmt.Sprintf("motion_type: %q is not a known motion type", m.MotionType))
	}
	if !m.MotionParams.SpeedProfile.Valid() {
		errs = append(errs, fmt.Sprintf("motion_params.speed_profile: %q is not a known speed profile", m.MotionParams.SpeedProfile))
	}
	if m.MotionParams.DurationS <= 0 {
		errs = append(errs, fmt.Sprintf("motion_params.duration_s: %g must be > 0", m.MotionParams.DurationS))
	}
	if !in01(m.MotionParams.FramePctChange) {
		errs = append(errs, fmt.Sprintf("motion_params.frame_pct_change: %g must be in range [0, 1]", m.MotionParams.FramePctChange))
	}
	if !in01(m.MotionParams.MotionSmoothness) {
		errs = append(errs, fmt.Sprintf("motion_params.motion_smoothness: %g must be in range [0, 1]", m.MotionParams.MotionSmoothness))
	}

	if !m.Framing.SuggestedScale.Valid() {
		errs = append(errs, fmt.Sprintf("framing.suggested_scale: %q is not a known scale", m.Framing.SuggestedScale))
	}
	if !in01(m.Framing.SubjectOccupancy) {
		errs = append(errs, fmt.Sprintf("framing.subject_occupancy: %g must be in range [0, 1]", m.Framing.SubjectOccupancy))
	}
	errs = append(errs, validateBBox(m.Framing.SubjectBBox)...)

	if !in01(m.BeatAlignment) {
		errs = append(errs, fmt.Sprintf("beat_alignment_score: %g must be in range [0, 1]", m.BeatAlignment))
	}
	if !in01(m.Confidence) {
		errs = append(errs, fmt.Sprintf("confidence: %g must be in range [0, 1]", m.Confidence))
	}

	if m.Explainability == "" {
		errs = append(errs, "explainability: must not be empty")
	} else if utf8.RuneCountInString(m.Explainability) > maxExplainabilityRunes {
		errs = append(errs, fmt.Sprintf("explainability: %d runes exceeds the %d limit", utf8.RuneCountInString(m.Explainability), maxExplainabilityRunes))
	}

	return errs
}

func validateBBox(b model.BBox) []string {
	var errs []string
	for _, f := range []struct {
		name  string
		value float64
	}{{"x", b.X}, {"y", b.Y}, {"w", b.W}, {"h", b.H}} {
		if !in01(f.value) {
			errs = append(errs, fmt.Sprintf("framing.subject_bbox.%s: %g must be in range [0, 1]", f.name, f.value))
		}
	}
	if b.X+b.W > 1 {
		errs = append(errs, fmt.Sprintf("framing.subject_bbox: x + w (%g) must be <= 1", b.X+b.W))
	}
	if b.Y+b.H > 1 {
		errs = append(errs, fmt.Sprintf("framing.subject_bbox: y + h (%g) must be <= 1", b.Y+b.H))
	}
	return errs
}

// RepairMetadata clamps out-of-range numerics, normalizes the bbox,
// fixes degenerate time ranges, and truncates overlong explanations.
// Invalid enum values are left alone; they cannot be guessed.
func RepairMetadata(m model.MetadataOutput) model.MetadataOutput {
	m.Confidence = model.Clamp01(m.Confidence)
	m.BeatAlignment = model.Clamp01(m.BeatAlignment)
	m.MotionParams.FramePctChange = model.Clamp01(m.MotionParams.FramePctChange)
	m.MotionParams.MotionSmoothness = model.Clamp01(m.MotionParams.MotionSmoothness)
	if m.MotionParams.DurationS <= 0 {
		m.MotionParams.DurationS = 0.001
	}

	m.Framing.SubjectOccupancy = model.Clamp01(m.Framing.SubjectOccupancy)
	m.Framing.SubjectBBox = m.Framing.SubjectBBox.Normalize()

	if m.TimeRange[0] < 0 {
		m.TimeRange[0] = 0
	}
	if m.TimeRange[1] <= m.TimeRange[0] {
		m.TimeRange[1] = m.TimeRange[0] + 1
	}

	if utf8.RuneCountInString(m.Explainability) > maxExplainabilityRunes {
		runes := []rune(m.Explainability)
		m.Explainability = string(runes[:maxExplainabilityRunes-3]) + "..."
	}
	return m
}

func in01(v float64) bool { return v >= 0 && v <= 1 }
