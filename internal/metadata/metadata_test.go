package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framewise/shotcoach/internal/llm"
	"github.com/framewise/shotcoach/internal/model"
)

func staticIndicators() model.HeuristicIndicators {
	return model.HeuristicIndicators{
		VideoID:          "vid-1",
		TimeRange:        [2]float64{0, 4},
		AvgMotionPxPerS:  2.0,
		FramePctChange:   0.02,
		MotionSmoothness: 0.95,
		SubjectOccupancy: 0.35,
		BeatAlignment:    0.6,
	}
}

func TestParseModelResponseBareJSON(t *testing.T) {
	res, err := ParseModelResponse(`{"motion": {"type": "pan", "params": {"speed_profile": "linear"}}, "confidence": 0.7}`)
	require.NoError(t, err)
	assert.Equal(t, "pan", res.Motion.Type)
	assert.Equal(t, "linear", res.Motion.Params.SpeedProfile)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.7, *res.Confidence, 1e-9)
}

func TestParseModelResponseFencedBlock(t *testing.T) {
	raw := "分析结果如下：\n```json\n{\"motion\": {\"type\": \"dolly_in\"}, \"explainability\": \"推进镜头\"}\n```\n以上。"
	res, err := ParseModelResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "dolly_in", res.Motion.Type)
	assert.Equal(t, "推进镜头", res.Explainability)
}

func TestParseModelResponseEmbeddedObject(t *testing.T) {
	raw := `根据数据，{"motion": {"type": "tilt"}, "confidence": 0.6} 就是结果`
	res, err := ParseModelResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "tilt", res.Motion.Type)
}

func TestParseModelResponseRejectsGarbage(t *testing.T) {
	_, err := ParseModelResponse("抱歉，我无法分析这段视频。")
	assert.Error(t, err)
}

func TestBuildFewShotPromptClampsExamples(t *testing.T) {
	p := BuildFewShotPrompt(staticIndicators(), nil, 10)
	assert.Contains(t, p, "### 示例 4")

	p = BuildFewShotPrompt(staticIndicators(), nil, 0)
	assert.Contains(t, p, "### 示例 2")
	assert.NotContains(t, p, "### 示例 3")
}

func TestBuildFewShotPromptIncludesCurrentInput(t *testing.T) {
	exif := &model.ExifData{FocalLengthMM: 35, Aperture: 2.8}
	p := BuildFewShotPrompt(staticIndicators(), exif, 3)

	assert.Contains(t, p, `"avg_motion_px_per_s": 2`)
	assert.Contains(t, p, `"focal_length_mm": 35`)
	assert.Contains(t, p, "只输出JSON")
}

func TestBuildSimplePromptOmitsExamples(t *testing.T) {
	p := BuildSimplePrompt(staticIndicators(), nil)
	assert.NotContains(t, p, "示例")
	assert.Contains(t, p, "输出格式要求")
}

func TestSynthesizeRuleOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseLLM = false
	s := NewSynthesizer(cfg, nil, zerolog.Nop())

	out, err := s.Synthesize(context.Background(), staticIndicators(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, model.MotionStatic, out.MotionType)
	assert.Equal(t, model.SpeedLinear, out.MotionParams.SpeedProfile)
	assert.InDelta(t, 4.0, out.MotionParams.DurationS, 1e-9)
	assert.Contains(t, out.Explainability, "静态镜头")
	assert.Contains(t, out.Explainability, "构图适中")
	assert.Empty(t, ValidateMetadata(out))
}

func TestSynthesizeModelOverridesEnums(t *testing.T) {
	mock := llm.NewMockCompleter()
	mock.Respond("avg_motion_px_per_s", `{
		"motion": {"type": "pan", "params": {"speed_profile": "ease_out"}},
		"framing": {"suggested_scale": "wide"},
		"confidence": 0.9,
		"explainability": "画面横向移动明显，属于横摇镜头。建议保持匀速并使用云台。"
	}`)
	s := NewSynthesizer(DefaultConfig(), mock, zerolog.Nop())

	out, err := s.Synthesize(context.Background(), staticIndicators(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, model.MotionPan, out.MotionType)
	assert.Equal(t, model.SpeedEaseOut, out.MotionParams.SpeedProfile)
	assert.Equal(t, model.ScaleWide, out.Framing.SuggestedScale)
	assert.Contains(t, out.Explainability, "横摇镜头")
}

func TestSynthesizeConfidenceBlending(t *testing.T) {
	mock := llm.NewMockCompleter()
	mock.Respond("avg_motion_px_per_s", `{
		"motion": {"type": "static", "params": {"speed_profile": "linear"}},
		"confidence": 0.9,
		"explainability": "该镜头几乎没有运动，属于静态镜头。主体占比适中，可维持当前构图。"
	}`)
	s := NewSynthesizer(DefaultConfig(), mock, zerolog.Nop())

	out, err := s.Synthesize(context.Background(), staticIndicators(), nil, nil)
	require.NoError(t, err)

	// Rule confidence for a matched static shot is 0.95; blended with
	// the model's 0.9 and lifted by high smoothness: 0.92 + 0.045.
	assert.InDelta(t, 0.965, out.Confidence, 1e-9)
}

func TestSynthesizeIgnoresUnknownEnumsFromModel(t *testing.T) {
	mock := llm.NewMockCompleter()
	mock.Respond("avg_motion_px_per_s", `{
		"motion": {"type": "zoom", "params": {"speed_profile": "bounce"}},
		"framing": {"suggested_scale": "ultra_wide"},
		"explainability": "该镜头几乎没有运动，画面稳定。建议保持三脚架固定拍摄。"
	}`)
	s := NewSynthesizer(DefaultConfig(), mock, zerolog.Nop())

	out, err := s.Synthesize(context.Background(), staticIndicators(), nil, nil)
	require.NoError(t, err)

	// Unknown values fall back to the rule baseline.
	assert.Equal(t, model.MotionStatic, out.MotionType)
	assert.Equal(t, model.SpeedLinear, out.MotionParams.SpeedProfile)
	assert.Equal(t, model.ScaleCloseup, out.Framing.SuggestedScale)
}

func TestSynthesizeFallsBackWhenModelFails(t *testing.T) {
	mock := llm.NewMockCompleter()
	mock.Fail(errors.New("upstream down"))
	s := NewSynthesizer(DefaultConfig(), mock, zerolog.Nop())

	out, err := s.Synthesize(context.Background(), staticIndicators(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.MotionStatic, out.MotionType)
}

func TestSynthesizeSurfacesModelErrorWithoutFallback(t *testing.T) {
	mock := llm.NewMockCompleter()
	mock.Fail(errors.New("upstream down"))
	cfg := DefaultConfig()
	cfg.FallbackToRules = false
	s := NewSynthesizer(cfg, mock, zerolog.Nop())

	_, err := s.Synthesize(context.Background(), staticIndicators(), nil, nil)
	assert.Error(t, err)
}

func TestValidateMetadataReportsDottedPaths(t *testing.T) {
	m := model.MetadataOutput{
		TimeRange:  [2]float64{5, 2},
		MotionType: "zoom",
		MotionParams: model.MotionParams{
			DurationS:        0,
			FramePctChange:   1.5,
			SpeedProfile:     model.SpeedLinear,
			MotionSmoothness: 0.5,
		},
		Framing: model.FramingData{
			SubjectBBox:      model.BBox{X: 0.8, Y: 0.1, W: 0.5, H: 0.2},
			SubjectOccupancy: 0.3,
			SuggestedScale:   model.ScaleMedium,
		},
		BeatAlignment:  0.5,
		Confidence:     2.0,
		Explainability: "测试",
	}

	errs := ValidateMetadata(m)
	joined := strings.Join(errs, "\n")
	assert.Contains(t, joined, "time_range")
	assert.Contains(t, joined, "motion_type")
	assert.Contains(t, joined, "motion_params.duration_s")
	assert.Contains(t, joined, "motion_params.frame_pct_change")
	assert.Contains(t, joined, "framing.subject_bbox")
	assert.Contains(t, joined, "confidence")
}

func TestRepairMetadataFixesNumericIssues(t *testing.T) {
	m := model.MetadataOutput{
		TimeRange:  [2]float64{-1, -1},
		MotionType: model.MotionStatic,
		MotionParams: model.MotionParams{
			DurationS:        -2,
			FramePctChange:   1.5,
			SpeedProfile:     model.SpeedLinear,
			MotionSmoothness: -0.1,
		},
		Framing: model.FramingData{
			SubjectBBox:      model.BBox{X: 0.8, Y: 0.8, W: 0.5, H: 0.5},
			SubjectOccupancy: 1.2,
			SuggestedScale:   model.ScaleMedium,
		},
		BeatAlignment:  -0.5,
		Confidence:     1.5,
		Explainability: "画面稳定。建议保持。",
	}

	fixed := RepairMetadata(m)
	assert.Empty(t, ValidateMetadata(fixed))
	assert.Equal(t, 0.0, fixed.TimeRange[0])
	assert.Equal(t, 1.0, fixed.TimeRange[1])
	assert.Equal(t, 1.0, fixed.Confidence)
	assert.True(t, fixed.Framing.SubjectBBox.IsValid())
}

func TestRepairMetadataTruncatesLongExplanation(t *testing.T) {
	m := model.MetadataOutput{
		TimeRange:      [2]float64{0, 2},
		MotionType:     model.MotionStatic,
		MotionParams:   model.MotionParams{DurationS: 2, SpeedProfile: model.SpeedLinear},
		Framing:        model.FramingData{SuggestedScale: model.ScaleMedium},
		Confidence:     0.8,
		Explainability: strings.Repeat("稳", 600),
	}

	fixed := RepairMetadata(m)
	assert.Equal(t, 500, utf8.RuneCountInString(fixed.Explainability))
	assert.True(t, strings.HasSuffix(fixed.Explainability, "..."))
}

func TestConfidenceAction(t *testing.T) {
	assert.Equal(t, ActionProceed, ConfidenceAction(0.8))
	assert.Equal(t, ActionWarn, ConfidenceAction(0.75))
	assert.Equal(t, ActionWarn, ConfidenceAction(0.55))
	assert.Equal(t, ActionManual, ConfidenceAction(0.54))
}

func TestEstimateBBoxFromOccupancy(t *testing.T) {
	b := estimateBBox(0.3)
	assert.InDelta(t, 0.3, b.Area(), 1e-9)
	cx, cy := b.Center()
	assert.InDelta(t, 0.5, cx, 1e-9)
	assert.InDelta(t, 0.5, cy, 1e-9)

	b = estimateBBox(0)
	assert.Equal(t, model.BBox{X: 0.4, Y: 0.4, W: 0.2, H: 0.2}, b)
}
