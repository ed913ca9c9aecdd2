package instruction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framewise/shotcoach/internal/model"
)

func metadata(motionType model.MotionType, fpc, smoothness, occupancy, confidence float64) model.MetadataOutput {
	return model.MetadataOutput{
		TimeRange:  [2]float64{2, 6.5},
		MotionType: motionType,
		MotionParams: model.MotionParams{
			DurationS:        4.5,
			FramePctChange:   fpc,
			SpeedProfile:     model.SpeedEaseInOut,
			MotionSmoothness: smoothness,
		},
		Framing: model.FramingData{
			SubjectBBox:      model.BBox{X: 0.3, Y: 0.3, W: 0.4, H: 0.4},
			SubjectOccupancy: occupancy,
			SuggestedScale:   model.ScaleCloseup,
		},
		BeatAlignment:  0.75,
		Confidence:     confidence,
		Explainability: "测试说明。",
	}
}

func TestSpeedDescriptionMapping(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	tests := []struct {
		name       string
		fpc        float64
		motionType model.MotionType
		want       string
	}{
		{"slow dolly in", 0.05, model.MotionDollyIn, "缓慢推进"},
		{"boundary slow", 0.1, model.MotionDollyIn, "中速推进"},
		{"medium dolly out", 0.2, model.MotionDollyOut, "中速拉远"},
		{"boundary fast", 0.25, model.MotionPan, "中速横移"},
		{"fast dolly in swaps lens", 0.3, model.MotionDollyIn, "快速推进或换镜头"},
		{"fast pan", 0.3, model.MotionPan, "快速横移"},
		{"fast tilt", 0.3, model.MotionTilt, "快速纵移"},
		{"track", 0.15, model.MotionTrack, "中速跟踪"},
		{"handheld", 0.05, model.MotionHandheld, "缓慢手持移动"},
		{"static ignores change", 0.9, model.MotionStatic, "静止"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.SpeedDescription(tt.fpc, tt.motionType))
		})
	}
}

func TestEquipmentSuggestionTiers(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	assert.Equal(t, "建议使用滑轨/电动滑轨/三轴稳定器", g.EquipmentSuggestion(0.8))
	// Exactly 0.7 falls into the handheld tier.
	assert.Equal(t, "建议手持配合云台/稳定器使用", g.EquipmentSuggestion(0.7))
	assert.Equal(t, "建议手持配合云台/稳定器使用", g.EquipmentSuggestion(0.4))
	assert.Equal(t, "建议使用三脚架静态拍摄或减少运动幅度", g.EquipmentSuggestion(0.39))
}

func TestStabilizationCrossProduct(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	tests := []struct {
		smoothness float64
		motionType model.MotionType
		want       string
	}{
		{0.9, model.MotionDollyIn, "电动滑轨或轨道车"},
		{0.9, model.MotionTrack, "三轴稳定器或斯坦尼康"},
		{0.9, model.MotionPan, "电动云台或液压云台"},
		{0.9, model.MotionStatic, "三轴稳定器"},
		{0.5, model.MotionHandheld, "手持稳定器"},
		{0.5, model.MotionDollyIn, "手持云台"},
		{0.2, model.MotionStatic, "三脚架"},
		{0.2, model.MotionPan, "三脚架或独脚架"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, g.Stabilization(tt.smoothness, tt.motionType), "smoothness=%v type=%s", tt.smoothness, tt.motionType)
	}
}

func TestGeneratePrimaryHighConfidence(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	lines := g.GeneratePrimary(metadata(model.MotionDollyIn, 0.18, 0.8, 0.45, 0.85))

	require.Len(t, lines, 4)
	assert.Equal(t, "时间段 2.0s - 6.5s：推镜头", lines[0])
	assert.Equal(t, "运动方式：中速推进，持续 4.5 秒", lines[1])
	assert.Equal(t, "建议使用滑轨/电动滑轨/三轴稳定器", lines[2])
	assert.Equal(t, "置信度：85%，推荐执行", lines[3])
}

func TestGeneratePrimaryMediumConfidence(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	lines := g.GeneratePrimary(metadata(model.MotionPan, 0.05, 0.5, 0.2, 0.6))

	require.Len(t, lines, 4)
	assert.Equal(t, "置信度：60%，请尝试并拍摄两条版本", lines[3])
}

func TestGeneratePrimaryLowConfidenceHasAlternative(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	lines := g.GeneratePrimary(metadata(model.MotionHandheld, 0.05, 0.3, 0.2, 0.4))

	require.Len(t, lines, 4)
	assert.Equal(t, "置信度：40%，建议人工确认。备选：三脚架固定拍摄", lines[3])
}

func TestGenerateExplainSentences(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	// High beat alignment adds the rhythm sentence.
	explain := g.GenerateExplain(metadata(model.MotionDollyIn, 0.18, 0.8, 0.45, 0.85))
	assert.Contains(t, explain, "向前推进")
	assert.Contains(t, explain, "运动流畅")
	assert.Contains(t, explain, "主体占画面约45%")
	assert.Contains(t, explain, "构图均衡")
	assert.Contains(t, explain, "较为同步")

	// Low beat alignment drops it.
	m := metadata(model.MotionStatic, 0.0, 0.9, 0.6, 0.9)
	m.BeatAlignment = 0.2
	explain = g.GenerateExplain(m)
	assert.Contains(t, explain, "画面稳定无明显运动")
	assert.Contains(t, explain, "构图紧凑")
	assert.NotContains(t, explain, "节拍")
}

func TestGenerateAdvancedParameters(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	adv := g.GenerateAdvanced(metadata(model.MotionDollyIn, 0.18, 0.8, 0.45, 0.85))

	assert.Equal(t, "当前45%，目标40%-60%", adv.TargetOccupancy)
	assert.InDelta(t, 4.5, adv.DurationS, 1e-9)
	assert.Equal(t, "渐入渐出（两端慢，中间快）", adv.SpeedCurve)
	assert.Equal(t, "电动滑轨或轨道车", adv.Stabilization)

	joined := strings.Join(adv.Notes, "\n")
	// 18% frame change estimates 0.9m of travel at 0.20m/s.
	assert.Contains(t, joined, "预估移动距离约 0.9m")
	assert.Contains(t, joined, "速度约 0.20m/s")
	assert.Contains(t, joined, "建议焦段：50-85mm，推拉镜头可考虑变焦镜头配合")
	assert.Contains(t, joined, "节拍点开始或结束运动")
	assert.Contains(t, joined, "近景构图注意头部空间和视线方向")
}

func TestGenerateAdvancedPanAngleEstimate(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	m := metadata(model.MotionPan, 0.2, 0.6, 0.15, 0.7)
	m.Framing.SuggestedScale = model.ScaleWide

	adv := g.GenerateAdvanced(m)
	joined := strings.Join(adv.Notes, "\n")
	// 20% frame change estimates 30 degrees over 4.5 seconds.
	assert.Contains(t, joined, "预估水平旋转约 30°")
	assert.Contains(t, joined, "建议焦段：16-35mm 广角镜头")
}

func TestGenerateAdvancedLowSmoothnessNote(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	adv := g.GenerateAdvanced(metadata(model.MotionHandheld, 0.05, 0.3, 0.2, 0.5))

	joined := strings.Join(adv.Notes, "\n")
	assert.Contains(t, joined, "当前运动较为抖动")
}

func TestGenerateCardIsComplete(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	card := g.Generate(metadata(model.MotionTrack, 0.12, 0.75, 0.3, 0.8), "vid-7")

	assert.Equal(t, "vid-7", card.VideoID)
	assert.True(t, card.IsComplete())

	card = g.Generate(metadata(model.MotionStatic, 0, 0.9, 0.3, 0.9), "")
	assert.Equal(t, "unknown", card.VideoID)
}

func TestStaticHasNoPhysicalEstimate(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	m := metadata(model.MotionStatic, 0.0, 0.9, 0.3, 0.9)
	m.BeatAlignment = 0.3

	adv := g.GenerateAdvanced(m)
	for _, note := range adv.Notes {
		assert.NotContains(t, note, "预估")
	}
}
