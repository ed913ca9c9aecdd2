// Package instruction renders validated metadata into three-layer
// Chinese shooting instruction cards: actionable primary lines, a short
// rationale, and adjustable professional parameters.
package instruction

import (
	"fmt"

	"github.com/framewise/shotcoach/internal/model"
)

// Config holds the description mapping thresholds.
type Config struct {
	// Frame change thresholds separating slow, medium, and fast moves.
	SlowThreshold float64 `yaml:"slow_threshold"`
	FastThreshold float64 `yaml:"fast_threshold"`

	// Smoothness thresholds selecting the equipment tier.
	HighSmoothness float64 `yaml:"high_smoothness"`
	LowSmoothness  float64 `yaml:"low_smoothness"`

	// Confidence cut points for the recommendation line.
	HighConfidence   float64 `yaml:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		SlowThreshold:    0.1,
		FastThreshold:    0.25,
		HighSmoothness:   0.7,
		LowSmoothness:    0.4,
		HighConfidence:   0.75,
		MediumConfidence: 0.55,
	}
}

// EquipmentCategory tiers the stabilization hardware by achievable
// smoothness.
type EquipmentCategory string

const (
	EquipmentProfessional   EquipmentCategory = "professional"
	EquipmentHandheldGimbal EquipmentCategory = "handheld_gimbal"
	EquipmentStatic         EquipmentCategory = "static"
)

// Generator renders instruction cards. Stateless and safe for
// concurrent use.
type Generator struct {
	cfg Config
}

// NewGenerator builds a generator; a zero config gets defaults.
func NewGenerator(cfg Config) *Generator {
	if cfg.FastThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Generator{cfg: cfg}
}

// Generate renders the complete three-layer card.
func (g *Generator) Generate(metadata model.MetadataOutput, videoID string) model.InstructionCard {
	if videoID == "" {
		videoID = "unknown"
	}
	return model.InstructionCard{
		VideoID:  videoID,
		Primary:  g.GeneratePrimary(metadata),
		Explain:  g.GenerateExplain(metadata),
		Advanced: g.GenerateAdvanced(metadata),
	}
}

var actionNames = map[model.MotionType]string{
	model.MotionDollyIn:  "推镜头",
	model.MotionDollyOut: "拉镜头",
	model.MotionPan:      "横摇镜头",
	model.MotionTilt:     "纵摇镜头",
	model.MotionTrack:    "跟踪镜头",
	model.MotionHandheld: "手持镜头",
	model.MotionStatic:   "静态镜头",
}

var alternatives = map[model.MotionType]string{
	model.MotionDollyIn:  "静态特写或缓慢推进",
	model.MotionDollyOut: "静态全景或缓慢拉远",
	model.MotionPan:      "静态拍摄或分段横摇",
	model.MotionTilt:     "静态拍摄或分段纵摇",
	model.MotionTrack:    "固定机位跟拍或手持跟踪",
	model.MotionHandheld: "三脚架固定拍摄",
	model.MotionStatic:   "保持当前静态拍摄",
}

// GeneratePrimary renders the four primary lines: time range and
// action, movement manner and duration, equipment, and the confidence
// verdict.
func (g *Generator) GeneratePrimary(metadata model.MetadataOutput) []string {
	lines := make([]string, 0, 4)

	action, ok := actionNames[metadata.MotionType]
	if !ok {
		action = "未知镜头类型"
	}
	lines = append(lines, fmt.Sprintf("时间段 %.1fs - %.1fs：%s", metadata.TimeRange[0], metadata.TimeRange[1], action))

	speedDesc := g.SpeedDescription(metadata.MotionParams.FramePctChange, metadata.MotionType)
	lines = append(lines, fmt.Sprintf("运动方式：%s，持续 %.1f 秒", speedDesc, metadata.MotionParams.DurationS))

	lines = append(lines, g.EquipmentSuggestion(metadata.MotionParams.MotionSmoothness))

	confidence := metadata.Confidence
	switch {
	case confidence > g.cfg.HighConfidence:
		lines = append(lines, fmt.Sprintf("置信度：%.0f%%，推荐执行", confidence*100))
	case confidence >= g.cfg.MediumConfidence:
		lines = append(lines, fmt.Sprintf("置信度：%.0f%%，请尝试并拍摄两条版本", confidence*100))
	default:
		alt, ok := alternatives[metadata.MotionType]
		if !ok {
			alt = "静态拍摄"
		}
		lines = append(lines, fmt.Sprintf("置信度：%.0f%%，建议人工确认。备选：%s", confidence*100, alt))
	}
	return lines
}

// SpeedDescription maps a frame change ratio and motion type to the
// movement manner phrase.
func (g *Generator) SpeedDescription(framePctChange float64, motionType model.MotionType) string {
	var direction string
	switch motionType {
	case model.MotionDollyIn:
		direction = "推进"
	case model.MotionDollyOut:
		direction = "拉远"
	case model.MotionPan:
		direction = "横移"
	case model.MotionTilt:
		direction = "纵移"
	case model.MotionTrack:
		direction = "跟踪"
	case model.MotionHandheld:
		direction = "手持移动"
	case model.MotionStatic:
		return "静止"
	default:
		direction = "运动"
	}

	switch {
	case framePctChange < g.cfg.SlowThreshold:
		return "缓慢" + direction
	case framePctChange <= g.cfg.FastThreshold:
		return "中速" + direction
	default:
		if motionType == model.MotionDollyIn || motionType == model.MotionDollyOut {
			return "快速" + direction + "或换镜头"
		}
		return "快速" + direction
	}
}

// EquipmentSuggestion maps smoothness to the primary-layer equipment
// line.
func (g *Generator) EquipmentSuggestion(smoothness float64) string {
	switch {
	case smoothness > g.cfg.HighSmoothness:
		return "建议使用滑轨/电动滑轨/三轴稳定器"
	case smoothness >= g.cfg.LowSmoothness:
		return "建议手持配合云台/稳定器使用"
	default:
		return "建议使用三脚架静态拍摄或减少运动幅度"
	}
}

// EquipmentTier classifies smoothness into an equipment category.
func (g *Generator) EquipmentTier(smoothness float64) EquipmentCategory {
	switch {
	case smoothness > g.cfg.HighSmoothness:
		return EquipmentProfessional
	case smoothness >= g.cfg.LowSmoothness:
		return EquipmentHandheldGimbal
	default:
		return EquipmentStatic
	}
}

// Stabilization crosses the equipment tier with the motion type to name
// the specific rig.
func (g *Generator) Stabilization(smoothness float64, motionType model.MotionType) string {
	switch g.EquipmentTier(smoothness) {
	case EquipmentProfessional:
		switch motionType {
		case model.MotionDollyIn, model.MotionDollyOut:
			return "电动滑轨或轨道车"
		case model.MotionTrack:
			return "三轴稳定器或斯坦尼康"
		case model.MotionPan, model.MotionTilt:
			return "电动云台或液压云台"
		default:
			return "三轴稳定器"
		}
	case EquipmentHandheldGimbal:
		if motionType == model.MotionHandheld {
			return "手持稳定器"
		}
		return "手持云台"
	default:
		if motionType == model.MotionStatic {
			return "三脚架"
		}
		return "三脚架或独脚架"
	}
}

// GenerateExplain renders the rationale: motion character, framing, and
// rhythm when beat alignment is significant.
func (g *Generator) GenerateExplain(metadata model.MetadataOutput) string {
	out := g.explainMotion(metadata.MotionType, metadata.MotionParams.MotionSmoothness)
	out += g.explainFraming(metadata.Framing.SubjectOccupancy, metadata.Framing.SuggestedScale)
	if metadata.BeatAlignment > 0.5 {
		out += g.explainRhythm(metadata.BeatAlignment)
	}
	return out
}

func (g *Generator) explainMotion(motionType model.MotionType, smoothness float64) string {
	var smoothnessDesc string
	switch {
	case smoothness > 0.7:
		smoothnessDesc = "流畅"
	case smoothness > 0.4:
		smoothnessDesc = "适中"
	default:
		smoothnessDesc = "需要稳定"
	}

	switch motionType {
	case model.MotionDollyIn:
		return fmt.Sprintf("画面呈现向前推进的特征，主体逐渐放大，运动%s。", smoothnessDesc)
	case model.MotionDollyOut:
		return fmt.Sprintf("画面呈现向后拉远的特征，展示更多环境，运动%s。", smoothnessDesc)
	case model.MotionPan:
		return fmt.Sprintf("画面呈现水平横移特征，适合展示宽广场景，运动%s。", smoothnessDesc)
	case model.MotionTilt:
		return fmt.Sprintf("画面呈现垂直移动特征，适合展示高度变化，运动%s。", smoothnessDesc)
	case model.MotionTrack:
		return fmt.Sprintf("画面呈现跟随主体运动的特征，保持主体在画面中的位置，运动%s。", smoothnessDesc)
	case model.MotionHandheld:
		return "画面呈现手持拍摄的自然晃动特征，具有临场感。"
	case model.MotionStatic:
		return "画面稳定无明显运动，适合静态构图或等待动作发生。"
	default:
		return fmt.Sprintf("检测到%s类型的镜头运动。", motionType)
	}
}

var scaleNames = map[model.SuggestedScale]string{
	model.ScaleExtremeCloseup: "特写",
	model.ScaleCloseup:        "近景",
	model.ScaleMedium:         "中景",
	model.ScaleWide:           "远景/全景",
}

func (g *Generator) explainFraming(occupancy float64, scale model.SuggestedScale) string {
	pct := int(occupancy * 100)
	scaleDesc, ok := scaleNames[scale]
	if !ok {
		scaleDesc = "中景"
	}

	switch {
	case occupancy >= 0.5:
		return fmt.Sprintf("主体占画面约%d%%，构图紧凑，建议%s拍摄以突出主体细节。", pct, scaleDesc)
	case occupancy >= 0.25:
		return fmt.Sprintf("主体占画面约%d%%，构图均衡，建议%s拍摄以平衡主体与环境。", pct, scaleDesc)
	case occupancy >= 0.1:
		return fmt.Sprintf("主体占画面约%d%%，环境占比较大，建议%s拍摄以展示场景氛围。", pct, scaleDesc)
	default:
		return fmt.Sprintf("主体占画面约%d%%，以环境为主，建议%s拍摄以呈现整体场景。", pct, scaleDesc)
	}
}

func (g *Generator) explainRhythm(beatAlignment float64) string {
	switch {
	case beatAlignment > 0.8:
		return "镜头运动与音乐节拍高度同步，建议保持这种节奏感。"
	case beatAlignment > 0.6:
		return "镜头运动与音乐节拍较为同步，可适当强化节奏配合。"
	default:
		return "镜头运动与音乐节拍有一定关联，可考虑调整以增强节奏感。"
	}
}

var targetOccupancyRanges = map[model.SuggestedScale]string{
	model.ScaleExtremeCloseup: "60%-80%",
	model.ScaleCloseup:        "40%-60%",
	model.ScaleMedium:         "20%-40%",
	model.ScaleWide:           "5%-20%",
}

var speedCurveNames = map[model.SpeedProfile]string{
	model.SpeedEaseIn:    "渐入（开始慢，逐渐加速）",
	model.SpeedEaseOut:   "渐出（开始快，逐渐减速）",
	model.SpeedEaseInOut: "渐入渐出（两端慢，中间快）",
	model.SpeedLinear:    "线性（匀速运动）",
}

// GenerateAdvanced renders the adjustable parameter layer.
func (g *Generator) GenerateAdvanced(metadata model.MetadataOutput) model.AdvancedParams {
	target, ok := targetOccupancyRanges[metadata.Framing.SuggestedScale]
	if !ok {
		target = "20%-40%"
	}
	curve, ok := speedCurveNames[metadata.MotionParams.SpeedProfile]
	if !ok {
		curve = "线性"
	}

	return model.AdvancedParams{
		TargetOccupancy: fmt.Sprintf("当前%d%%，目标%s", int(metadata.Framing.SubjectOccupancy*100), target),
		DurationS:       metadata.MotionParams.DurationS,
		SpeedCurve:      curve,
		Stabilization:   g.Stabilization(metadata.MotionParams.MotionSmoothness, metadata.MotionType),
		Notes:           g.professionalNotes(metadata),
	}
}

func (g *Generator) professionalNotes(metadata model.MetadataOutput) []string {
	var notes []string

	if est := g.physicalEstimate(metadata.MotionType, metadata.MotionParams.FramePctChange, metadata.MotionParams.DurationS); est != "" {
		notes = append(notes, est)
	}
	if lens := g.lensSuggestion(metadata.Framing.SuggestedScale, metadata.MotionType); lens != "" {
		notes = append(notes, lens)
	}
	if metadata.BeatAlignment > 0.5 {
		notes = append(notes, "注意与音乐节拍配合，可在节拍点开始或结束运动")
	}
	if metadata.MotionParams.MotionSmoothness < 0.5 {
		notes = append(notes, "当前运动较为抖动，建议增加稳定措施或降低运动速度")
	}
	if tip := compositionTips[metadata.Framing.SuggestedScale]; tip != "" {
		notes = append(notes, tip)
	}
	return notes
}

// physicalEstimate converts frame change into rough rig movement
// numbers: a 10% change is about half a meter of dolly travel or 15
// degrees of rotation.
func (g *Generator) physicalEstimate(motionType model.MotionType, framePctChange, durationS float64) string {
	switch motionType {
	case model.MotionDollyIn, model.MotionDollyOut:
		distanceM := framePctChange * 5.0
		speedMS := 0.0
		if durationS > 0 {
			speedMS = distanceM / durationS
		}
		return fmt.Sprintf("预估移动距离约 %.1fm，速度约 %.2fm/s", distanceM, speedMS)
	case model.MotionPan, model.MotionTilt:
		angleDeg := framePctChange * 150
		angularSpeed := 0.0
		if durationS > 0 {
			angularSpeed = angleDeg / durationS
		}
		direction := "水平"
		if motionType == model.MotionTilt {
			direction = "垂直"
		}
		return fmt.Sprintf("预估%s旋转约 %.0f°，角速度约 %.1f°/s", direction, angleDeg, angularSpeed)
	case model.MotionTrack:
		return fmt.Sprintf("预估跟踪距离约 %.1fm", framePctChange*3.0)
	default:
		return ""
	}
}

var focalSuggestions = map[model.SuggestedScale]string{
	model.ScaleExtremeCloseup: "85-135mm 或微距镜头",
	model.ScaleCloseup:        "50-85mm",
	model.ScaleMedium:         "35-50mm",
	model.ScaleWide:           "16-35mm 广角镜头",
}

func (g *Generator) lensSuggestion(scale model.SuggestedScale, motionType model.MotionType) string {
	base, ok := focalSuggestions[scale]
	if !ok {
		return ""
	}
	switch motionType {
	case model.MotionDollyIn, model.MotionDollyOut:
		return fmt.Sprintf("建议焦段：%s，推拉镜头可考虑变焦镜头配合", base)
	case model.MotionHandheld:
		return fmt.Sprintf("建议焦段：%s，手持拍摄建议使用防抖镜头", base)
	default:
		return "建议焦段：" + base
	}
}

var compositionTips = map[model.SuggestedScale]string{
	model.ScaleExtremeCloseup: "特写构图注意眼神光和皮肤质感",
	model.ScaleCloseup:        "近景构图注意头部空间和视线方向",
	model.ScaleMedium:         "中景构图注意人物与环境的平衡",
	model.ScaleWide:           "远景构图注意前景元素和景深层次",
}
