// Package metadata synthesizes structured shooting metadata for a clip
// segment by combining the rule-based motion classifier with an optional
// LLM refinement pass, then validating the result against the output
// contract.
package metadata

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/framewise/shotcoach/internal/llm"
	"github.com/framewise/shotcoach/internal/model"
	"github.com/framewise/shotcoach/internal/motion"
)

// Action is the recommendation gate derived from final confidence.
type Action string

const (
	ActionProceed Action = "proceed"
	ActionWarn    Action = "warn"
	ActionManual  Action = "manual"
)

// ConfidenceAction maps a confidence score to the execution gate.
func ConfidenceAction(confidence float64) Action {
	switch {
	case confidence > 0.75:
		return ActionProceed
	case confidence >= 0.55:
		return ActionWarn
	default:
		return ActionManual
	}
}

// Config controls the synthesis pipeline.
type Config struct {
	UseLLM          bool `yaml:"use_llm"`
	UseFewShot      bool `yaml:"use_few_shot"`
	NumExamples     int  `yaml:"num_examples"`
	FallbackToRules bool `yaml:"fallback_to_rules"`
	ValidateOutput  bool `yaml:"validate_output"`
	AutoRepair      bool `yaml:"auto_repair"`
}

// DefaultConfig returns the standard synthesis settings.
func DefaultConfig() Config {
	return Config{
		UseLLM:          true,
		UseFewShot:      true,
		NumExamples:     3,
		FallbackToRules: true,
		ValidateOutput:  true,
		AutoRepair:      true,
	}
}

// Synthesizer merges rule-based inference with model refinement.
type Synthesizer struct {
	cfg        Config
	completer  llm.Completer
	classifier *motion.Classifier
	logger     zerolog.Logger
}

// NewSynthesizer builds a synthesizer. A nil completer disables the
// refinement pass regardless of config.
func NewSynthesizer(cfg Config, completer llm.Completer, logger zerolog.Logger) *Synthesizer {
	if cfg.NumExamples == 0 {
		cfg = DefaultConfig()
	}
	return &Synthesizer{
		cfg:        cfg,
		completer:  completer,
		classifier: motion.NewClassifier(motion.DefaultClassifierConfig()),
		logger:     logger.With().Str("component", "metadata_synthesizer").Logger(),
	}
}

// Synthesize produces validated metadata for one indicator record.
func (s *Synthesizer) Synthesize(ctx context.Context, ind model.HeuristicIndicators, exif *model.ExifData, direction *float64) (model.MetadataOutput, error) {
	rule := s.classifier.Classify(ind, direction)

	var refined *ModelResult
	if s.cfg.UseLLM && s.completer != nil {
		res, err := s.refine(ctx, ind, exif)
		if err != nil {
			s.logger.Warn().Err(err).Str("video_id", ind.VideoID).Msg("model refinement failed")
			if !s.cfg.FallbackToRules {
				return model.MetadataOutput{}, err
			}
		} else {
			refined = res
		}
	}

	out := s.merge(ind, rule, refined)

	if s.cfg.ValidateOutput {
		if errs := ValidateMetadata(out); len(errs) > 0 {
			s.logger.Warn().Strs("errors", errs).Msg("metadata failed validation")
			if !s.cfg.AutoRepair {
				return model.MetadataOutput{}, &ValidationError{Errors: errs}
			}
			out = RepairMetadata(out)
			if errs := ValidateMetadata(out); len(errs) > 0 {
				return model.MetadataOutput{}, &ValidationError{Errors: errs}
			}
		}
	}
	return out, nil
}

func (s *Synthesizer) refine(ctx context.Context, ind model.HeuristicIndicators, exif *model.ExifData) (*ModelResult, error) {
	var prompt string
	if s.cfg.UseFewShot {
		prompt = BuildFewShotPrompt(ind, exif, s.cfg.NumExamples)
	} else {
		prompt = BuildSimplePrompt(ind, exif)
	}

	raw, err := s.completer.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	res, err := ParseModelResponse(raw)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// merge starts from the rule baseline and overrides with model values
// where they parse to known enums. Confidence blends both sources and is
// adjusted by data quality signals.
func (s *Synthesizer) merge(ind model.HeuristicIndicators, rule motion.Inference, refined *ModelResult) model.MetadataOutput {
	motionType := rule.MotionType
	speedProfile := rule.SpeedProfile
	scale := rule.Scale

	var llmConfidence *float64
	var llmExplanation string
	if refined != nil {
		if mt := model.MotionType(refined.Motion.Type); refined.Motion.Type != "" && mt.Valid() {
			motionType = mt
		} else if refined.Motion.Type != "" {
			s.logger.Warn().Str("motion_type", refined.Motion.Type).Msg("ignoring unknown motion type from model")
		}
		if sp := model.SpeedProfile(refined.Motion.Params.SpeedProfile); refined.Motion.Params.SpeedProfile != "" && sp.Valid() {
			speedProfile = sp
		}
		if sc := model.SuggestedScale(refined.Framing.SuggestedScale); refined.Framing.SuggestedScale != "" && sc.Valid() {
			scale = sc
		}
		llmConfidence = refined.Confidence
		llmExplanation = refined.Explainability
	}

	confidence := s.finalConfidence(rule.Confidence, llmConfidence, ind)
	explanation := s.explanation(motionType, ind, llmExplanation)

	duration := ind.TimeRange[1] - ind.TimeRange[0]
	return model.MetadataOutput{
		TimeRange:  ind.TimeRange,
		MotionType: motionType,
		MotionParams: model.MotionParams{
			DurationS:        duration,
			FramePctChange:   ind.FramePctChange,
			SpeedProfile:     speedProfile,
			MotionSmoothness: ind.MotionSmoothness,
		},
		Framing: model.FramingData{
			SubjectBBox:      estimateBBox(ind.SubjectOccupancy),
			SubjectOccupancy: ind.SubjectOccupancy,
			SuggestedScale:   scale,
		},
		BeatAlignment:  ind.BeatAlignment,
		Confidence:     confidence,
		Explainability: explanation,
	}
}

// finalConfidence blends rule and model confidence with the model
// weighted higher, then adjusts for signal quality.
func (s *Synthesizer) finalConfidence(ruleConf float64, llmConf *float64, ind model.HeuristicIndicators) float64 {
	confidence := ruleConf
	if llmConf != nil {
		confidence = 0.4*ruleConf + 0.6**llmConf
	}

	confidence += 0.1 * (ind.MotionSmoothness - 0.5)

	// Extreme frame change readings are unreliable measurements.
	if ind.FramePctChange < 0.01 || ind.FramePctChange > 0.95 {
		confidence -= 0.05
	}
	if ind.BeatAlignment > 0.7 {
		confidence += 0.05
	}
	return model.Clamp01(confidence)
}

func (s *Synthesizer) explanation(motionType model.MotionType, ind model.HeuristicIndicators, llmExplanation string) string {
	if n := utf8.RuneCountInString(strings.TrimSpace(llmExplanation)); n > 10 {
		if utf8.RuneCountInString(llmExplanation) <= maxExplainabilityRunes {
			return llmExplanation
		}
		runes := []rune(llmExplanation)
		return string(runes[:maxExplainabilityRunes-3]) + "..."
	}
	return defaultExplanation(motionType, ind)
}

// estimateBBox derives a centered box from occupancy assuming a 4:3
// subject aspect ratio.
func estimateBBox(occupancy float64) model.BBox {
	if occupancy <= 0 {
		return model.BBox{X: 0.4, Y: 0.4, W: 0.2, H: 0.2}
	}
	h := math.Min(1, math.Sqrt(3*occupancy/4))
	w := math.Min(1, 4*h/3)
	return model.BBox{
		X: math.Max(0, (1-w)/2),
		Y: math.Max(0, (1-h)/2),
		W: w,
		H: h,
	}
}

var motionDescriptions = map[model.MotionType]string{
	model.MotionStatic:   "静态镜头",
	model.MotionDollyIn:  "推镜头",
	model.MotionDollyOut: "拉镜头",
	model.MotionPan:      "横摇镜头",
	model.MotionTilt:     "纵摇镜头",
	model.MotionTrack:    "跟踪镜头",
	model.MotionHandheld: "手持镜头",
}

// defaultExplanation builds the two-sentence Chinese fallback: motion
// character first, then composition and technique.
func defaultExplanation(motionType model.MotionType, ind model.HeuristicIndicators) string {
	smoothness := ind.MotionSmoothness
	var smoothnessDesc string
	switch {
	case smoothness > 0.7:
		smoothnessDesc = "平滑"
	case smoothness > 0.4:
		smoothnessDesc = "中等流畅度"
	default:
		smoothnessDesc = "略有抖动"
	}

	var sentence1 string
	switch motionType {
	case model.MotionStatic:
		sentence1 = "该镜头为静态镜头，画面稳定无明显运动。"
	case model.MotionDollyIn, model.MotionDollyOut:
		direction := "推进"
		if motionType == model.MotionDollyOut {
			direction = "拉远"
		}
		var speedDesc string
		switch {
		case ind.FramePctChange < 0.1:
			speedDesc = "缓慢"
		case ind.FramePctChange <= 0.25:
			speedDesc = "中速"
		default:
			speedDesc = "快速"
		}
		sentence1 = fmt.Sprintf("该镜头为%s%s，运动%s。", speedDesc, direction, smoothnessDesc)
	case model.MotionPan:
		sentence1 = fmt.Sprintf("该镜头为横向摇移，运动%s，适合展示宽广场景。", smoothnessDesc)
	case model.MotionTilt:
		sentence1 = fmt.Sprintf("该镜头为纵向摇移，运动%s，适合展示高度变化。", smoothnessDesc)
	case model.MotionTrack:
		sentence1 = fmt.Sprintf("该镜头为跟踪运动，运动%s，持续跟随主体。", smoothnessDesc)
	case model.MotionHandheld:
		sentence1 = "该镜头呈现手持拍摄特征，具有自然的运动感。"
	default:
		desc, ok := motionDescriptions[motionType]
		if !ok {
			desc = "未知运动类型"
		}
		sentence1 = fmt.Sprintf("该镜头为%s，运动%s。", desc, smoothnessDesc)
	}

	occupancyPct := int(ind.SubjectOccupancy * 100)
	var composition string
	switch {
	case ind.SubjectOccupancy >= 0.5:
		composition = fmt.Sprintf("主体占画面约%d%%，构图紧凑", occupancyPct)
	case ind.SubjectOccupancy >= 0.25:
		composition = fmt.Sprintf("主体占画面约%d%%，构图适中", occupancyPct)
	case ind.SubjectOccupancy >= 0.1:
		composition = fmt.Sprintf("主体占画面约%d%%，留有环境空间", occupancyPct)
	default:
		composition = fmt.Sprintf("主体占画面约%d%%，以环境为主", occupancyPct)
	}

	var technique string
	switch {
	case smoothness > 0.7:
		technique = "建议使用滑轨或稳定器保持流畅"
	case smoothness > 0.4:
		technique = "可配合云台使用"
	default:
		technique = "建议增加稳定措施或采用静态拍摄"
	}

	rhythm := ""
	if ind.BeatAlignment > 0.7 {
		rhythm = "，节奏感强"
	}

	return sentence1 + composition + rhythm + "，" + technique + "。"
}
