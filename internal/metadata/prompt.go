package metadata

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/framewise/shotcoach/internal/model"
)

// SystemPrompt instructs the model to emit structured shooting metadata.
const SystemPrompt = `你是一个专业的视频拍摄分析助手。你的任务是根据视频分析数据生成结构化的拍摄元数据。

你需要分析以下指标并生成JSON格式的元数据：
- avg_motion_px_per_s: 平均运动速度（像素/秒）
- frame_pct_change: 画幅占比变化率（0-1）
- motion_smoothness: 运动平滑度（0-1，越高越平滑）
- subject_occupancy: 主体占比（0-1）
- beat_alignment_score: 节拍对齐度（0-1）

你需要输出以下字段：
1. motion.type: 运动类型 (dolly_in/dolly_out/pan/tilt/track/handheld/static)
2. motion.params.speed_profile: 速度曲线 (ease_in/ease_out/ease_in_out/linear)
3. framing.suggested_scale: 建议景别 (extreme_closeup/closeup/medium/wide)
4. confidence: 置信度 (0-1)
5. explainability: 2句话的中文解释

请严格按照JSON格式输出，不要添加额外的文字说明。`

type fewShotExample struct {
	input  string
	output string
}

var fewShotExamples = []fewShotExample{
	{
		input: `{
  "avg_motion_px_per_s": 2.5,
  "frame_pct_change": 0.02,
  "motion_smoothness": 0.95,
  "subject_occupancy": 0.35,
  "beat_alignment_score": 0.6,
  "exif": {"focal_length_mm": 50, "aperture": 2.8}
}`,
		output: `{
  "motion": {"type": "static", "params": {"speed_profile": "linear"}},
  "framing": {"suggested_scale": "medium"},
  "confidence": 0.92,
  "explainability": "该镜头几乎没有运动，属于静态镜头。主体占画面约35%，适合中景构图。"
}`,
	},
	{
		input: `{
  "avg_motion_px_per_s": 85.0,
  "frame_pct_change": 0.18,
  "motion_smoothness": 0.78,
  "subject_occupancy": 0.45,
  "beat_alignment_score": 0.75,
  "exif": {"focal_length_mm": 35, "aperture": 4.0}
}`,
		output: `{
  "motion": {"type": "dolly_in", "params": {"speed_profile": "ease_in_out"}},
  "framing": {"suggested_scale": "closeup"},
  "confidence": 0.85,
  "explainability": "画幅变化明显（18%），表明镜头在推进。运动平滑度较高，建议使用渐入渐出的速度曲线。"
}`,
	},
	{
		input: `{
  "avg_motion_px_per_s": 120.0,
  "frame_pct_change": 0.05,
  "motion_smoothness": 0.65,
  "subject_occupancy": 0.15,
  "beat_alignment_score": 0.45,
  "exif": {"focal_length_mm": 24, "aperture": 5.6}
}`,
		output: `{
  "motion": {"type": "pan", "params": {"speed_profile": "linear"}},
  "framing": {"suggested_scale": "medium"},
  "confidence": 0.72,
  "explainability": "运动速度中等但画幅变化小，符合横摇特征。广角镜头配合中景构图适合展示环境。"
}`,
	},
	{
		input: `{
  "avg_motion_px_per_s": 180.0,
  "frame_pct_change": 0.08,
  "motion_smoothness": 0.35,
  "subject_occupancy": 0.25,
  "beat_alignment_score": 0.55,
  "exif": {"focal_length_mm": 85, "aperture": 1.8}
}`,
		output: `{
  "motion": {"type": "handheld", "params": {"speed_profile": "linear"}},
  "framing": {"suggested_scale": "closeup"},
  "confidence": 0.68,
  "explainability": "运动平滑度较低（0.35），呈现手持拍摄特征。长焦镜头配合近景可以突出主体。"
}`,
	},
}

type promptInput struct {
	AvgMotionPxPerS  float64    `json:"avg_motion_px_per_s"`
	FramePctChange   float64    `json:"frame_pct_change"`
	MotionSmoothness float64    `json:"motion_smoothness"`
	SubjectOccupancy float64    `json:"subject_occupancy"`
	BeatAlignment    float64    `json:"beat_alignment_score"`
	TimeRange        []float64  `json:"time_range,omitempty"`
	Exif             *promptExif `json:"exif,omitempty"`
}

type promptExif struct {
	FocalLengthMM float64 `json:"focal_length_mm"`
	Aperture      float64 `json:"aperture"`
	SensorSize    string  `json:"sensor_size,omitempty"`
}

func formatInput(ind model.HeuristicIndicators, exif *model.ExifData, withTimeRange bool) string {
	in := promptInput{
		AvgMotionPxPerS:  ind.AvgMotionPxPerS,
		FramePctChange:   ind.FramePctChange,
		MotionSmoothness: ind.MotionSmoothness,
		SubjectOccupancy: ind.SubjectOccupancy,
		BeatAlignment:    ind.BeatAlignment,
	}
	if withTimeRange {
		in.TimeRange = []float64{ind.TimeRange[0], ind.TimeRange[1]}
	}
	if exif != nil {
		in.Exif = &promptExif{
			FocalLengthMM: exif.FocalLengthMM,
			Aperture:      exif.Aperture,
			SensorSize:    exif.SensorSize,
		}
	}
	b, _ := json.MarshalIndent(in, "", "  ")
	return string(b)
}

// BuildFewShotPrompt assembles the example-driven synthesis prompt.
// numExamples is clamped to the 2..4 range.
func BuildFewShotPrompt(ind model.HeuristicIndicators, exif *model.ExifData, numExamples int) string {
	if numExamples < 2 {
		numExamples = 2
	}
	if numExamples > len(fewShotExamples) {
		numExamples = len(fewShotExamples)
	}

	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\n## 示例\n")
	for i, ex := range fewShotExamples[:numExamples] {
		fmt.Fprintf(&b, "\n### 示例 %d\n", i+1)
		fmt.Fprintf(&b, "输入数据:\n```json\n%s\n```\n", ex.input)
		fmt.Fprintf(&b, "输出:\n```json\n%s\n```\n", ex.output)
	}
	b.WriteString("\n## 当前任务\n\n请根据以下视频分析数据生成元数据：\n\n")
	fmt.Fprintf(&b, "输入数据:\n```json\n%s\n```\n\n", formatInput(ind, exif, true))
	b.WriteString("请输出完整的JSON格式元数据，包含motion、framing、confidence和explainability字段。\n只输出JSON，不要添加其他文字。")
	return b.String()
}

// BuildSimplePrompt assembles a compact prompt without examples, for
// faster inference or tight token budgets.
func BuildSimplePrompt(ind model.HeuristicIndicators, exif *model.ExifData) string {
	var b strings.Builder
	b.WriteString("分析以下视频数据并生成拍摄元数据JSON：\n\n")
	fmt.Fprintf(&b, "数据: %s\n\n", formatInput(ind, exif, false))
	b.WriteString(`输出格式要求：
{
  "motion": {
    "type": "dolly_in|dolly_out|pan|tilt|track|handheld|static",
    "params": {
      "speed_profile": "ease_in|ease_out|ease_in_out|linear"
    }
  },
  "framing": {
    "suggested_scale": "extreme_closeup|closeup|medium|wide"
  },
  "confidence": 0.0-1.0,
  "explainability": "2句话中文解释"
}

只输出JSON。`)
	return b.String()
}

// ModelResult is the parsed shape of a model completion. Pointer fields
// distinguish absent values from zeros.
type ModelResult struct {
	Motion struct {
		Type   string `json:"type"`
		Params struct {
			SpeedProfile string `json:"speed_profile"`
		} `json:"params"`
	} `json:"motion"`
	Framing struct {
		SuggestedScale string `json:"suggested_scale"`
	} `json:"framing"`
	Confidence     *float64 `json:"confidence"`
	Explainability string   `json:"explainability"`
}

var (
	codeBlockRe  = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)
)

// ParseModelResponse extracts the metadata JSON from a raw completion.
// It accepts bare JSON, fenced code blocks, and JSON embedded in prose.
func ParseModelResponse(raw string) (ModelResult, error) {
	var out ModelResult

	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, nil
	}

	for _, m := range codeBlockRe.FindAllStringSubmatch(raw, -1) {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &out); err == nil {
			return out, nil
		}
	}

	if m := jsonObjectRe.FindString(raw); m != "" {
		if err := json.Unmarshal([]byte(m), &out); err == nil {
			return out, nil
		}
	}

	return out, fmt.Errorf("metadata: no JSON object in model response: %s", snippet(raw, 200))
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
