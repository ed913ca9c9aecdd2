package advice

import (
	"strings"

	"github.com/framewise/shotcoach/internal/model"
)

// Template keys used for cooldown bookkeeping and tests.
const (
	keyStabilityCritical = "stability_critical"
	keyStabilityWarning  = "stability_warning"
	keyStabilityPositive = "stability_positive"
	keySpeedTooFast      = "speed_too_fast"
	keySpeedUneven       = "speed_uneven"
	keySpeedPerfect      = "speed_perfect"
	keySubjectOffCenter  = "subject_off_center"
	keySubjectTooLarge   = "subject_too_large"
	keySubjectTooSmall   = "subject_too_small"
	keySubjectLost       = "subject_lost"
	keyDirectionHint     = "direction_hint"
	keyBeatUpcoming      = "beat_upcoming"
	keyBeatNow           = "beat_now"
	keyTelephotoShake    = "telephoto_shake"
	keyStabilization     = "stabilization_suggestion"
	keyLowConfidence     = "low_confidence"
)

// templates maps keys to advice payload prototypes. SuppressDurationMS
// tells the client how long to hold this message on screen before it may
// be replaced.
var templates = map[string]model.AdvicePayload{
	keyStabilityCritical: {
		Priority:           model.PriorityCritical,
		Category:           model.CategoryStability,
		Message:            "画面大幅抖动！请停下，尝试'忍者步'或寻找支撑点。",
		SuppressDurationMS: 5000,
		TriggerHaptic:      true,
	},
	keyStabilityWarning: {
		Priority:           model.PriorityWarning,
		Category:           model.CategoryStability,
		Message:            "手持略有不稳，请夹紧双肘，屏住呼吸。",
		SuppressDurationMS: 3000,
	},
	keyStabilityPositive: {
		Priority:           model.PriorityPositive,
		Category:           model.CategoryStability,
		Message:            "稳如泰山！保持当前状态。",
		SuppressDurationMS: 3000,
	},
	keySpeedTooFast: {
		Priority:           model.PriorityWarning,
		Category:           model.CategorySpeed,
		Message:            "移速太快了！请慢一点，给观众留出观察细节的时间。",
		SuppressDurationMS: 3000,
	},
	keySpeedUneven: {
		Priority:           model.PriorityWarning,
		Category:           model.CategorySpeed,
		Message:            "运镜不匀速，请保持平稳推拉，避免猛推猛拉。",
		SuppressDurationMS: 3000,
	},
	keySpeedPerfect: {
		Priority:           model.PriorityPositive,
		Category:           model.CategorySpeed,
		Message:            "运镜速度完美！",
		SuppressDurationMS: 3000,
	},
	keySubjectOffCenter: {
		Priority:           model.PriorityWarning,
		Category:           model.CategoryComposition,
		Message:            "主体正在偏离中心（或三分法线），请向{direction}微调镜头。",
		SuppressDurationMS: 3000,
	},
	keySubjectTooLarge: {
		Priority:           model.PriorityWarning,
		Category:           model.CategoryComposition,
		Message:            "主体遮挡占比过大，建议后退一步，给画面留白。",
		SuppressDurationMS: 3000,
	},
	keySubjectTooSmall: {
		Priority:           model.PriorityWarning,
		Category:           model.CategoryComposition,
		Message:            "主体太小，建议靠近或使用长焦。",
		SuppressDurationMS: 3000,
	},
	keySubjectLost: {
		Priority:           model.PriorityWarning,
		Category:           model.CategoryComposition,
		Message:            "主体丢失，请减慢运镜寻找主体。",
		SuppressDurationMS: 5000,
	},
	keyDirectionHint: {
		Priority:           model.PriorityInfo,
		Category:           model.CategoryComposition,
		Message:            "正在进行{direction}，请坚持到底，不要中途{avoid}晃动。",
		SuppressDurationMS: 3000,
	},
	keyBeatUpcoming: {
		Priority:           model.PriorityInfo,
		Category:           model.CategoryBeat,
		Message:            "预感重音！建议此时配合一个快速推镜或转场动作。",
		SuppressDurationMS: 2000,
	},
	keyBeatNow: {
		Priority:           model.PriorityInfo,
		Category:           model.CategoryBeat,
		Message:            "节奏点已到，可以考虑在此处切断或变换景别。",
		SuppressDurationMS: 2000,
	},
	keyTelephotoShake: {
		Priority:           model.PriorityWarning,
		Category:           model.CategoryEquipment,
		Message:            "当前长焦段放大抖动明显，建议切换至广角端（0.5x）拍摄更稳。",
		SuppressDurationMS: 5000,
	},
	keyStabilization: {
		Priority:           model.PriorityInfo,
		Category:           model.CategoryEquipment,
		Message:            "建议使用三脚架或手持稳定器以获得更稳定的画面。",
		SuppressDurationMS: 5000,
	},
	keyLowConfidence: {
		Priority:           model.PriorityInfo,
		Category:           model.CategoryStability,
		Message:            "分析中...",
		SuppressDurationMS: 2000,
	},
}

// advancedStabilityCritical is appended on professional rigs only.
const advancedStabilityCritical = "检测到高频震颤，建议检查云台电机是否过载，或开启机身增强防抖。"

// directionNames names the committed motion for direction hints.
var directionNames = map[string]string{
	"left":      "向左横移",
	"right":     "向右横移",
	"up":        "向上摇镜",
	"down":      "向下摇镜",
	"dolly_in":  "推镜头",
	"dolly_out": "拉镜头",
}

// avoidDirections names the axis to keep still during each movement.
var avoidDirections = map[string]string{
	"left":      "上下",
	"right":     "上下",
	"up":        "左右",
	"down":      "左右",
	"dolly_in":  "左右",
	"dolly_out": "左右",
}

func template(key string) model.AdvicePayload {
	return templates[key]
}

func directionHint(direction string) model.AdvicePayload {
	name, ok := directionNames[direction]
	if !ok {
		name = direction
	}
	avoid, ok := avoidDirections[direction]
	if !ok {
		avoid = "其他方向"
	}

	p := template(keyDirectionHint)
	p.Message = strings.NewReplacer("{direction}", name, "{avoid}", avoid).Replace(p.Message)
	return p
}

func subjectOffCenter(direction string) model.AdvicePayload {
	p := template(keySubjectOffCenter)
	p.Message = strings.ReplaceAll(p.Message, "{direction}", direction)
	return p
}
