package model

// MotionType classifies the dominant camera movement of a clip segment.
type MotionType string

const (
	MotionStatic   MotionType = "static"
	MotionDollyIn  MotionType = "dolly_in"
	MotionDollyOut MotionType = "dolly_out"
	MotionPan      MotionType = "pan"
	MotionTilt     MotionType = "tilt"
	MotionTrack    MotionType = "track"
	MotionHandheld MotionType = "handheld"
)

// Valid reports whether mt is one of the known motion types.
func (mt MotionType) Valid() bool {
	switch mt {
	case MotionStatic, MotionDollyIn, MotionDollyOut, MotionPan, MotionTilt, MotionTrack, MotionHandheld:
		return true
	}
	return false
}

// Directional reports whether the motion type implies a camera direction
// that composition advice can reference.
func (mt MotionType) Directional() bool {
	switch mt {
	case MotionDollyIn, MotionDollyOut, MotionPan, MotionTilt, MotionTrack:
		return true
	}
	return false
}

// SpeedProfile describes the velocity curve of a camera movement.
type SpeedProfile string

const (
	SpeedLinear    SpeedProfile = "linear"
	SpeedEaseIn    SpeedProfile = "ease_in"
	SpeedEaseOut   SpeedProfile = "ease_out"
	SpeedEaseInOut SpeedProfile = "ease_in_out"
)

// Valid reports whether sp is one of the known speed profiles.
func (sp SpeedProfile) Valid() bool {
	switch sp {
	case SpeedLinear, SpeedEaseIn, SpeedEaseOut, SpeedEaseInOut:
		return true
	}
	return false
}

// SuggestedScale is the recommended framing scale for a shot.
type SuggestedScale string

const (
	ScaleExtremeCloseup SuggestedScale = "extreme_closeup"
	ScaleCloseup        SuggestedScale = "closeup"
	ScaleMedium         SuggestedScale = "medium"
	ScaleWide           SuggestedScale = "wide"
)

// Valid reports whether ss is one of the known scales.
func (ss SuggestedScale) Valid() bool {
	switch ss {
	case ScaleExtremeCloseup, ScaleCloseup, ScaleMedium, ScaleWide:
		return true
	}
	return false
}

// AdvicePriority orders realtime advice payloads for client display.
type AdvicePriority string

const (
	PriorityCritical AdvicePriority = "critical"
	PriorityWarning  AdvicePriority = "warning"
	PriorityInfo     AdvicePriority = "info"
	PriorityPositive AdvicePriority = "positive"
)

// AdviceCategory groups realtime advice payloads by concern.
type AdviceCategory string

const (
	CategoryStability   AdviceCategory = "stability"
	CategorySpeed       AdviceCategory = "speed"
	CategoryComposition AdviceCategory = "composition"
	CategoryBeat        AdviceCategory = "beat"
	CategoryEquipment   AdviceCategory = "equipment"
)

// DominantLight labels the color temperature of the scene lighting.
type DominantLight string

const (
	LightWarm    DominantLight = "warm"
	LightCool    DominantLight = "cool"
	LightNeutral DominantLight = "neutral"
)

// DeviceClass distinguishes consumer phones from rigs that can surface
// extended diagnostics.
type DeviceClass string

const (
	DeviceStandard     DeviceClass = "standard"
	DeviceProfessional DeviceClass = "professional"
)
