package motion

import (
	"github.com/framewise/shotcoach/internal/model"
)

// Suppression category names consulted by the advice engine.
const (
	SuppressSubjectSizeChange = "subject_size_change"
	SuppressHorizontalDrift   = "horizontal_drift"
	SuppressVerticalDrift     = "vertical_drift"
)

// StateMachineConfig controls how eagerly the tracked motion state follows
// per-cycle inferences.
type StateMachineConfig struct {
	HistorySize         int     `yaml:"history_size"`
	MinConfidence       float64 `yaml:"min_confidence"`
	ConsistencyRequired int     `yaml:"consistency_required"`
	ConfidenceDecay     float64 `yaml:"confidence_decay"`
}

// DefaultStateMachineConfig returns the realtime defaults.
func DefaultStateMachineConfig() StateMachineConfig {
	return StateMachineConfig{
		HistorySize:         5,
		MinConfidence:       0.4,
		ConsistencyRequired: 2,
		ConfidenceDecay:     0.9,
	}
}

// StateMachine tracks the committed motion type across analysis cycles.
// A state change requires ConsistencyRequired identical inferences above
// MinConfidence; matching inferences reinforce confidence via EMA.
//
// Not safe for concurrent use; each session's analysis loop owns one.
type StateMachine struct {
	cfg        StateMachineConfig
	classifier *Classifier

	current      model.MotionType
	confidence   float64
	history      []model.MotionType
	pendingState model.MotionType
	pendingCount int
	hasPending   bool
}

// NewStateMachine builds a state machine starting in the static state.
func NewStateMachine(cfg StateMachineConfig, classifierCfg ClassifierConfig) *StateMachine {
	if cfg.HistorySize <= 0 {
		cfg = DefaultStateMachineConfig()
	}
	return &StateMachine{
		cfg:        cfg,
		classifier: NewClassifier(classifierCfg),
		current:    model.MotionStatic,
	}
}

// Current returns the committed motion type.
func (sm *StateMachine) Current() model.MotionType { return sm.current }

// Confidence returns the confidence of the committed state.
func (sm *StateMachine) Confidence() float64 { return sm.confidence }

// History returns the recent committed states, oldest first.
func (sm *StateMachine) History() []model.MotionType {
	out := make([]model.MotionType, len(sm.history))
	copy(out, sm.history)
	return out
}

// SuppressionSet returns the advice categories muted by the committed
// motion type: intentional movements should not trigger drift or size
// warnings.
func (sm *StateMachine) SuppressionSet() map[string]bool {
	switch sm.current {
	case model.MotionDollyIn, model.MotionDollyOut:
		return map[string]bool{SuppressSubjectSizeChange: true}
	case model.MotionPan:
		return map[string]bool{SuppressHorizontalDrift: true}
	case model.MotionTilt:
		return map[string]bool{SuppressVerticalDrift: true}
	case model.MotionTrack:
		return map[string]bool{SuppressSubjectSizeChange: true, SuppressHorizontalDrift: true}
	default:
		return map[string]bool{}
	}
}

// ShouldSuppress reports whether the named category is muted.
func (sm *StateMachine) ShouldSuppress(category string) bool {
	return sm.SuppressionSet()[category]
}

// Update classifies one indicator record and advances the state machine.
// Returns the committed motion type after the update.
func (sm *StateMachine) Update(ind model.HeuristicIndicators, direction *float64) model.MotionType {
	inferred := sm.classifier.InferType(ind, direction)
	confidence := sm.classifier.Confidence(ind, inferred)

	sm.processInference(inferred, confidence)

	sm.history = append(sm.history, sm.current)
	if len(sm.history) > sm.cfg.HistorySize {
		sm.history = sm.history[len(sm.history)-sm.cfg.HistorySize:]
	}
	return sm.current
}

func (sm *StateMachine) processInference(inferred model.MotionType, confidence float64) {
	if inferred == sm.current {
		sm.confidence = 0.3*confidence + 0.7*sm.confidence
		sm.hasPending = false
		sm.pendingCount = 0
		return
	}

	if confidence < sm.cfg.MinConfidence {
		sm.confidence *= sm.cfg.ConfidenceDecay
		return
	}

	if sm.hasPending && inferred == sm.pendingState {
		sm.pendingCount++
	} else {
		sm.pendingState = inferred
		sm.pendingCount = 1
		sm.hasPending = true
	}

	if sm.pendingCount >= sm.cfg.ConsistencyRequired {
		sm.current = inferred
		sm.confidence = confidence
		sm.hasPending = false
		sm.pendingCount = 0
	}
}

// Reset returns the machine to the initial static state.
func (sm *StateMachine) Reset() {
	sm.current = model.MotionStatic
	sm.confidence = 0
	sm.history = nil
	sm.hasPending = false
	sm.pendingCount = 0
}

// ForceState overrides the committed state, used in tests.
func (sm *StateMachine) ForceState(state model.MotionType, confidence float64) {
	sm.current = state
	sm.confidence = model.Clamp01(confidence)
	sm.hasPending = false
	sm.pendingCount = 0
}
