package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/framewise/shotcoach/internal/model"
)

func newTestMachine() *StateMachine {
	return NewStateMachine(DefaultStateMachineConfig(), DefaultClassifierConfig())
}

func TestStateMachineStartsStatic(t *testing.T) {
	sm := newTestMachine()
	assert.Equal(t, model.MotionStatic, sm.Current())
	assert.Equal(t, 0.0, sm.Confidence())
}

func TestStateChangeRequiresConsistency(t *testing.T) {
	sm := newTestMachine()
	dolly := ind(85, 0.18, 0.78, 0.45)

	// First dolly inference only becomes pending.
	got := sm.Update(dolly, nil)
	assert.Equal(t, model.MotionStatic, got)

	// Second consecutive inference commits the change.
	got = sm.Update(dolly, nil)
	assert.Equal(t, model.MotionDollyIn, got)
	assert.InDelta(t, 0.85, sm.Confidence(), 1e-9)
}

func TestMatchingInferenceReinforcesConfidence(t *testing.T) {
	sm := newTestMachine()
	static := ind(2, 0.01, 0.95, 0.4)

	sm.Update(static, nil)
	first := sm.Confidence()
	sm.Update(static, nil)
	second := sm.Confidence()

	assert.Greater(t, first, 0.0)
	assert.Greater(t, second, first)
}

func TestLowConfidenceInferenceDecaysWithoutChanging(t *testing.T) {
	cfg := DefaultStateMachineConfig()
	cfg.MinConfidence = 0.45
	sm := NewStateMachine(cfg, DefaultClassifierConfig())
	sm.ForceState(model.MotionStatic, 0.9)

	// Handheld at smoothness 0.25 scores 0.4, below the 0.45 change
	// threshold, so the state holds and confidence decays.
	jittery := ind(150, 0.05, 0.25, 0.2)
	got := sm.Update(jittery, nil)

	assert.Equal(t, model.MotionStatic, got)
	assert.InDelta(t, 0.9*0.9, sm.Confidence(), 1e-9)
}

func TestAlternatingInferencesNeverCommit(t *testing.T) {
	sm := newTestMachine()
	dolly := ind(85, 0.18, 0.78, 0.45)
	pan := ind(85, 0.05, 0.78, 0.05)

	for i := 0; i < 6; i++ {
		sm.Update(dolly, nil)
		sm.Update(pan, deg(5))
	}
	// Each candidate resets the other's pending count, so neither reaches
	// the consistency requirement.
	assert.Equal(t, model.MotionStatic, sm.Current())
}

func TestSuppressionSets(t *testing.T) {
	sm := newTestMachine()

	tests := []struct {
		state model.MotionType
		want  []string
	}{
		{model.MotionDollyIn, []string{SuppressSubjectSizeChange}},
		{model.MotionDollyOut, []string{SuppressSubjectSizeChange}},
		{model.MotionPan, []string{SuppressHorizontalDrift}},
		{model.MotionTilt, []string{SuppressVerticalDrift}},
		{model.MotionTrack, []string{SuppressSubjectSizeChange, SuppressHorizontalDrift}},
		{model.MotionStatic, nil},
		{model.MotionHandheld, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			sm.ForceState(tt.state, 1.0)
			set := sm.SuppressionSet()
			assert.Len(t, set, len(tt.want))
			for _, cat := range tt.want {
				assert.True(t, sm.ShouldSuppress(cat))
			}
		})
	}
}

func TestHistoryBounded(t *testing.T) {
	sm := newTestMachine()
	static := ind(2, 0.01, 0.95, 0.4)

	for i := 0; i < 12; i++ {
		sm.Update(static, nil)
	}
	assert.Len(t, sm.History(), DefaultStateMachineConfig().HistorySize)
}

func TestReset(t *testing.T) {
	sm := newTestMachine()
	dolly := ind(85, 0.18, 0.78, 0.45)
	sm.Update(dolly, nil)
	sm.Update(dolly, nil)

	sm.Reset()
	assert.Equal(t, model.MotionStatic, sm.Current())
	assert.Empty(t, sm.History())
	assert.Equal(t, 0.0, sm.Confidence())
}
