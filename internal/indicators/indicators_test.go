package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framewise/shotcoach/internal/model"
)

func TestAvgMotionFloorsNegativeSpeed(t *testing.T) {
	k := NewKernel(DefaultConfig())

	assert.Equal(t, 0.0, k.AvgMotion(model.OpticalFlowData{AvgSpeedPxS: -3}))
	assert.Equal(t, 42.5, k.AvgMotion(model.OpticalFlowData{AvgSpeedPxS: 42.5}))
}

func TestFramePctChange(t *testing.T) {
	k := NewKernel(DefaultConfig())

	box := func(side float64) model.BBox {
		return model.BBox{X: 0, Y: 0, W: side, H: side}
	}

	tests := []struct {
		name   string
		bboxes []model.BBox
		want   float64
	}{
		{"too few boxes", []model.BBox{box(0.5)}, 0},
		{"no change", []model.BBox{box(0.5), box(0.5), box(0.5)}, 0},
		// areas 0.25 -> 0.30: |0.05|/0.25 = 0.2, scaled by 1/0.5 = 0.4
		{"growing subject", []model.BBox{box(0.5), {W: 0.6, H: 0.5}}, 0.4},
		{"zero then nonzero counts full", []model.BBox{{}, box(0.5)}, 1.0},
		{"both zero ignored", []model.BBox{{}, {}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := k.FramePctChange(tt.bboxes)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestMotionSmoothness(t *testing.T) {
	k := NewKernel(DefaultConfig())

	t.Run("too few vectors gives neutral", func(t *testing.T) {
		flow := model.OpticalFlowData{FlowVectors: []model.FlowVector{{VX: 1}, {VX: 2}}}
		assert.Equal(t, 0.5, k.MotionSmoothness(flow))
	})

	t.Run("constant speed is perfectly smooth", func(t *testing.T) {
		flow := model.OpticalFlowData{FlowVectors: []model.FlowVector{
			{VX: 3, VY: 4}, {VX: 3, VY: 4}, {VX: 3, VY: 4}, {VX: 3, VY: 4},
		}}
		assert.InDelta(t, 1.0, k.MotionSmoothness(flow), 1e-9)
	})

	t.Run("jerky motion scores lower", func(t *testing.T) {
		smooth := model.OpticalFlowData{FlowVectors: []model.FlowVector{
			{VX: 10}, {VX: 11}, {VX: 12}, {VX: 13},
		}}
		jerky := model.OpticalFlowData{FlowVectors: []model.FlowVector{
			{VX: 10}, {VX: 40}, {VX: 5}, {VX: 35},
		}}
		assert.Greater(t, k.MotionSmoothness(smooth), k.MotionSmoothness(jerky))
	})

	t.Run("stays in unit interval", func(t *testing.T) {
		flow := model.OpticalFlowData{FlowVectors: []model.FlowVector{
			{VX: 0}, {VX: 500}, {VX: 0}, {VX: 500},
		}}
		got := k.MotionSmoothness(flow)
		assert.Greater(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	})
}

func TestSubjectOccupancy(t *testing.T) {
	k := NewKernel(DefaultConfig())

	assert.Equal(t, 0.0, k.SubjectOccupancy(nil))

	bboxes := []model.BBox{
		{W: 0.5, H: 0.5}, // 0.25
		{W: 0.5, H: 0.3}, // 0.15
	}
	assert.InDelta(t, 0.2, k.SubjectOccupancy(bboxes), 1e-9)
}

func TestBeatAlignment(t *testing.T) {
	k := NewKernel(DefaultConfig())

	t.Run("empty lists give neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, k.BeatAlignment(nil, []float64{1, 2}))
		assert.Equal(t, 0.5, k.BeatAlignment([]float64{1, 2}, nil))
	})

	t.Run("perfect alignment", func(t *testing.T) {
		times := []float64{1.0, 2.0, 3.0}
		assert.InDelta(t, 1.0, k.BeatAlignment(times, times), 1e-9)
	})

	t.Run("half window offset scores half", func(t *testing.T) {
		got := k.BeatAlignment([]float64{1.05}, []float64{1.0})
		assert.InDelta(t, 0.5, got, 1e-9)
	})

	t.Run("outside window scores zero", func(t *testing.T) {
		got := k.BeatAlignment([]float64{5.0}, []float64{1.0})
		assert.InDelta(t, 0.0, got, 1e-9)
	})
}

func TestComputeDomains(t *testing.T) {
	k := NewKernel(DefaultConfig())

	features := model.FeatureOutput{
		VideoID: "v1",
		OpticalFlow: model.OpticalFlowData{
			AvgSpeedPxS:         85,
			PrimaryDirectionDeg: 12,
			FlowVectors: []model.FlowVector{
				{VX: 5, VY: 1}, {VX: 6, VY: 0}, {VX: 5, VY: 2}, {VX: 7, VY: 1},
			},
		},
		SubjectTracking: model.SubjectTracking{
			BBoxes:     []model.BBox{{X: 0.2, Y: 0.2, W: 0.5, H: 0.5}, {X: 0.2, Y: 0.2, W: 0.55, H: 0.55}},
			Timestamps: []float64{0.1, 0.2},
		},
		AudioBeats: []float64{0.1, 0.2, 0.3},
	}

	got := k.Compute(features, [2]float64{0, 8})
	require.True(t, got.IsValid())
	assert.Equal(t, "v1", got.VideoID)
	assert.Equal(t, 85.0, got.AvgMotionPxPerS)
	assert.False(t, math.IsNaN(got.MotionSmoothness))
}

func TestComputeIsDeterministic(t *testing.T) {
	k := NewKernel(DefaultConfig())
	features := model.FeatureOutput{
		VideoID: "v1",
		OpticalFlow: model.OpticalFlowData{
			AvgSpeedPxS: 40,
			FlowVectors: []model.FlowVector{{VX: 1}, {VX: 2}, {VX: 3}, {VX: 2}},
		},
		SubjectTracking: model.SubjectTracking{
			BBoxes:     []model.BBox{{W: 0.4, H: 0.4}, {W: 0.42, H: 0.4}},
			Timestamps: []float64{0.0, 0.033},
		},
	}

	first := k.Compute(features, [2]float64{0, 4})
	second := k.Compute(features, [2]float64{0, 4})
	assert.Equal(t, first, second)
}
