package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBBoxAreaBounds(t *testing.T) {
	tests := []struct {
		name string
		box  BBox
	}{
		{"empty", BBox{}},
		{"full frame", BBox{X: 0, Y: 0, W: 1, H: 1}},
		{"centered", BBox{X: 0.3, Y: 0.3, W: 0.4, H: 0.4}},
		{"edge hugging", BBox{X: 0.5, Y: 0.5, W: 0.5, H: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.box.IsValid())
			area := tt.box.Area()
			assert.GreaterOrEqual(t, area, 0.0)
			assert.LessOrEqual(t, area, 1.0)
		})
	}
}

func TestBBoxNormalizeClampsIntoUnitSquare(t *testing.T) {
	tests := []struct {
		name string
		in   BBox
		want BBox
	}{
		{"negative origin", BBox{X: -0.2, Y: -0.1, W: 0.5, H: 0.5}, BBox{X: 0, Y: 0, W: 0.5, H: 0.5}},
		{"overflow width", BBox{X: 0.8, Y: 0.1, W: 0.5, H: 0.2}, BBox{X: 0.8, Y: 0.1, W: 0.2, H: 0.2}},
		{"oversized", BBox{X: 0.5, Y: 0.5, W: 2, H: 2}, BBox{X: 0.5, Y: 0.5, W: 0.5, H: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.True(t, got.IsValid())
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.InDelta(t, tt.want.W, got.W, 1e-9)
			assert.InDelta(t, tt.want.H, got.H, 1e-9)
		})
	}
}

func TestHeuristicIndicatorsValidation(t *testing.T) {
	valid := HeuristicIndicators{
		VideoID:          "v1",
		TimeRange:        [2]float64{0, 8},
		AvgMotionPxPerS:  42,
		FramePctChange:   0.2,
		MotionSmoothness: 0.8,
		SubjectOccupancy: 0.3,
		BeatAlignment:    0.5,
	}
	assert.True(t, valid.IsValid())

	reversed := valid
	reversed.TimeRange = [2]float64{8, 2}
	assert.False(t, reversed.IsValid())

	outOfRange := valid
	outOfRange.FramePctChange = 1.2
	assert.False(t, outOfRange.IsValid())

	negativeSpeed := valid
	negativeSpeed.AvgMotionPxPerS = -1
	assert.False(t, negativeSpeed.IsValid())
}

func TestMetadataOutputJSONRoundTrip(t *testing.T) {
	md := MetadataOutput{
		TimeRange:  [2]float64{0, 12.5},
		MotionType: MotionDollyIn,
		MotionParams: MotionParams{
			DurationS:        12.5,
			FramePctChange:   0.18,
			SpeedProfile:     SpeedEaseInOut,
			MotionSmoothness: 0.78,
		},
		Framing: FramingData{
			SubjectBBox:      BBox{X: 0.3, Y: 0.25, W: 0.4, H: 0.5},
			SubjectOccupancy: 0.45,
			SuggestedScale:   ScaleCloseup,
		},
		BeatAlignment:  0.75,
		Confidence:     0.85,
		Explainability: "画幅变化明显，表明镜头在推进。运动平滑度较高。",
	}

	data, err := json.Marshal(md)
	require.NoError(t, err)

	var back MetadataOutput
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, md, back)
}

func TestInstructionCardCompleteness(t *testing.T) {
	card := InstructionCard{
		VideoID: "v1",
		Primary: []string{"时间段 0.0s - 8.0s：推镜头"},
		Explain: "画面呈现向前推进的特征。",
		Advanced: AdvancedParams{
			TargetOccupancy: "当前45%，目标40%-60%",
			DurationS:       8,
			SpeedCurve:      "渐入渐出（两端慢，中间快）",
			Stabilization:   "电动滑轨或轨道车",
		},
	}
	assert.True(t, card.IsComplete())

	card.Primary = nil
	assert.False(t, card.IsComplete())
}

func TestMotionTypeDirectional(t *testing.T) {
	assert.True(t, MotionPan.Directional())
	assert.True(t, MotionDollyOut.Directional())
	assert.False(t, MotionStatic.Directional())
	assert.False(t, MotionHandheld.Directional())
}
