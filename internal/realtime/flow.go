package realtime

import (
	"math"

	"github.com/framewise/shotcoach/internal/model"
)

// flowConfig holds the block-matching and sparse-flow parameters.
type flowConfig struct {
	// Dense mode: block size and grid step in pixels, search radius.
	BlockSize    int `yaml:"block_size"`
	GridStep     int `yaml:"grid_step"`
	SearchRadius int `yaml:"search_radius"`

	// Sparse mode: number of corner points tracked and their minimum
	// pairwise distance.
	MaxCorners  int     `yaml:"max_corners"`
	MinDistance int     `yaml:"min_distance"`
	MinGradient float64 `yaml:"min_gradient"`
}

func defaultFlowConfig() flowConfig {
	return flowConfig{
		BlockSize:    16,
		GridStep:     16,
		SearchRadius: 7,
		MaxCorners:   100,
		MinDistance:  7,
		MinGradient:  30,
	}
}

// pairFlow is the displacement summary of one consecutive frame pair.
type pairFlow struct {
	meanMagnitude float64
	meanAngleRad  float64
	sample        model.FlowVector
}

// denseFlow estimates per-block displacements by SAD search and
// aggregates them into the flow summary. This is the default
// high-quality mode.
func denseFlow(prev, next *grayFrame, cfg flowConfig) (pairFlow, bool) {
	var magSum, weightedAngleSum, weightSum float64
	var sample model.FlowVector
	var n int

	centerBX := (prev.w/2 - cfg.BlockSize/2) / cfg.GridStep * cfg.GridStep
	centerBY := (prev.h/2 - cfg.BlockSize/2) / cfg.GridStep * cfg.GridStep

	for by := 0; by+cfg.BlockSize <= prev.h; by += cfg.GridStep {
		for bx := 0; bx+cfg.BlockSize <= prev.w; bx += cfg.GridStep {
			dx, dy := matchBlock(prev, next, bx, by, cfg.BlockSize, cfg.SearchRadius)
			mag := math.Hypot(dx, dy)
			magSum += mag
			weightedAngleSum += math.Atan2(dy, dx) * mag
			weightSum += mag
			n++
			if bx == centerBX && by == centerBY {
				sample = model.FlowVector{VX: dx, VY: dy}
			}
		}
	}
	if n == 0 {
		return pairFlow{}, false
	}

	meanAngle := 0.0
	if weightSum > 0 {
		meanAngle = weightedAngleSum / weightSum
	}
	return pairFlow{
		meanMagnitude: magSum / float64(n),
		meanAngleRad:  meanAngle,
		sample:        sample,
	}, true
}

// sparseFlow tracks strong-gradient corner points only. Faster and less
// accurate; used in degraded mode.
func sparseFlow(prev, next *grayFrame, cfg flowConfig) (pairFlow, bool) {
	corners := detectCorners(prev, cfg.MaxCorners, cfg.MinDistance, cfg.MinGradient)
	if len(corners) == 0 {
		return pairFlow{}, false
	}

	const patch = 7
	var magSum, weightedAngleSum, weightSum float64
	displacements := make([]model.FlowVector, 0, len(corners))

	for _, c := range corners {
		if c.x < patch || c.y < patch || c.x >= prev.w-patch || c.y >= prev.h-patch {
			continue
		}
		dx, dy := matchBlock(prev, next, c.x-patch/2, c.y-patch/2, patch, cfg.SearchRadius)
		mag := math.Hypot(dx, dy)
		magSum += mag
		weightedAngleSum += math.Atan2(dy, dx) * mag
		weightSum += mag
		displacements = append(displacements, model.FlowVector{VX: dx, VY: dy})
	}
	if len(displacements) == 0 {
		return pairFlow{}, false
	}

	meanAngle := 0.0
	if weightSum > 0 {
		meanAngle = weightedAngleSum / weightSum
	}
	return pairFlow{
		meanMagnitude: magSum / float64(len(displacements)),
		meanAngleRad:  meanAngle,
		sample:        displacements[len(displacements)/2],
	}, true
}

// matchBlock finds the displacement in [-radius, radius]² minimizing the
// sum of absolute differences for one block. The zero offset is the
// baseline so featureless blocks report no motion.
func matchBlock(prev, next *grayFrame, bx, by, size, radius int) (float64, float64) {
	bestSAD := blockSAD(prev, next, bx, by, bx, by, size, math.Inf(1))
	bestDX, bestDY := 0, 0

	for dy := -radius; dy <= radius; dy++ {
		ny := by + dy
		if ny < 0 || ny+size > next.h {
			continue
		}
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx := bx + dx
			if nx < 0 || nx+size > next.w {
				continue
			}
			if sad := blockSAD(prev, next, bx, by, nx, ny, size, bestSAD); sad < bestSAD {
				bestSAD = sad
				bestDX, bestDY = dx, dy
			}
		}
	}
	return float64(bestDX), float64(bestDY)
}

// blockSAD sums absolute differences between a block in prev and a
// candidate position in next, terminating early past limit.
func blockSAD(prev, next *grayFrame, px, py, nx, ny, size int, limit float64) float64 {
	var sad float64
	for row := 0; row < size; row++ {
		prevRow := prev.pix[(py+row)*prev.w+px:]
		nextRow := next.pix[(ny+row)*next.w+nx:]
		for col := 0; col < size; col++ {
			sad += math.Abs(prevRow[col] - nextRow[col])
		}
		if sad >= limit {
			return sad
		}
	}
	return sad
}

type corner struct {
	x, y     int
	strength float64
}

// detectCorners picks up to max points with the strongest gradient
// magnitude, enforcing a minimum pairwise distance.
func detectCorners(g *grayFrame, max, minDistance int, minGradient float64) []corner {
	candidates := make([]corner, 0, 256)
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			gx := g.at(x+1, y) - g.at(x-1, y)
			gy := g.at(x, y+1) - g.at(x, y-1)
			strength := math.Hypot(gx, gy)
			if strength >= minGradient {
				candidates = append(candidates, corner{x: x, y: y, strength: strength})
			}
		}
	}

	// Selection sort the top candidates; the pool is small.
	selected := make([]corner, 0, max)
	for len(selected) < max && len(candidates) > 0 {
		best := 0
		for i, c := range candidates {
			if c.strength > candidates[best].strength {
				best = i
			}
		}
		cand := candidates[best]
		candidates[best] = candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]

		tooClose := false
		for _, s := range selected {
			if abs(s.x-cand.x) < minDistance && abs(s.y-cand.y) < minDistance {
				tooClose = true
				break
			}
		}
		if !tooClose {
			selected = append(selected, cand)
		}
	}
	return selected
}

// aggregateFlow combines per-pair summaries into an OpticalFlowData.
// Average speed is per frame, not scaled by fps. Direction is the
// circular mean of per-pair angles in degrees.
func aggregateFlow(pairs []pairFlow) model.OpticalFlowData {
	if len(pairs) == 0 {
		return model.OpticalFlowData{}
	}

	var magSum, sinSum, cosSum float64
	vectors := make([]model.FlowVector, len(pairs))
	for i, p := range pairs {
		magSum += p.meanMagnitude
		sinSum += math.Sin(p.meanAngleRad)
		cosSum += math.Cos(p.meanAngleRad)
		vectors[i] = p.sample
	}

	directionDeg := math.Atan2(sinSum, cosSum) * 180 / math.Pi
	directionDeg = math.Mod(directionDeg+360, 360)

	return model.OpticalFlowData{
		AvgSpeedPxS:         magSum / float64(len(pairs)),
		PrimaryDirectionDeg: directionDeg,
		FlowVectors:         vectors,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
