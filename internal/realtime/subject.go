package realtime

import (
	"math"

	"github.com/framewise/shotcoach/internal/model"
)

// subjectDetectorConfig tunes the edge-density grid detector.
type subjectDetectorConfig struct {
	// EdgeThreshold is the gradient magnitude above which a pixel counts
	// as an edge.
	EdgeThreshold float64 `yaml:"edge_threshold"`
	// MinDensity is the weighted edge density below which no subject is
	// reported.
	MinDensity float64 `yaml:"min_density"`
}

func defaultSubjectDetectorConfig() subjectDetectorConfig {
	return subjectDetectorConfig{
		EdgeThreshold: 100,
		MinDensity:    10,
	}
}

// SubjectDetector locates the most edge-dense cell of a 3×3 grid, with
// center cells weighted higher. A placeholder for a learned detector;
// the interface is a single DetectSubject call so one can be swapped in.
type SubjectDetector interface {
	DetectSubject(g *grayFrame) *model.BBox
}

type edgeGridDetector struct {
	cfg subjectDetectorConfig
}

func newEdgeGridDetector(cfg subjectDetectorConfig) *edgeGridDetector {
	if cfg.EdgeThreshold <= 0 {
		cfg = defaultSubjectDetectorConfig()
	}
	return &edgeGridDetector{cfg: cfg}
}

// DetectSubject returns the grid cell with the highest weighted edge
// density, or nil when the frame is too flat to contain a subject.
func (d *edgeGridDetector) DetectSubject(g *grayFrame) *model.BBox {
	edges := sobelEdges(g, d.cfg.EdgeThreshold)

	const gridH, gridW = 3, 3
	cellH, cellW := g.h/gridH, g.w/gridW
	if cellH == 0 || cellW == 0 {
		return nil
	}

	maxDensity := 0.0
	bestI, bestJ := 1, 1
	for i := 0; i < gridH; i++ {
		for j := 0; j < gridW; j++ {
			var sum float64
			for y := i * cellH; y < (i+1)*cellH; y++ {
				for x := j * cellW; x < (j+1)*cellW; x++ {
					sum += edges[y*g.w+x]
				}
			}
			density := sum / float64(cellH*cellW)

			centerWeight := 1.0 + 0.5*(1.0-math.Abs(float64(i-1))/1.5)*(1.0-math.Abs(float64(j-1))/1.5)
			weighted := density * centerWeight
			if weighted > maxDensity {
				maxDensity = weighted
				bestI, bestJ = i, j
			}
		}
	}

	if maxDensity < d.cfg.MinDensity {
		return nil
	}
	return &model.BBox{
		X: float64(bestJ*cellW) / float64(g.w),
		Y: float64(bestI*cellH) / float64(g.h),
		W: float64(cellW) / float64(g.w),
		H: float64(cellH) / float64(g.h),
	}
}

// sobelEdges returns a binary edge map (255 on edge pixels) from the
// Sobel gradient magnitude.
func sobelEdges(g *grayFrame, threshold float64) []float64 {
	edges := make([]float64, g.w*g.h)
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			gx := g.at(x+1, y-1) + 2*g.at(x+1, y) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x-1, y) - g.at(x-1, y+1)
			gy := g.at(x-1, y+1) + 2*g.at(x, y+1) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x, y-1) - g.at(x+1, y-1)
			if math.Hypot(gx, gy) >= threshold {
				edges[y*g.w+x] = 255
			}
		}
	}
	return edges
}

// subjectTracker keeps cross-cycle subject state: the last known box and
// the lost counter.
type subjectTracker struct {
	lostThreshold int

	lastBBox      *model.BBox
	framesWithout int
	lost          bool
}

func newSubjectTracker(lostThreshold int) *subjectTracker {
	if lostThreshold <= 0 {
		lostThreshold = 3
	}
	return &subjectTracker{lostThreshold: lostThreshold}
}

// update records one detection outcome and returns the current bbox,
// occupancy, and lost flag. Occupancy falls back to the last known box
// while the subject is missing.
func (t *subjectTracker) update(detected *model.BBox) (*model.BBox, float64, bool) {
	if detected != nil {
		t.lastBBox = detected
		t.framesWithout = 0
		t.lost = false
		return detected, detected.Area(), false
	}

	t.framesWithout++
	if t.framesWithout >= t.lostThreshold {
		t.lost = true
	}
	occupancy := 0.0
	if t.lastBBox != nil {
		occupancy = t.lastBBox.Area()
	}
	return nil, occupancy, t.lost
}

func (t *subjectTracker) reset() {
	t.lastBBox = nil
	t.framesWithout = 0
	t.lost = false
}
