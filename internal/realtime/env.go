package realtime

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/framewise/shotcoach/internal/model"
)

// envFeatures is the per-frame environment measurement set, everything
// in [0,1] except the light label.
type envFeatures struct {
	Brightness       float64
	Contrast         float64
	Sharpness        float64
	Saturation       float64
	DominantLight    model.DominantLight
	CompositionScore float64
}

func neutralEnvFeatures() envFeatures {
	return envFeatures{
		Brightness:       0.5,
		Contrast:         0.5,
		Sharpness:        0.5,
		Saturation:       0.5,
		DominantLight:    model.LightNeutral,
		CompositionScore: 0.5,
	}
}

// computeEnvFeatures measures lighting and composition on one frame.
func computeEnvFeatures(frame *image.RGBA) envFeatures {
	gray := toGray(frame)
	if gray.w < 3 || gray.h < 3 {
		return neutralEnvFeatures()
	}

	rMean, gMean, bMean, satMean := channelStats(frame)

	grayMean := stat.Mean(gray.pix, nil)
	grayStd := math.Sqrt(popVariance(gray.pix))

	contrast := math.Min(grayStd/(grayMean+1e-6)*2.0, 1.0)
	sharpness := math.Min(laplacianVariance(gray)/500.0, 1.0)

	return envFeatures{
		Brightness:       labLightness(rMean, gMean, bMean),
		Contrast:         contrast,
		Sharpness:        sharpness,
		Saturation:       satMean,
		DominantLight:    dominantLight(rMean, gMean, bMean),
		CompositionScore: compositionScore(gray),
	}
}

// channelStats returns per-channel means in [0,255] and the mean HSV
// saturation in [0,1].
func channelStats(frame *image.RGBA) (rMean, gMean, bMean, satMean float64) {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	n := float64(w * h)
	if n == 0 {
		return 0, 0, 0, 0
	}

	var rSum, gSum, bSum, sSum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := frame.PixOffset(b.Min.X+x, b.Min.Y+y)
			r := float64(frame.Pix[i])
			g := float64(frame.Pix[i+1])
			bl := float64(frame.Pix[i+2])
			rSum += r
			gSum += g
			bSum += bl

			max := math.Max(r, math.Max(g, bl))
			min := math.Min(r, math.Min(g, bl))
			if max > 0 {
				sSum += (max - min) / max
			}
		}
	}
	return rSum / n, gSum / n, bSum / n, sSum / n
}

// labLightness converts mean RGB to the CIE L* channel, scaled to [0,1].
func labLightness(r, g, b float64) float64 {
	y := (0.299*r + 0.587*g + 0.114*b) / 255.0
	var fy float64
	if y > 0.008856 {
		fy = math.Cbrt(y)
	} else {
		fy = (903.3*y + 16) / 116
	}
	l := 116*fy - 16
	return model.Clamp01(l / 100)
}

// dominantLight labels the color temperature: warm light carries more
// red/yellow, cool light more blue.
func dominantLight(rMean, gMean, bMean float64) model.DominantLight {
	tempRatio := (rMean + 0.5*gMean) / (bMean + 1e-6)
	switch {
	case tempRatio > 1.3:
		return model.LightWarm
	case tempRatio < 0.8:
		return model.LightCool
	default:
		return model.LightNeutral
	}
}

// laplacianVariance is the classic focus measure: variance of the
// 4-neighbor Laplacian response.
func laplacianVariance(g *grayFrame) float64 {
	if g.w < 3 || g.h < 3 {
		return 0
	}
	responses := make([]float64, 0, (g.w-2)*(g.h-2))
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			lap := g.at(x-1, y) + g.at(x+1, y) + g.at(x, y-1) + g.at(x, y+1) - 4*g.at(x, y)
			responses = append(responses, lap)
		}
	}
	return popVariance(responses)
}

// compositionScore averages local entropy at four rule-of-thirds points,
// normalized against the expected maximum.
func compositionScore(g *grayFrame) float64 {
	thirdH, thirdW := g.h/3, g.w/3
	points := [][2]int{
		{thirdH, thirdW},
		{thirdH, 2 * thirdW},
		{2 * thirdH, thirdW},
		{2 * thirdH, 2 * thirdW},
	}

	window := minInt(32, minInt(thirdH/2, thirdW/2))
	if window <= 0 {
		return 0.5
	}

	var entropies []float64
	for _, p := range points {
		y, x := p[0], p[1]
		if y < window || x < window || y >= g.h-window || x >= g.w-window {
			continue
		}
		entropies = append(entropies, localEntropy(g, x, y, window))
	}
	if len(entropies) == 0 {
		return 0.5
	}
	return model.Clamp01(stat.Mean(entropies, nil) / 4.0)
}

// localEntropy is the 32-bin histogram entropy of the window centered at
// (x, y).
func localEntropy(g *grayFrame, x, y, window int) float64 {
	var hist [32]float64
	var total float64
	for wy := y - window; wy < y+window; wy++ {
		for wx := x - window; wx < x+window; wx++ {
			bin := int(g.at(wx, wy)) / 8
			if bin > 31 {
				bin = 31
			}
			hist[bin]++
			total++
		}
	}
	if total == 0 {
		return 0
	}

	var entropy float64
	for _, count := range hist {
		p := count / total
		entropy -= p * math.Log2(p+1e-6)
	}
	return entropy
}

func popVariance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := stat.Mean(xs, nil)
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
