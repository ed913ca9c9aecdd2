// Package realtime performs low-latency motion and environment analysis
// over short frame buffers streamed from a capture client.
package realtime

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// grayFrame is a single-channel luma image with values in [0,255].
type grayFrame struct {
	w, h int
	pix  []float64
}

func (g *grayFrame) at(x, y int) float64 { return g.pix[y*g.w+x] }

// DecodeFrame decodes one base64 JPEG into an RGBA image. A nil return
// means the payload was not decodable.
func DecodeFrame(b64 string) *image.RGBA {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	return toRGBA(img)
}

// DecodeFrames decodes a frame list, silently skipping failures.
func DecodeFrames(b64Frames []string) []*image.RGBA {
	frames := make([]*image.RGBA, 0, len(b64Frames))
	for _, f := range b64Frames {
		if img := DecodeFrame(f); img != nil {
			frames = append(frames, img)
		}
	}
	return frames
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// resizeFrame scales the frame to w×h with bilinear interpolation.
// Frames already at the target size are returned as is.
func resizeFrame(img *image.RGBA, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// toGray converts an RGBA frame to a luma frame (BT.601 weights).
func toGray(img *image.RGBA) *grayFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	g := &grayFrame{w: w, h: h, pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r := float64(img.Pix[i])
			gr := float64(img.Pix[i+1])
			bl := float64(img.Pix[i+2])
			g.pix[y*w+x] = 0.299*r + 0.587*gr + 0.114*bl
		}
	}
	return g
}

// frameBuffer is a bounded sliding window; when full, the oldest frame
// is dropped (last-wins backpressure).
type frameBuffer struct {
	capacity   int
	frames     []*image.RGBA
	timestamps []float64
}

func newFrameBuffer(capacity int) *frameBuffer {
	return &frameBuffer{capacity: capacity}
}

func (b *frameBuffer) add(frame *image.RGBA, timestamp float64) {
	if len(b.frames) == b.capacity {
		copy(b.frames, b.frames[1:])
		copy(b.timestamps, b.timestamps[1:])
		b.frames[len(b.frames)-1] = frame
		b.timestamps[len(b.timestamps)-1] = timestamp
		return
	}
	b.frames = append(b.frames, frame)
	b.timestamps = append(b.timestamps, timestamp)
}

func (b *frameBuffer) size() int { return len(b.frames) }

func (b *frameBuffer) snapshot() []*image.RGBA {
	out := make([]*image.RGBA, len(b.frames))
	copy(out, b.frames)
	return out
}

func (b *frameBuffer) clear() {
	b.frames = b.frames[:0]
	b.timestamps = b.timestamps[:0]
}
