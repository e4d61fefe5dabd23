// Package testdata generates camera frames and still images for tests.
package testdata

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/bodydetect/internal/capture"
	"github.com/ayusman/bodydetect/internal/frame"
)

// Frames returns a sequence of n frames showing a bright square moving
// left to right over a dark background.
func Frames(n, width, height int) []capture.MockFrame {
	frames := make([]capture.MockFrame, n)
	size := height / 3
	for i := range frames {
		f := capture.SolidFrame(width, height, 20, 20, 20)
		left := 0
		if n > 1 {
			left = i * (width - size) / (n - 1)
		}
		for y := height/2 - size/2; y < height/2+size/2; y++ {
			for x := left; x < left+size; x++ {
				off := (y*width + x) * frame.BytesPerPixel
				f.Pixels[off], f.Pixels[off+1], f.Pixels[off+2] = 230, 230, 230
			}
		}
		frames[i] = f
	}
	return frames
}

// PNG returns a width x height PNG of the first frame from Frames.
func PNG(width, height int) ([]byte, error) {
	f := Frames(1, width, height)[0]
	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, f.Pixels)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
