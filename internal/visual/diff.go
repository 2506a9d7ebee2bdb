package visual

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// comparePNGs returns the fraction of pixels that differ between the two
// images plus a highlight image marking them. Size mismatches count the
// non-overlapping area as fully different.
func comparePNGs(baselinePath, currentPath string) (float64, image.Image, error) {
	baseline, err := readPNG(baselinePath)
	if err != nil {
		return 0, nil, fmt.Errorf("reading baseline: %w", err)
	}
	current, err := readPNG(currentPath)
	if err != nil {
		return 0, nil, fmt.Errorf("reading screenshot: %w", err)
	}

	bb, cb := baseline.Bounds(), current.Bounds()
	width := max(bb.Dx(), cb.Dx())
	height := max(bb.Dy(), cb.Dy())
	diff := image.NewRGBA(image.Rect(0, 0, width, height))
	highlight := color.RGBA{R: 255, A: 255}

	differing := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			inB := x < bb.Dx() && y < bb.Dy()
			inC := x < cb.Dx() && y < cb.Dy()
			switch {
			case inB && inC && samePixel(baseline.At(bb.Min.X+x, bb.Min.Y+y), current.At(cb.Min.X+x, cb.Min.Y+y)):
				diff.Set(x, y, current.At(cb.Min.X+x, cb.Min.Y+y))
			default:
				diff.Set(x, y, highlight)
				differing++
			}
		}
	}
	total := width * height
	if total == 0 {
		return 0, diff, nil
	}
	return float64(differing) / float64(total), diff, nil
}

func samePixel(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
