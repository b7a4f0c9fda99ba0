package visualization

import (
	"image"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"testing"

	"polcube/internal/models"
	"polcube/pkg/fits"
)

// createAverageMap writes a (width, height, 1, 3) cube where plane p holds
// x + p*width at each pixel, except a NaN at the origin.
func createAverageMap(t *testing.T, width, height int) *fits.Cube {
	t.Helper()
	path := filepath.Join(t.TempDir(), "map.fits")
	if _, err := fits.Allocate(path, fits.NewImageHeader(-32, width, height, 1, models.NumAveragePlanes)); err != nil {
		t.Fatalf("Failed to allocate cube: %v", err)
	}
	cube, err := fits.Open(path, fits.ReadWrite)
	if err != nil {
		t.Fatalf("Failed to open cube: %v", err)
	}
	t.Cleanup(func() { cube.Close() })

	for p := 0; p < models.NumAveragePlanes; p++ {
		values := make([]float64, width*height)
		for i := range values {
			values[i] = float64(i%width + p*width)
		}
		values[0] = math.NaN()
		if err := cube.WritePlane(p, 0, values); err != nil {
			t.Fatalf("Failed to write plane %d: %v", p, err)
		}
	}
	return cube
}

func TestDisplayRange(t *testing.T) {
	values := make([]float64, 0, 102)
	for i := 0; i < 100; i++ {
		values = append(values, float64(i))
	}
	values = append(values, math.NaN(), math.Inf(1))

	lo, hi, ok := DisplayRange(values)
	if !ok {
		t.Fatal("Expected a display range")
	}
	if lo != 0 || hi != 98 {
		t.Errorf("Expected range [0, 98], got [%v, %v]", lo, hi)
	}

	if _, _, ok := DisplayRange([]float64{math.NaN()}); ok {
		t.Error("Expected no display range without finite pixels")
	}
}

func TestScaleValue(t *testing.T) {
	tests := []struct {
		val  float64
		want uint8
	}{
		{-5, 0},
		{0, 0},
		{5, 128},
		{10, 255},
		{50, 255},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := scaleValue(tt.val, 0, 10, true); got != tt.want {
			t.Errorf("scaleValue(%v) = %d, want %d", tt.val, got, tt.want)
		}
	}
	if got := scaleValue(3, 3, 3, true); got != 128 {
		t.Errorf("Expected mid gray for a flat plane, got %d", got)
	}
}

func TestRenderPlane(t *testing.T) {
	width, height := 40, 20
	viewer := NewViewer(createAverageMap(t, width, height), 0)

	img, err := viewer.RenderPlane(models.PlanePolarizedQU)
	if err != nil {
		t.Fatalf("Failed to render plane: %v", err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		t.Errorf("Expected %dx%d image, got %dx%d", width, height, b.Dx(), b.Dy())
	}

	// the NaN origin pixel lands in the bottom left corner
	r, g, b, _ := img.At(0, height-1).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("Expected black for the NaN pixel, got (%d, %d, %d)", r, g, b)
	}
	// brightness grows with x along the bottom row
	left, _, _, _ := img.At(width/4, height-1).RGBA()
	right, _, _, _ := img.At(width-1, height-1).RGBA()
	if right <= left {
		t.Errorf("Expected brighter pixels to the right, got %d <= %d", right, left)
	}

	if _, err := viewer.RenderPlane(models.NumAveragePlanes); err == nil {
		t.Error("Expected error for a plane out of range")
	}
}

func TestRenderPlaneDownscale(t *testing.T) {
	viewer := NewViewer(createAverageMap(t, 200, 50), 100)

	img, err := viewer.RenderPlane(models.PlanePolarizedI)
	if err != nil {
		t.Fatalf("Failed to render plane: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 25 {
		t.Errorf("Expected 100x25 image, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestSavePlanes(t *testing.T) {
	viewer := NewViewer(createAverageMap(t, 16, 16), 0)
	dir := filepath.Join(t.TempDir(), "preview")

	files, err := viewer.SavePlanes(dir, "cube")
	if err != nil {
		t.Fatalf("Failed to save planes: %v", err)
	}
	if len(files) != models.NumAveragePlanes {
		t.Fatalf("Expected %d files, got %d", models.NumAveragePlanes, len(files))
	}
	for _, want := range []string{"cube.i.jpg", "cube.pqu.jpg", "cube.v.jpg"} {
		path := filepath.Join(dir, want)
		file, err := os.Open(path)
		if err != nil {
			t.Errorf("Missing preview %s: %v", want, err)
			continue
		}
		img, err := jpeg.Decode(file)
		file.Close()
		if err != nil {
			t.Errorf("Preview %s is not a JPEG: %v", want, err)
			continue
		}
		if img.Bounds() != image.Rect(0, 0, 16, 16) {
			t.Errorf("Preview %s has bounds %v", want, img.Bounds())
		}
	}
}
