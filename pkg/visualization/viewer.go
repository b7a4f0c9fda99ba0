// Package visualization renders quick-look images of average map cubes.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"

	"polcube/internal/models"
	"polcube/pkg/fits"
)

// Display range of a plane, as quantiles of its finite pixels
const (
	lowQuantile  = 0.01
	highQuantile = 0.99
)

// planeNames label the planes of an average map, in cube order.
var planeNames = [models.NumAveragePlanes]string{"i", "pqu", "v"}

var planeLabels = [models.NumAveragePlanes]string{"Stokes I", "sqrt(Q^2+U^2)", "Stokes V"}

// Viewer renders the planes of an average map cube
type Viewer struct {
	cube *fits.Cube

	// maxSize bounds the longest side of a rendered image, 0 keeps the
	// native size
	maxSize int
}

// NewViewer creates a viewer for cube.
func NewViewer(cube *fits.Cube, maxSize int) *Viewer {
	return &Viewer{cube: cube, maxSize: maxSize}
}

// DisplayRange returns the pixel values mapped to black and white. ok is
// false when the plane has no finite pixel.
func DisplayRange(values []float64) (lo, hi float64, ok bool) {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 0, false
	}
	sort.Float64s(finite)
	lo = stat.Quantile(lowQuantile, stat.Empirical, finite, nil)
	hi = stat.Quantile(highQuantile, stat.Empirical, finite, nil)
	return lo, hi, true
}

// RenderPlane renders one plane of the first channel as a labelled
// grayscale image, north up. Non-finite pixels are black.
func (v *Viewer) RenderPlane(plane int) (image.Image, error) {
	if plane < 0 || plane >= v.cube.Planes() {
		return nil, fmt.Errorf("plane %d out of range [0, %d)", plane, v.cube.Planes())
	}

	width, height := v.cube.Width(), v.cube.Height()
	values := make([]float64, v.cube.PlaneLen())
	if err := v.cube.ReadPlane(plane, 0, values); err != nil {
		return nil, err
	}

	lo, hi, ok := DisplayRange(values)
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		// FITS rows start at the bottom of the image
		row := values[(height-1-y)*width : (height-y)*width]
		for x, val := range row {
			img.SetGray(x, y, color.Gray{Y: scaleValue(val, lo, hi, ok)})
		}
	}

	var out image.Image = img
	if w, h := v.fitSize(width, height); w != width || h != height {
		scaled := image.NewGray(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)
		out = scaled
	}

	label := fmt.Sprintf("plane %d", plane)
	if plane < len(planeLabels) {
		label = planeLabels[plane]
	}
	dc := gg.NewContextForImage(out)
	dc.SetColor(color.White)
	dc.DrawString(label, 4, 14)
	return dc.Image(), nil
}

func scaleValue(val, lo, hi float64, ok bool) uint8 {
	if !ok || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0
	}
	if hi <= lo {
		return 128
	}
	s := (val - lo) / (hi - lo)
	return uint8(math.Round(255 * math.Max(0, math.Min(1, s))))
}

// fitSize shrinks (width, height) so the longest side is at most maxSize
func (v *Viewer) fitSize(width, height int) (int, int) {
	longest := width
	if height > longest {
		longest = height
	}
	if v.maxSize <= 0 || longest <= v.maxSize {
		return width, height
	}
	scale := float64(v.maxSize) / float64(longest)
	w := int(math.Max(1, math.Round(float64(width)*scale)))
	h := int(math.Max(1, math.Round(float64(height)*scale)))
	return w, h
}

// SaveImage saves a rendered plane as a JPEG image
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		return err
	}
	return file.Close()
}

// SavePlanes renders every plane into outputDir as <basename>.<plane>.jpg
// and returns the written files.
func (v *Viewer) SavePlanes(outputDir, basename string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var files []string
	for plane := 0; plane < v.cube.Planes(); plane++ {
		img, err := v.RenderPlane(plane)
		if err != nil {
			return files, err
		}

		name := fmt.Sprintf("plane%d", plane)
		if plane < len(planeNames) {
			name = planeNames[plane]
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s.%s.jpg", basename, name))
		if err := SaveImage(img, filename); err != nil {
			return files, fmt.Errorf("saving plane %d: %w", plane, err)
		}
		files = append(files, filename)
	}
	return files, nil
}
