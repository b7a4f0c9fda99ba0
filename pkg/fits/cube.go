package fits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// ErrShape is returned when an image does not have the expected axes.
var ErrShape = errors.New("fits: unexpected image shape")

// Mode selects how a cube is opened.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Cube is a memory-mapped 4-dimensional primary image. Axes are named after
// their FITS numbering, NAXIS1 being the fastest varying: a plane is the
// NAXIS1 x NAXIS2 image at a given (NAXIS4, NAXIS3) position.
type Cube struct {
	path       string
	file       *os.File
	mapping    []byte
	data       []byte
	header     *Header
	headerSize int64
	mode       Mode

	axes   [4]int
	bitpix int
	bytes  int
	bscale float64
	bzero  float64
}

// Open memory-maps the FITS cube at path.
func Open(path string, mode Mode) (*Cube, error) {
	flag := os.O_RDONLY
	if mode == ReadWrite {
		flag = os.O_RDWR
	}
	file, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening cube: %w", err)
	}

	c, err := newCube(path, file, mode)
	if err != nil {
		file.Close()
		return nil, err
	}
	return c, nil
}

func newCube(path string, file *os.File, mode Mode) (*Cube, error) {
	header, headerSize, err := ReadHeader(file)
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	c := &Cube{
		path:       path,
		file:       file,
		header:     header,
		headerSize: headerSize,
		mode:       mode,
	}
	if err := c.parseLayout(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if c.DataBytes() == 0 {
		return nil, fmt.Errorf("%s: image is empty: %w", path, ErrShape)
	}
	need := headerSize + c.DataBytes()
	if info.Size() < need {
		return nil, fmt.Errorf("%s: file holds %d bytes, image needs %d: %w", path, info.Size(), need, ErrShape)
	}

	if c.mapping, err = mmapFile(file, need, mode == ReadWrite); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	c.data = c.mapping[headerSize:need]
	return c, nil
}

func (c *Cube) parseLayout() error {
	var err error
	if c.bitpix, err = c.header.Int("BITPIX"); err != nil {
		return err
	}
	switch c.bitpix {
	case 8, 16, 32, 64, -32, -64:
		c.bytes = abs(c.bitpix) / 8
	default:
		return fmt.Errorf("unsupported BITPIX %d: %w", c.bitpix, ErrShape)
	}
	if c.mode == ReadWrite && c.bitpix > 0 {
		return fmt.Errorf("writable cubes must hold floating point data, got BITPIX %d: %w", c.bitpix, ErrShape)
	}

	axes, err := c.header.Axes()
	if err != nil {
		return err
	}
	if len(axes) < 4 {
		return fmt.Errorf("NAXIS = %d, need 4 axes: %w", len(axes), ErrShape)
	}
	for i, n := range axes[4:] {
		if n != 1 {
			return fmt.Errorf("NAXIS%d = %d, extra axes must be degenerate: %w", i+5, n, ErrShape)
		}
	}
	copy(c.axes[:], axes[:4])

	if c.bscale, err = c.header.FloatOr("BSCALE", 1); err != nil {
		return err
	}
	if c.bzero, err = c.header.FloatOr("BZERO", 0); err != nil {
		return err
	}
	return nil
}

// Path returns the file the cube was opened from.
func (c *Cube) Path() string { return c.path }

// Header returns the primary header as read when the cube was opened.
func (c *Cube) Header() *Header { return c.header }

// Width is the length of NAXIS1.
func (c *Cube) Width() int { return c.axes[0] }

// Height is the length of NAXIS2.
func (c *Cube) Height() int { return c.axes[1] }

// Channels is the length of NAXIS3.
func (c *Cube) Channels() int { return c.axes[2] }

// Planes is the length of NAXIS4.
func (c *Cube) Planes() int { return c.axes[3] }

// PlaneLen is the number of pixels of a single plane.
func (c *Cube) PlaneLen() int { return c.axes[0] * c.axes[1] }

// DataBytes is the unpadded size of the image.
func (c *Cube) DataBytes() int64 {
	n := int64(c.bytes)
	for _, a := range c.axes {
		n *= int64(a)
	}
	return n
}

func (c *Cube) planeOffset(plane, channel int) (int, error) {
	if plane < 0 || plane >= c.Planes() || channel < 0 || channel >= c.Channels() {
		return 0, fmt.Errorf("plane (%d, %d) outside cube of shape %v: %w", plane, channel, c.axes, ErrShape)
	}
	return (plane*c.Channels() + channel) * c.PlaneLen() * c.bytes, nil
}

// ReadPlane decodes the plane at (plane, channel) into dst, which must hold
// PlaneLen values. BSCALE and BZERO are applied.
func (c *Cube) ReadPlane(plane, channel int, dst []float64) error {
	if len(dst) != c.PlaneLen() {
		return fmt.Errorf("destination holds %d values, plane has %d: %w", len(dst), c.PlaneLen(), ErrShape)
	}
	off, err := c.planeOffset(plane, channel)
	if err != nil {
		return err
	}

	raw := c.data[off : off+len(dst)*c.bytes]
	for i := range dst {
		dst[i] = c.decode(raw[i*c.bytes:])
	}
	if c.bscale != 1 || c.bzero != 0 {
		for i := range dst {
			dst[i] = c.bzero + c.bscale*dst[i]
		}
	}
	return nil
}

func (c *Cube) decode(b []byte) float64 {
	switch c.bitpix {
	case -32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	case -64:
		return math.Float64frombits(binary.BigEndian.Uint64(b))
	case 8:
		return float64(b[0])
	case 16:
		return float64(int16(binary.BigEndian.Uint16(b)))
	case 32:
		return float64(int32(binary.BigEndian.Uint32(b)))
	default:
		return float64(int64(binary.BigEndian.Uint64(b)))
	}
}

func (c *Cube) encode(b []byte, v float64) {
	if c.bitpix == -32 {
		binary.BigEndian.PutUint32(b, math.Float32bits(float32(v)))
		return
	}
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
}

// writablePlane returns the raw bytes of a plane of a cube opened
// ReadWrite. Scaled cubes are rejected since values are stored unscaled.
func (c *Cube) writablePlane(plane, channel int, n int) ([]byte, error) {
	if c.mode != ReadWrite {
		return nil, fmt.Errorf("cube %s is read only", c.path)
	}
	if c.bscale != 1 || c.bzero != 0 {
		return nil, fmt.Errorf("cube %s uses BSCALE/BZERO, in-place updates unsupported: %w", c.path, ErrShape)
	}
	if n != c.PlaneLen() {
		return nil, fmt.Errorf("source holds %d values, plane has %d: %w", n, c.PlaneLen(), ErrShape)
	}
	off, err := c.planeOffset(plane, channel)
	if err != nil {
		return nil, err
	}
	return c.data[off : off+n*c.bytes], nil
}

// WritePlane stores src as the plane at (plane, channel).
func (c *Cube) WritePlane(plane, channel int, src []float64) error {
	raw, err := c.writablePlane(plane, channel, len(src))
	if err != nil {
		return err
	}
	for i, v := range src {
		c.encode(raw[i*c.bytes:], v)
	}
	return nil
}

// AccumulatePlane adds w*src to the plane at (plane, channel) in place.
func (c *Cube) AccumulatePlane(plane, channel int, w float64, src []float64) error {
	raw, err := c.writablePlane(plane, channel, len(src))
	if err != nil {
		return err
	}
	for i, v := range src {
		b := raw[i*c.bytes:]
		c.encode(b, c.decode(b)+w*v)
	}
	return nil
}

// DividePlane divides every pixel of the plane at (plane, channel) by d in
// place. d may be zero, the result then follows IEEE 754 semantics.
func (c *Cube) DividePlane(plane, channel int, d float64) error {
	raw, err := c.writablePlane(plane, channel, c.PlaneLen())
	if err != nil {
		return err
	}
	for i := 0; i < c.PlaneLen(); i++ {
		b := raw[i*c.bytes:]
		c.encode(b, c.decode(b)/d)
	}
	return nil
}

// SpectralAxis returns the 1-based number of the frequency axis, found via
// CTYPEn. Axis 3 is assumed when no axis is labelled FREQ.
func (c *Cube) SpectralAxis() int {
	for i := 1; i <= 4; i++ {
		ctype, err := c.header.String(fmt.Sprintf("CTYPE%d", i))
		if err == nil && strings.HasPrefix(strings.ToUpper(ctype), "FREQ") {
			return i
		}
	}
	return 3
}

// ChannelFrequency evaluates the world coordinate of the spectral axis at the
// 0-based channel index: CRVAL + CDELT * ((channel+1) - CRPIX).
func (c *Cube) ChannelFrequency(channel int) (float64, error) {
	axis := c.SpectralAxis()
	crval, err := c.header.Float(fmt.Sprintf("CRVAL%d", axis))
	if err != nil {
		return 0, err
	}
	cdelt, err := c.header.Float(fmt.Sprintf("CDELT%d", axis))
	if err != nil {
		return 0, err
	}
	crpix, err := c.header.Float(fmt.Sprintf("CRPIX%d", axis))
	if err != nil {
		return 0, err
	}
	return crval + cdelt*(float64(channel+1)-crpix), nil
}

// Flush writes modified pages back to the file.
func (c *Cube) Flush() error {
	if c.mode != ReadWrite || c.mapping == nil {
		return nil
	}
	if err := msyncFile(c.mapping); err != nil {
		return fmt.Errorf("flushing %s: %w", c.path, err)
	}
	return nil
}

// Close flushes and unmaps the cube and closes the underlying file.
func (c *Cube) Close() error {
	var firstErr error
	if c.mapping != nil {
		if err := c.Flush(); err != nil {
			firstErr = err
		}
		if err := munmapFile(c.mapping); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unmapping %s: %w", c.path, err)
		}
		c.mapping, c.data = nil, nil
	}
	if c.file != nil {
		if err := c.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.file = nil
	}
	return firstErr
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
