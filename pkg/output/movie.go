package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/icza/mjpeg"
	xdraw "golang.org/x/image/draw"
)

// Movie accumulates one frame per snapshot into an MJPEG AVI. Frame
// dimensions are fixed by the first frame; later frames of a different size
// (a snapshot that refined deeper) are rescaled to match.
type Movie struct {
	aw   mjpeg.AviWriter
	side int
}

// NewMovie opens the AVI for writing. The side length of the first frame
// fixes the movie dimensions.
func NewMovie(path string, side, fps int) (*Movie, error) {
	if fps <= 0 {
		fps = 10
	}
	aw, err := mjpeg.New(path, int32(side), int32(side), int32(fps))
	if err != nil {
		return nil, fmt.Errorf("output: opening movie: %w", err)
	}
	return &Movie{aw: aw, side: side}, nil
}

// AddFrame appends one colormapped plane.
func (m *Movie) AddFrame(data []float64, res int) error {
	var frame image.Image = Colormap(data, res)
	if res != m.side {
		scaled := image.NewRGBA(image.Rect(0, 0, m.side, m.side))
		xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), frame, frame.Bounds(), xdraw.Over, nil)
		frame = scaled
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("output: encoding frame: %w", err)
	}
	if err := m.aw.AddFrame(buf.Bytes()); err != nil {
		return fmt.Errorf("output: adding frame: %w", err)
	}
	return nil
}

// Close finalizes the AVI index.
func (m *Movie) Close() error {
	if err := m.aw.Close(); err != nil {
		return fmt.Errorf("output: closing movie: %w", err)
	}
	return nil
}
