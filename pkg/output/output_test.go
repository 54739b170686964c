package output

import (
	"archive/zip"
	"bytes"
	"image/png"
	"io"
	"math"
	"os"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/HerculesJack/blacklight/pkg/camera"
	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/radiation"
)

func TestWriteNPZ(t *testing.T) {
	path := t.TempDir() + "/image.npz"
	quantities := []Quantity{
		{Name: "I", Rows: 2, Cols: 2, Data: []float64{1, 2, 3, 4}},
		{Name: "tau", Rows: 2, Cols: 2, Data: []float64{0, 0, 0.5, 1}},
	}
	if err := WriteNPZ(path, quantities); err != nil {
		t.Fatalf("WriteNPZ: %v", err)
	}

	names, err := ReadNPZNames(path)
	if err != nil {
		t.Fatalf("ReadNPZNames: %v", err)
	}
	if len(names) != 2 || names[0] != "I" || names[1] != "tau" {
		t.Errorf("names = %v, want [I tau]", names)
	}

	// Each entry is a well-formed npy array: magic, version 1.0, and a
	// payload whose tail holds rows*cols little-endian float64 values.
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer zr.Close()
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("opening entry: %v", err)
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("reading entry: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x93NUMPY\x01\x00")) {
		t.Error("missing npy magic")
	}
	headerLen := int(raw[8]) | int(raw[9])<<8
	if (10+headerLen)%64 != 0 {
		t.Errorf("data offset %d not 64-byte aligned", 10+headerLen)
	}
	if got := len(raw) - 10 - headerLen; got != 4*8 {
		t.Errorf("payload = %d bytes, want 32", got)
	}

	// A shape mismatch is refused.
	bad := []Quantity{{Name: "I", Rows: 2, Cols: 2, Data: []float64{1}}}
	if err := WriteNPZ(t.TempDir()+"/bad.npz", bad); err == nil {
		t.Error("mismatched shape accepted")
	}
}

func TestComposite(t *testing.T) {
	// A 2x2 root with one refined 2x2 block over the bottom-right quadrant.
	planes := [][]float64{
		{1, 2, 3, 4},
		{10, 11, 12, 13},
	}
	locs := [][]camera.BlockLoc{
		nil,
		{{V: 1, U: 1}},
	}
	out, outRes := Composite(planes, locs, 2, 2)
	if outRes != 4 {
		t.Fatalf("outRes = %d, want 4", outRes)
	}

	// Root pixels expand to 2x2 squares.
	if out[0] != 1 || out[1] != 1 || out[4] != 1 || out[5] != 1 {
		t.Errorf("top-left quadrant = %v %v %v %v, want all 1", out[0], out[1], out[4], out[5])
	}
	if out[2] != 2 || out[8] != 3 {
		t.Errorf("root expansion wrong: out[2]=%v out[8]=%v", out[2], out[8])
	}
	// The refined block overwrites its quadrant pixel by pixel.
	if out[2*4+2] != 10 || out[2*4+3] != 11 || out[3*4+2] != 12 || out[3*4+3] != 13 {
		t.Errorf("refined quadrant = %v %v %v %v, want 10 11 12 13",
			out[2*4+2], out[2*4+3], out[3*4+2], out[3*4+3])
	}
}

func TestColormapHandlesNaNAndFlatPlanes(t *testing.T) {
	data := []float64{0, 1, math.NaN(), 0.5}
	img := Colormap(data, 2)
	// Image rows are flipped so v increases upward; the NaN pixel lands at
	// (0, 0) of the output.
	r, g, b, _ := img.At(0, 0).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("NaN pixel = (%d, %d, %d), want black", r, g, b)
	}

	// A constant plane must not divide by zero.
	flat := Colormap([]float64{2, 2, 2, 2}, 2)
	if flat == nil {
		t.Fatal("nil image for flat plane")
	}

	g16 := Gray16([]float64{0, 1, 2, 3}, 2)
	if got := g16.Gray16At(1, 0).Y; got != 65535 {
		t.Errorf("max pixel = %d, want 65535", got)
	}
	if got := g16.Gray16At(0, 1).Y; got != 0 {
		t.Errorf("min pixel = %d, want 0", got)
	}
}

func TestWritePNGAndTIFFAreDecodable(t *testing.T) {
	dir := t.TempDir()
	data := []float64{0, 1, 2, 3}

	pngPath := dir + "/preview.png"
	if err := WritePNG(pngPath, data, 2); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	f, err := os.Open(pngPath)
	if err != nil {
		t.Fatalf("opening png: %v", err)
	}
	if _, err := png.Decode(f); err != nil {
		t.Errorf("decoding png: %v", err)
	}
	f.Close()

	tiffPath := dir + "/image.tiff"
	if err := WriteTIFF(tiffPath, data, 2); err != nil {
		t.Fatalf("WriteTIFF: %v", err)
	}
	f, err = os.Open(tiffPath)
	if err != nil {
		t.Fatalf("opening tiff: %v", err)
	}
	img, err := tiff.Decode(f)
	f.Close()
	if err != nil {
		t.Fatalf("decoding tiff: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Errorf("tiff bounds = %v, want 2x2", img.Bounds())
	}
}

func TestWriterProducesConfiguredArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Snapshots: 2,
		Camera:    config.CameraParams{Resolution: 2},
		Image:     config.ImageParams{Light: true, Frequency: 230e9, Tau: true},
		Output: config.OutputParams{
			File:           dir + "/image.npz",
			PreviewFile:    dir + "/preview.png",
			TiffFile:       dir + "/image.tiff",
			MovieFile:      dir + "/movie.avi",
			MovieFPS:       5,
			LightCurveFile: dir + "/lightcurve.png",
		},
	}
	off := radiation.ComputeOffsets(cfg.Image, false)
	w := NewWriter(cfg, off)

	// Quantity-major single-level planes: 4 intensity pixels then 4 taus.
	plane0 := []float64{1, 2, 3, 4, 0, 0, 0, 0}
	plane1 := []float64{2, 3, 4, 5, 0, 0, 0, 0}
	if err := w.Snapshot(0, 0, [][]float64{plane0}, nil); err != nil {
		t.Fatalf("Snapshot 0: %v", err)
	}
	if err := w.Snapshot(1, 1, [][]float64{plane1}, nil); err != nil {
		t.Fatalf("Snapshot 1: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	for _, path := range []string{
		dir + "/image_00000.npz",
		dir + "/image_00001.npz",
		dir + "/preview_00001.png",
		dir + "/image_00000.tiff",
		dir + "/movie.avi",
		dir + "/lightcurve.png",
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing artifact %s: %v", path, err)
		}
	}

	names, err := ReadNPZNames(dir + "/image_00000.npz")
	if err != nil {
		t.Fatalf("ReadNPZNames: %v", err)
	}
	if len(names) != off.NumQuantities {
		t.Errorf("archive has %d arrays, want %d", len(names), off.NumQuantities)
	}
	if w.flux[0] != 10 || w.flux[1] != 14 {
		t.Errorf("light curve fluxes = %v, want [10 14]", w.flux)
	}
}
