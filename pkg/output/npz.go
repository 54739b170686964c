// Package output writes run artifacts: quantity archives, preview images,
// movies across snapshots, and light curves. All writers consume the
// quantity-major image planes the radiation integrator produces.
package output

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// Quantity is one named image plane, row-major rows x cols.
type Quantity struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// WriteNPZ writes the quantities as an npz archive: a zip file holding one
// npy array per quantity, named after it.
func WriteNPZ(path string, quantities []Quantity) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	zw := zip.NewWriter(f)
	for _, q := range quantities {
		if len(q.Data) != q.Rows*q.Cols {
			zw.Close()
			f.Close()
			return fmt.Errorf("output: quantity %s has %d values for shape (%d, %d)",
				q.Name, len(q.Data), q.Rows, q.Cols)
		}
		w, err := zw.Create(q.Name + ".npy")
		if err == nil {
			err = writeNPY(w, q.Rows, q.Cols, q.Data)
		}
		if err != nil {
			zw.Close()
			f.Close()
			return fmt.Errorf("output: writing %s: %w", q.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

// writeNPY emits one version 1.0 npy array of little-endian float64 values.
// The header dict is padded so the data start is 64-byte aligned.
func writeNPY(w io.Writer, rows, cols int, data []float64) error {
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, %d), }",
		rows, cols)
	pad := 64 - (10+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	if _, err := w.Write([]byte("\x93NUMPY\x01\x00")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, data)
}

// ReadNPZNames lists the array names stored in an npz archive, for
// verification and tooling.
func ReadNPZNames(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, strings.TrimSuffix(f.Name, ".npy"))
	}
	return names, nil
}
