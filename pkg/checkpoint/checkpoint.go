// Package checkpoint persists expensive intermediate state (geodesic samples,
// simulation sampling maps) between runs. Files are tied to a fingerprint of
// the configuration options that shaped their contents: loading under a
// different configuration fails with ErrMismatch rather than silently
// producing wrong geodesics.
//
// The container is a little-endian binary file: a magic string, a format
// version, the caller's 32-byte fingerprint, then a sequence of named, typed,
// shaped arrays. Float64 payloads round-trip bit for bit.
package checkpoint

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const magic = "BLCK"

const version = 1

// ErrMismatch reports a checkpoint that is incompatible with the current
// configuration: wrong fingerprint, missing array, or wrong shape.
var ErrMismatch = errors.New("checkpoint mismatch")

type arrayKind uint8

const (
	kindFloat64 arrayKind = iota
	kindInt64
	kindBool
)

// Array is one named payload in a checkpoint file. Exactly one of the data
// slices is non-nil, matching the kind implied at Save time.
type Array struct {
	Name    string
	Shape   []int
	Float64 []float64
	Int64   []int64
	Bool    []bool
}

func (a *Array) kind() arrayKind {
	switch {
	case a.Int64 != nil:
		return kindInt64
	case a.Bool != nil:
		return kindBool
	default:
		return kindFloat64
	}
}

func (a *Array) count() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Save writes the arrays to path under the given fingerprint, replacing any
// existing file.
func Save(path string, fingerprint [32]byte, arrays []Array) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating checkpoint %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if _, err := w.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(version)); err != nil {
		return err
	}
	if _, err := w.Write(fingerprint[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(arrays))); err != nil {
		return err
	}
	for i := range arrays {
		if err := writeArray(w, &arrays[i]); err != nil {
			return fmt.Errorf("writing checkpoint array %s: %w", arrays[i].Name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// Load reads every array from path, verifying the fingerprint. The expected
// arrays, if non-nil, pin the required names, kinds, and shapes in order;
// any difference is an ErrMismatch.
func Load(path string, fingerprint [32]byte, expected []Array) ([]Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	if string(head) != magic {
		return nil, fmt.Errorf("%w: %s is not a checkpoint file", ErrMismatch, path)
	}
	var ver uint32
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return nil, err
	}
	if ver != version {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrMismatch, ver, version)
	}
	var fp [32]byte
	if _, err := io.ReadFull(r, fp[:]); err != nil {
		return nil, err
	}
	if fp != fingerprint {
		return nil, fmt.Errorf("%w: configuration fingerprint differs", ErrMismatch)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	arrays := make([]Array, count)
	for i := range arrays {
		if err := readArray(r, &arrays[i]); err != nil {
			return nil, fmt.Errorf("reading checkpoint array %d: %w", i, err)
		}
	}

	if expected != nil {
		if len(expected) != len(arrays) {
			return nil, fmt.Errorf("%w: %d arrays, want %d", ErrMismatch, len(arrays), len(expected))
		}
		for i := range expected {
			if err := checkArray(&arrays[i], &expected[i]); err != nil {
				return nil, err
			}
		}
	}
	return arrays, nil
}

func checkArray(got, want *Array) error {
	if got.Name != want.Name {
		return fmt.Errorf("%w: array %q, want %q", ErrMismatch, got.Name, want.Name)
	}
	if got.kind() != want.kind() {
		return fmt.Errorf("%w: array %q has wrong element type", ErrMismatch, got.Name)
	}
	if len(got.Shape) != len(want.Shape) {
		return fmt.Errorf("%w: array %q rank %d, want %d",
			ErrMismatch, got.Name, len(got.Shape), len(want.Shape))
	}
	for d := range want.Shape {
		if got.Shape[d] != want.Shape[d] {
			return fmt.Errorf("%w: array %q shape %v, want %v",
				ErrMismatch, got.Name, got.Shape, want.Shape)
		}
	}
	return nil
}

func writeArray(w io.Writer, a *Array) error {
	if err := writeString(w, a.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(a.kind())); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(a.Shape))); err != nil {
		return err
	}
	for _, d := range a.Shape {
		if err := binary.Write(w, binary.LittleEndian, uint64(d)); err != nil {
			return err
		}
	}
	var buf [8]byte
	switch a.kind() {
	case kindFloat64:
		for _, v := range a.Float64 {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
	case kindInt64:
		for _, v := range a.Int64 {
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
	case kindBool:
		for _, v := range a.Bool {
			b := byte(0)
			if v {
				b = 1
			}
			if _, err := w.Write([]byte{b}); err != nil {
				return err
			}
		}
	}
	return nil
}

func readArray(r io.Reader, a *Array) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	a.Name = name
	var kind uint8
	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return err
	}
	var rank uint32
	if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
		return err
	}
	a.Shape = make([]int, rank)
	for d := range a.Shape {
		var dim uint64
		if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
			return err
		}
		a.Shape[d] = int(dim)
	}
	n := a.count()
	var buf [8]byte
	switch arrayKind(kind) {
	case kindFloat64:
		a.Float64 = make([]float64, n)
		for i := range a.Float64 {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return err
			}
			a.Float64[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
		}
	case kindInt64:
		a.Int64 = make([]int64, n)
		for i := range a.Int64 {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return err
			}
			a.Int64[i] = int64(binary.LittleEndian.Uint64(buf[:]))
		}
	case kindBool:
		a.Bool = make([]bool, n)
		one := make([]byte, 1)
		for i := range a.Bool {
			if _, err := io.ReadFull(r, one); err != nil {
				return err
			}
			a.Bool[i] = one[0] != 0
		}
	default:
		return fmt.Errorf("%w: unknown element type %d", ErrMismatch, kind)
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
