package config

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math"
)

// Fingerprints tie checkpoint files to the options that shaped their
// contents. Two decks with the same fingerprint produce bit-identical
// geodesics (or samples), so a loaded checkpoint is only accepted when
// its stored fingerprint matches the current deck.

type fingerprintWriter struct {
	h io.Writer
}

func (w fingerprintWriter) float(v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.h.Write(buf[:])
}

func (w fingerprintWriter) int(v int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
	w.h.Write(buf[:])
}

func (w fingerprintWriter) bool(v bool) {
	if v {
		w.h.Write([]byte{1})
	} else {
		w.h.Write([]byte{0})
	}
}

func (w fingerprintWriter) str(s string) {
	w.int(len(s))
	w.h.Write([]byte(s))
}

// GeodesicFingerprint hashes every option that affects ray positions and
// momenta: the geometry, the camera, the integrator tolerances, and the
// image layout.
func (c *Config) GeodesicFingerprint() [32]byte {
	h := sha256.New()
	w := fingerprintWriter{h}

	w.int(int(c.Model))
	w.float(c.Spin())

	w.int(int(c.Camera.Type))
	w.float(c.Camera.R)
	w.float(c.Camera.Th)
	w.float(c.Camera.Ph)
	w.float(c.Camera.URn)
	w.float(c.Camera.UThn)
	w.float(c.Camera.UPhn)
	w.float(c.Camera.KR)
	w.float(c.Camera.KTh)
	w.float(c.Camera.KPh)
	w.float(c.Camera.Rotation)
	w.float(c.Camera.Width)
	w.int(c.Camera.Resolution)
	w.bool(c.Camera.Pole)

	w.bool(c.Ray.Flat)
	w.int(int(c.Ray.Terminate))
	w.float(c.Ray.Factor)
	w.float(c.Ray.Step)
	w.int(c.Ray.MaxSteps)
	w.int(c.Ray.MaxRetries)
	w.float(c.Ray.TolAbs)
	w.float(c.Ray.TolRel)
	w.float(c.Ray.ErrFactor)
	w.float(c.Ray.MinFactor)
	w.float(c.Ray.MaxFactor)

	w.int(c.Adaptive.MaxLevel)
	w.int(c.Adaptive.BlockSize)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SampleFingerprint extends the geodesic fingerprint with the options that
// affect how simulation cells are mapped onto those geodesics.
func (c *Config) SampleFingerprint() [32]byte {
	h := sha256.New()
	w := fingerprintWriter{h}

	geo := c.GeodesicFingerprint()
	h.Write(geo[:])

	w.str(c.Simulation.File)
	w.bool(c.Simulation.Interp)
	w.bool(c.Simulation.BlockInterp)
	w.bool(c.SlowLight.On)
	w.int(c.SlowLight.ChunkSize)
	w.float(c.SlowLight.TStart)
	w.float(c.SlowLight.DT)
	w.int(c.Snapshots)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
