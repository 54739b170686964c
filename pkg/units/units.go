// Package units defines the physical constants used throughout the code.
// All values are CGS (centimeter-gram-second, Gaussian electromagnetic units).
package units

const (
	// C is the speed of light in cm/s.
	C = 2.99792458e10

	// GGMsun is the standard gravitational parameter of the Sun, G*M_sun, in cm^3/s^2.
	GGMsun = 1.32712440018e26

	// ECharge is the elementary charge in statC (esu).
	ECharge = 4.80320425e-10

	// MElectron is the electron mass in g.
	MElectron = 9.1093837015e-28

	// MProton is the proton mass in g.
	MProton = 1.67262192369e-24

	// KBoltzmann is the Boltzmann constant in erg/K.
	KBoltzmann = 1.380649e-16

	// HPlanck is the Planck constant in erg*s.
	HPlanck = 6.62607015e-27

	// Jansky is the flux density unit in erg/s/cm^2/Hz.
	Jansky = 1.0e-23
)

// GravitationalRadius returns GM/c^2 in cm for a black hole of the given
// mass in solar masses.
func GravitationalRadius(massMsun float64) float64 {
	return GGMsun * massMsun / (C * C)
}

// GravitationalTime returns GM/c^3 in s for a black hole of the given mass
// in solar masses. One unit of affine parameter or coordinate time in
// gravitational units corresponds to this many seconds.
func GravitationalTime(massMsun float64) float64 {
	return GGMsun * massMsun / (C * C * C)
}
