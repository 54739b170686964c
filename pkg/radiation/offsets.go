package radiation

import "github.com/HerculesJack/blacklight/pkg/config"

// NumCellValues is the number of auxiliary cell quantities tracked for the
// averaged image maps, in order: density, electron number density, gas
// pressure, electron temperature, field strength, magnetization, inverse
// plasma beta.
const NumCellValues = 7

// CellValueNames labels the entries of a cell-value vector.
var CellValueNames = [NumCellValues]string{
	"rho", "n_e", "p_gas", "theta_e", "bb", "sigma", "beta_inverse",
}

// Offsets fixes where each enabled quantity lives in the per-pixel image
// vector. Offsets are assigned once at setup in declaration order, so
// enabling a quantity shifts everything declared after it. A disabled
// quantity keeps offset -1.
type Offsets struct {
	NumQuantities int

	Light       int // intensity, 1 slot (4 under polarization)
	Time        int
	Length      int
	Lambda      int
	Emission    int
	Tau         int
	LambdaAve   int // NumCellValues slots
	EmissionAve int // NumCellValues slots
	TauInt      int // NumCellValues slots
	ZTurnings   int

	Polarized bool
}

// ComputeOffsets lays out the image vector for the enabled quantities.
func ComputeOffsets(im config.ImageParams, polarized bool) Offsets {
	off := Offsets{
		Light: -1, Time: -1, Length: -1, Lambda: -1, Emission: -1, Tau: -1,
		LambdaAve: -1, EmissionAve: -1, TauInt: -1, ZTurnings: -1,
		Polarized: polarized,
	}
	n := 0
	claim := func(enabled bool, width int) int {
		if !enabled {
			return -1
		}
		at := n
		n += width
		return at
	}
	lightWidth := 1
	if polarized {
		lightWidth = 4
	}
	off.Light = claim(im.Light, lightWidth)
	off.Time = claim(im.Time, 1)
	off.Length = claim(im.Length, 1)
	off.Lambda = claim(im.Lambda, 1)
	off.Emission = claim(im.Emission, 1)
	off.Tau = claim(im.Tau, 1)
	off.LambdaAve = claim(im.LambdaAve, NumCellValues)
	off.EmissionAve = claim(im.EmissionAve, NumCellValues)
	off.TauInt = claim(im.TauInt, NumCellValues)
	off.ZTurnings = claim(im.ZTurnings, 1)
	off.NumQuantities = n
	return off
}

// QuantityNames returns a label for every slot of the image vector, in slot
// order. Output writers use it to name archive entries.
func (o Offsets) QuantityNames() []string {
	names := make([]string, o.NumQuantities)
	put := func(at int, labels ...string) {
		for i, l := range labels {
			if at >= 0 {
				names[at+i] = l
			}
		}
	}
	if o.Polarized {
		put(o.Light, "I", "Q", "U", "V")
	} else {
		put(o.Light, "I")
	}
	put(o.Time, "time")
	put(o.Length, "length")
	put(o.Lambda, "lambda")
	put(o.Emission, "emission")
	put(o.Tau, "tau")
	for i := 0; i < NumCellValues; i++ {
		if o.LambdaAve >= 0 {
			names[o.LambdaAve+i] = "lambda_ave_" + CellValueNames[i]
		}
		if o.EmissionAve >= 0 {
			names[o.EmissionAve+i] = "emission_ave_" + CellValueNames[i]
		}
		if o.TauInt >= 0 {
			names[o.TauInt+i] = "tau_int_" + CellValueNames[i]
		}
	}
	put(o.ZTurnings, "z_turnings")
	return names
}
