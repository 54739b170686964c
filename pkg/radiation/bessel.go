package radiation

import "math"

// Modified Bessel functions of the second kind, via the polynomial
// approximations of Abramowitz & Stegun 9.8. Accurate to a few parts in 1e7,
// which is far below the accuracy of the synchrotron fitting formulas that
// consume them.

func besselI0(x float64) float64 {
	t := x / 3.75
	t *= t
	return 1.0 + t*(3.5156229+t*(3.0899424+t*(1.2067492+
		t*(0.2659732+t*(0.0360768+t*0.0045813)))))
}

func besselI1(x float64) float64 {
	t := x / 3.75
	t *= t
	return x * (0.5 + t*(0.87890594+t*(0.51498869+t*(0.15084934+
		t*(0.02658733+t*(0.00301532+t*0.00032411))))))
}

func besselK0(x float64) float64 {
	if x <= 2.0 {
		u := x * x / 4.0
		return -math.Log(x/2.0)*besselI0(x) - 0.57721566 +
			u*(0.42278420+u*(0.23069756+u*(0.03488590+
				u*(0.00262698+u*(0.00010750+u*0.00000740)))))
	}
	v := 2.0 / x
	return math.Exp(-x) / math.Sqrt(x) *
		(1.25331414 + v*(-0.07832358+v*(0.02189568+v*(-0.01062446+
			v*(0.00587872+v*(-0.00251540+v*0.00053208))))))
}

func besselK1(x float64) float64 {
	if x <= 2.0 {
		u := x * x / 4.0
		return math.Log(x/2.0)*besselI1(x) + 1.0/x*
			(1.0+u*(0.15443144+u*(-0.67278579+u*(-0.18156897+
				u*(-0.01919402+u*(-0.00110404+u*-0.00004686))))))
	}
	v := 2.0 / x
	return math.Exp(-x) / math.Sqrt(x) *
		(1.25331414 + v*(0.23498619+v*(-0.03655620+v*(0.01504268+
			v*(-0.00780353+v*(0.00325614+v*-0.00068245))))))
}

// besselK2 follows from the recurrence K_{n+1}(x) = K_{n-1}(x) + 2n/x K_n(x).
func besselK2(x float64) float64 {
	return besselK0(x) + 2.0/x*besselK1(x)
}
