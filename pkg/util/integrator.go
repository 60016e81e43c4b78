package util

// bdf holds the history weights and the leading coefficient of one
// backward differentiation formula.
type bdf struct {
	coefficients []float64
	beta         float64
}

var bdfCoefficients = [2]bdf{
	{[]float64{1.0}, 1.0},                         // Backward Euler
	{[]float64{4.0 / 3.0, -1.0 / 3.0}, 2.0 / 3.0}, // Gear-2
}

// MaxBDFOrder is the highest integration order the transient analysis uses.
const MaxBDFOrder = len(bdfCoefficients)

// GetBDFcoeffs returns the companion model weights for a step of size dt:
// coeffs[0] multiplies the new state and coeffs[1:] the previous states.
// Orders outside 1..MaxBDFOrder fall back to Backward Euler.
func GetBDFcoeffs(order int, dt float64) []float64 {
	if order < 1 || order > MaxBDFOrder {
		order = 1
	}

	f := bdfCoefficients[order-1]
	coeffs := make([]float64, order+1)
	scale := 1.0 / (f.beta * dt)
	coeffs[0] = scale

	for i := 1; i <= order; i++ {
		coeffs[i] = -f.coefficients[i-1] * scale
	}

	return coeffs
}
