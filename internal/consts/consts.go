package consts

const (
	KELVIN = 273.15 // Kelvin temperature (K)
	TNOM   = 27.0   // Nominal temperature (C)
	GMIN   = 1e-12  // Minimum conductance to ground (S)
)
