package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
)

// FFT transforms data, whose length must be a power of two.
func FFT(data []float64) []complex128 {
	n := len(data)
	if n <= 1 {
		result := make([]complex128, n)
		for i := range data {
			result[i] = complex(data[i], 0)
		}
		return result
	}

	if n&(n-1) != 0 {
		panic("fft requires power of 2 length")
	}

	even := make([]float64, n/2)
	odd := make([]float64, n/2)

	for i := 0; i < n/2; i++ {
		even[i] = data[2*i]
		odd[i] = data[2*i+1]
	}

	feven := FFT(even)
	fodd := FFT(odd)

	result := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		w := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n)))
		result[k] = feven[k] + w*fodd[k]
		result[k+n/2] = feven[k] - w*fodd[k]
	}

	return result
}

func PowerSpectrum(data []float64) []float64 {
	fft := FFT(data)
	ps := make([]float64, len(fft)/2)

	for i := range ps {
		ps[i] = cmplx.Abs(fft[i])
	}

	return ps
}

// PadPow2 removes the mean of data and zero-pads it to a power of two.
func PadPow2(data []float64) []float64 {
	n := 1
	for n < len(data) {
		n *= 2
	}
	padded := make([]float64, n)
	copy(padded, data)
	if len(data) > 0 {
		mean := floats.Sum(data) / float64(len(data))
		floats.AddConst(-mean, padded[:len(data)])
	}
	return padded
}

// DominantFrequency returns the frequency in hertz of the strongest
// non-constant bin of series sampled every dt seconds, together with the
// spectrum it was picked from. It is 0 when there is no oscillation.
func DominantFrequency(series []float64, dt float64) (float64, []float64) {
	if len(series) < 4 || !(dt > 0) {
		return 0, nil
	}
	padded := PadPow2(series)
	ps := PowerSpectrum(padded)

	best := 0
	for i := 1; i < len(ps); i++ {
		if ps[i] > ps[best] || best == 0 {
			best = i
		}
	}
	if ps[best] < 1e-12 {
		return 0, ps
	}
	return float64(best) / (float64(len(padded)) * dt), ps
}
