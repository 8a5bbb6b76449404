// Package analysis provides frequency analysis of recorded mesh runs.
//
//   - [FFT]: radix-2 fast Fourier transform
//   - [PowerSpectrum]: magnitude of the positive-frequency bins
//   - [DominantFrequency]: strongest oscillation in a sampled series
//
// A lightly damped mesh rings at a frequency set by stiffness and mass:
//
//	freq, _ := analysis.DominantFrequency(series, dt)
//	if freq > 0 {
//	    period := 1 / freq
//	}
package analysis
