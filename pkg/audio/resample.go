package audio

import "math"

// Resampler parameters. The Kaiser beta and tap count are sized for ~80 dB
// stopband attenuation with a transition band within 400 Hz at the pipeline
// rate.
const (
	kaiserBeta    = 7.857
	kernelHalfLen = 101
)

// Resample converts samples from srcRate to dstRate using band-limited
// interpolation: a Kaiser-windowed sinc kernel evaluated per output sample
// (the direct form of a polyphase filter). Equal rates return the input
// unchanged.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || len(samples) == 0 || srcRate <= 0 || dstRate <= 0 {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(math.Round(float64(len(samples)) / ratio))
	out := make([]float64, outLen)

	// Normalized cutoff relative to the source rate, with headroom for the
	// filter transition band.
	cutoff := 0.5 * 0.92
	if dstRate < srcRate {
		cutoff *= float64(dstRate) / float64(srcRate)
	}

	// When downsampling, the kernel stretches by the decimation ratio so the
	// stopband still lands below the target Nyquist.
	stretch := 1.0
	if ratio > 1 {
		stretch = ratio
	}
	half := int(math.Ceil(float64(kernelHalfLen) * stretch))
	i0beta := besselI0(kaiserBeta)

	for j := range out {
		center := float64(j) * ratio
		lo := int(math.Ceil(center)) - half
		hi := int(math.Floor(center)) + half
		if lo < 0 {
			lo = 0
		}
		if hi >= len(samples) {
			hi = len(samples) - 1
		}

		var acc, norm float64
		for k := lo; k <= hi; k++ {
			u := (float64(k) - center) / stretch
			w := kaiserWindow(u/float64(kernelHalfLen), i0beta)
			if w == 0 {
				continue
			}
			h := 2 * cutoff * sinc(2*cutoff*(float64(k)-center)/stretch) * w
			acc += samples[k] * h
			norm += h
		}
		// Normalizing by the kernel sum keeps unity DC gain at the edges
		// where the kernel is truncated.
		if norm != 0 {
			out[j] = acc / norm
		}
	}
	return out
}

// sinc is the normalized sinc function sin(πx)/(πx).
func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// kaiserWindow evaluates the Kaiser window at x in [-1, 1]; zero outside.
func kaiserWindow(x, i0beta float64) float64 {
	if x < -1 || x > 1 {
		return 0
	}
	return besselI0(kaiserBeta*math.Sqrt(1-x*x)) / i0beta
}

// besselI0 is the zeroth-order modified Bessel function of the first kind,
// computed by its power series.
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	half := x / 2
	for k := 1; k < 64; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < sum*1e-12 {
			break
		}
	}
	return sum
}

// highPass applies an 80 Hz second-order Butterworth high-pass biquad
// (RBJ cookbook coefficients) to remove rumble, in place.
func highPass(samples []float64, rate int) {
	const fc = 80.0
	const q = math.Sqrt2 / 2

	w0 := 2 * math.Pi * fc / float64(rate)
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b0 := (1 + cosw0) / 2
	b1 := -(1 + cosw0)
	b2 := (1 + cosw0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha

	b0, b1, b2 = b0/a0, b1/a0, b2/a0
	a1, a2 = a1/a0, a2/a0

	var x1, x2, y1, y2 float64
	for i, x := range samples {
		y := b0*x + b1*x1 + b2*x2 - a1*y1 - a2*y2
		x2, x1 = x1, x
		y2, y1 = y1, y
		samples[i] = y
	}
}
