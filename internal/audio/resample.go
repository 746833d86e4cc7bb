package audio

import "math"

const filterTaps = 31

// Resample converts samples from srcRate to dstRate by linear interpolation.
// A windowed-sinc low-pass runs before decimation or after interpolation.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	cutoff := float64(min(srcRate, dstRate)) / 2
	if srcRate > dstRate {
		samples = lowPass(samples, cutoff, float64(srcRate))
	}

	step := float64(srcRate) / float64(dstRate)
	out := make([]float32, int(float64(len(samples))/step))
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		out[i] = lerp(samples, idx, float32(pos-float64(idx)))
	}

	if dstRate > srcRate {
		out = lowPass(out, cutoff, float64(dstRate))
	}
	return out
}

// lowPass convolves with a sinc kernel, using only taps that overlap the input.
func lowPass(samples []float32, cutoff, sampleRate float64) []float32 {
	kernel := sincKernel(cutoff/sampleRate, filterTaps)
	half := filterTaps / 2
	out := make([]float32, len(samples))

	for i := range samples {
		var acc float32
		for j := max(0, half-i); j < min(filterTaps, len(samples)-i+half); j++ {
			acc += samples[i+j-half] * kernel[j]
		}
		out[i] = acc
	}
	return out
}

// sincKernel returns a Blackman-windowed sinc with unity DC gain. fc is the
// cutoff as a fraction of the sample rate.
func sincKernel(fc float64, taps int) []float32 {
	half := taps / 2
	span := float64(taps - 1)
	raw := make([]float64, taps)

	var sum float64
	for i := range raw {
		n := float64(i - half)
		v := 1.0
		if n != 0 {
			x := 2 * math.Pi * fc * n
			v = math.Sin(x) / x
		}
		v *= 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/span) + 0.08*math.Cos(4*math.Pi*float64(i)/span)
		raw[i] = v
		sum += v
	}

	kernel := make([]float32, taps)
	for i, v := range raw {
		kernel[i] = float32(v / sum)
	}
	return kernel
}

func lerp(samples []float32, idx int, frac float32) float32 {
	if idx+1 >= len(samples) {
		return samples[len(samples)-1]
	}
	return samples[idx]*(1-frac) + samples[idx+1]*frac
}
