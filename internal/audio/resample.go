package audio

// Resample converts samples from one rate to another by linear
// interpolation. Chime energy sits well below the Nyquist frequency of
// every rate in use, so a polyphase filter bank is not warranted.
func Resample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
