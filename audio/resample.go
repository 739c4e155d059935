package audio

import "fmt"

// Standard audio sample rates for common use cases.
const (
	SampleRate24kHz = 24000 // device and reply rate
	SampleRate16kHz = 16000 // speech input rate
)

// Resample converts mono samples from one rate to another using linear
// interpolation.
func Resample(input []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", fromRate, toRate)
	}

	if fromRate == toRate {
		result := make([]float32, len(input))
		copy(result, input)
		return result, nil
	}

	n := len(input)
	if n == 0 {
		return []float32{}, nil
	}

	outLen := int(float64(n) * float64(toRate) / float64(fromRate))
	output := make([]float32, outLen)
	ratio := float64(fromRate) / float64(toRate)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx >= n-1 {
			output[i] = input[n-1]
		} else {
			s0, s1 := input[srcIdx], input[srcIdx+1]
			output[i] = s0 + frac*(s1-s0)
		}
	}

	return output, nil
}
