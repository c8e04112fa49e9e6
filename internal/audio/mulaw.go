package audio

import "math"

// Twilio media streams carry G.711 mu-law at 8 kHz, 160-byte frames (20ms).

// mulawTable maps a mu-law byte to its linear PCM16 value.
var mulawTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		mulawTable[i] = decodeMulawSample(byte(i))
	}
}

func decodeMulawSample(b byte) int16 {
	const bias = 0x84
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	sample := (int16(mantissa)<<3 + bias) << exponent
	sample -= bias
	if sign != 0 {
		return -sample
	}
	return sample
}

// DecodeMulaw expands a mu-law frame into linear PCM16 samples.
func DecodeMulaw(frame []byte) []int16 {
	out := make([]int16, len(frame))
	for i, b := range frame {
		out[i] = mulawTable[b]
	}
	return out
}

// RMS returns the root-mean-square energy of a PCM16 frame.
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

// FrameRMS decodes a mu-law frame and returns its RMS energy.
func FrameRMS(frame []byte) float64 {
	return RMS(DecodeMulaw(frame))
}
