// Package audio normalizes microphone frames for the realtime endpoint.
package audio

import (
	"encoding/binary"
	"math"
)

// LiveSampleRate is the only input rate the realtime endpoint accepts.
const LiveSampleRate = 16000

// ToLive converts little-endian 16-bit mono PCM recorded at rate into
// LiveSampleRate. A zero rate means the frame is already at LiveSampleRate.
func ToLive(pcm []byte, rate int) []byte {
	if rate <= 0 || rate == LiveSampleRate || len(pcm) < 2 {
		return pcm
	}
	return encodePCM(Resample(decodePCM(pcm), rate, LiveSampleRate))
}

func decodePCM(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / math.MaxInt16
	}
	return samples
}

func encodePCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		s = max(-1, min(1, s))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*math.MaxInt16)))
	}
	return out
}
